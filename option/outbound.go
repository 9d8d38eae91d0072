package option

import "github.com/sagernet/sing/common/json/badoption"

type OutboundOptions struct {
	DialTimeout     badoption.Duration `json:"dial_timeout,omitempty"`
	MaxConns        int                `json:"max_conns,omitempty"`
	MaxConnsPerHost int                `json:"max_conns_per_host,omitempty"`
	IdleTimeout     badoption.Duration `json:"idle_timeout,omitempty"`
	Insecure        bool               `json:"insecure,omitempty"`
	MinTLSVersion   string             `json:"min_tls_version,omitempty"`
	HTTP2           *bool              `json:"http2,omitempty"`
}

func (o OutboundOptions) HTTP2Enabled() bool {
	return o.HTTP2 == nil || *o.HTTP2
}

type DNSOptions struct {
	TTL          badoption.Duration         `json:"ttl,omitempty"`
	CacheCeiling int                        `json:"cache_ceiling,omitempty"`
	Servers      badoption.Listable[string] `json:"servers,omitempty"`
}
