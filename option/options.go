package option

import (
	"bytes"

	"github.com/sagernet/sing/common/json"
)

type _Options struct {
	Log         *LogOptions        `json:"log,omitempty"`
	Inbound     InboundOptions     `json:"inbound,omitempty"`
	Certificate CertificateOptions `json:"certificate,omitempty"`
	Policy      PolicyOptions      `json:"policy,omitempty"`
	Outbound    OutboundOptions    `json:"outbound,omitempty"`
	DNS         DNSOptions         `json:"dns,omitempty"`
	MITM        MITMOptions        `json:"mitm,omitempty"`
	API         APIOptions         `json:"api,omitempty"`
}

type Options _Options

func (o *Options) UnmarshalJSON(content []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(content))
	decoder.DisallowUnknownFields()
	return decoder.Decode((*_Options)(o))
}

type LogOptions struct {
	Disabled     bool   `json:"disabled,omitempty"`
	Level        string `json:"level,omitempty"`
	Output       string `json:"output,omitempty"`
	Timestamp    bool   `json:"timestamp,omitempty"`
	DisableColor bool   `json:"disable_color,omitempty"`
}

type MITMOptions struct {
	HTTP2 bool `json:"http2,omitempty"`
}

type APIOptions struct {
	Listen string `json:"listen,omitempty"`
}
