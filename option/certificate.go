package option

type CertificateOptions struct {
	Directory         string `json:"directory,omitempty"`
	CacheSize         int    `json:"cache_size,omitempty"`
	CAName            string `json:"ca_name,omitempty"`
	SerializeIssuance bool   `json:"serialize_issuance,omitempty"`
	Watch             *bool  `json:"watch,omitempty"`
}

func (o CertificateOptions) WatchEnabled() bool {
	return o.Watch == nil || *o.Watch
}
