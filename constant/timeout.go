package constant

import "time"

const (
	TCPConnectTimeout    = 30 * time.Second
	TCPKeepAliveInitial  = 10 * time.Minute
	TCPKeepAliveInterval = 75 * time.Second
	ReadPayloadTimeout   = 300 * time.Millisecond
	DNSTimeout           = 10 * time.Second
	DNSCacheTTL          = 60 * time.Second
	DNSCacheCeiling      = 1000
	IdleConnTimeout      = 90 * time.Second
	MaxConns             = 1024
	MaxConnsPerHost      = 256
	StatisticsInterval   = time.Minute
	LeafValidity         = 10 * 365 * 24 * time.Hour
	RootValidityYears    = 10
)
