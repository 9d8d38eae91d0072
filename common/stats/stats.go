package stats

import "sync/atomic"

// Counters are increment-only process statistics shared by every connection.
type Counters struct {
	totalRequests   atomic.Uint64
	httpRequests    atomic.Uint64
	httpsRequests   atomic.Uint64
	headersInjected atomic.Uint64
	errors          atomic.Uint64
}

type Snapshot struct {
	TotalRequests   uint64 `json:"totalRequests"`
	HTTPRequests    uint64 `json:"httpRequests"`
	HTTPSRequests   uint64 `json:"httpsRequests"`
	HeadersInjected uint64 `json:"headersInjected"`
	Errors          uint64 `json:"errors"`
}

func NewCounters() *Counters {
	return &Counters{}
}

func (c *Counters) CountHTTP() {
	c.totalRequests.Add(1)
	c.httpRequests.Add(1)
}

func (c *Counters) CountHTTPS() {
	c.totalRequests.Add(1)
	c.httpsRequests.Add(1)
}

func (c *Counters) CountRequest() {
	c.totalRequests.Add(1)
}

func (c *Counters) CountInjected(n int) {
	if n > 0 {
		c.headersInjected.Add(uint64(n))
	}
}

func (c *Counters) CountError() {
	c.errors.Add(1)
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		TotalRequests:   c.totalRequests.Load(),
		HTTPRequests:    c.httpRequests.Load(),
		HTTPSRequests:   c.httpsRequests.Load(),
		HeadersInjected: c.headersInjected.Load(),
		Errors:          c.errors.Load(),
	}
}
