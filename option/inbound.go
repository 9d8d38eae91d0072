package option

type InboundOptions struct {
	Listen      string `json:"listen,omitempty"`
	ListenPort  uint16 `json:"listen_port,omitempty"`
	PortRetry   int    `json:"port_retry,omitempty"`
	TCPFastOpen bool   `json:"tcp_fast_open,omitempty"`
}
