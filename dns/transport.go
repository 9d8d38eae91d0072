package dns

import (
	"context"
	"net"
	"os"

	E "github.com/sagernet/sing/common/exceptions"
	M "github.com/sagernet/sing/common/metadata"

	"github.com/miekg/dns"
)

const resolvConfPath = "/etc/resolv.conf"

type Transport interface {
	Exchange(ctx context.Context, message *dns.Msg) (*dns.Msg, error)
}

var _ Transport = (*UDPTransport)(nil)

// UDPTransport queries plain DNS servers in order and retries over TCP
// when an answer comes back truncated.
type UDPTransport struct {
	servers   []string
	udpClient *dns.Client
	tcpClient *dns.Client
}

// NewTransport returns nil when no servers are configured and none can be
// read from resolv.conf; the client then uses the system resolver.
func NewTransport(servers []string) (Transport, error) {
	if len(servers) == 0 {
		config, err := dns.ClientConfigFromFile(resolvConfPath)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, E.Cause(err, "read ", resolvConfPath)
		}
		for _, server := range config.Servers {
			servers = append(servers, net.JoinHostPort(server, config.Port))
		}
		if len(servers) == 0 {
			return nil, nil
		}
	}
	normalized := make([]string, 0, len(servers))
	for _, server := range servers {
		address := M.ParseSocksaddr(server)
		if address.Port == 0 {
			address.Port = 53
		}
		if !address.IsValid() {
			return nil, E.New("invalid dns server: ", server)
		}
		normalized = append(normalized, address.String())
	}
	return &UDPTransport{
		servers:   normalized,
		udpClient: &dns.Client{Net: "udp"},
		tcpClient: &dns.Client{Net: "tcp"},
	}, nil
}

func (t *UDPTransport) Exchange(ctx context.Context, message *dns.Msg) (*dns.Msg, error) {
	var errors []error
	for _, server := range t.servers {
		response, _, err := t.udpClient.ExchangeContext(ctx, message, server)
		if err == nil && response.Truncated {
			response, _, err = t.tcpClient.ExchangeContext(ctx, message, server)
		}
		if err == nil {
			return response, nil
		}
		errors = append(errors, E.Cause(err, "exchange with ", server))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, E.Errors(errors...)
}
