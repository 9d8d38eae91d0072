package dialer

import (
	"context"
	"net"

	"github.com/examproxy/sebproxy/dns"
	"github.com/examproxy/sebproxy/log"
	E "github.com/sagernet/sing/common/exceptions"
	M "github.com/sagernet/sing/common/metadata"
	N "github.com/sagernet/sing/common/network"
)

var _ N.Dialer = (*ResolveDialer)(nil)

// ResolveDialer resolves domain destinations through the cached client
// and dials the answers in order. When resolution fails the literal host
// name is handed to the underlying dialer.
type ResolveDialer struct {
	dialer N.Dialer
	client *dns.Client
	logger log.ContextLogger
}

func NewResolveDialer(dialer N.Dialer, client *dns.Client, logger log.ContextLogger) *ResolveDialer {
	return &ResolveDialer{
		dialer: dialer,
		client: client,
		logger: logger,
	}
}

func (d *ResolveDialer) DialContext(ctx context.Context, network string, destination M.Socksaddr) (net.Conn, error) {
	if !destination.IsFqdn() {
		return d.dialer.DialContext(ctx, network, destination)
	}
	addresses, err := d.client.Lookup(ctx, destination.Fqdn)
	if err != nil {
		d.logger.DebugContext(ctx, E.Cause(err, "resolve ", destination.Fqdn, ", dial by name"))
		return d.dialer.DialContext(ctx, network, destination)
	}
	return N.DialSerial(ctx, d.dialer, network, destination, addresses)
}

func (d *ResolveDialer) ListenPacket(ctx context.Context, destination M.Socksaddr) (net.PacketConn, error) {
	return d.dialer.ListenPacket(ctx, destination)
}

// DialContextFunc adapts a dialer to the signature used by net/http.
func DialContextFunc(dialer N.Dialer) func(ctx context.Context, network string, address string) (net.Conn, error) {
	return func(ctx context.Context, network string, address string) (net.Conn, error) {
		return dialer.DialContext(ctx, network, M.ParseSocksaddr(address))
	}
}
