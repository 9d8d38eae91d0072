package dialer

import (
	"context"
	"net"
	"time"

	C "github.com/examproxy/sebproxy/constant"
	E "github.com/sagernet/sing/common/exceptions"
	M "github.com/sagernet/sing/common/metadata"
	N "github.com/sagernet/sing/common/network"
)

var _ N.Dialer = (*DefaultDialer)(nil)

type DefaultDialer struct {
	dialer net.Dialer
}

func NewDefault(timeout time.Duration) *DefaultDialer {
	if timeout == 0 {
		timeout = C.TCPConnectTimeout
	}
	return &DefaultDialer{
		dialer: net.Dialer{
			Timeout: timeout,
			KeepAliveConfig: net.KeepAliveConfig{
				Enable:   true,
				Idle:     C.TCPKeepAliveInitial,
				Interval: C.TCPKeepAliveInterval,
			},
		},
	}
}

func (d *DefaultDialer) DialContext(ctx context.Context, network string, destination M.Socksaddr) (net.Conn, error) {
	if !destination.IsValid() {
		return nil, E.New("invalid address")
	}
	if N.NetworkName(network) != N.NetworkTCP {
		return nil, E.New("unsupported network: ", network)
	}
	return d.dialer.DialContext(ctx, network, destination.String())
}

func (d *DefaultDialer) ListenPacket(ctx context.Context, destination M.Socksaddr) (net.PacketConn, error) {
	return nil, E.New("udp is not supported")
}
