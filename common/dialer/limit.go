package dialer

import (
	"context"
	"net"
	"sync"

	E "github.com/sagernet/sing/common/exceptions"
	M "github.com/sagernet/sing/common/metadata"
	N "github.com/sagernet/sing/common/network"

	"golang.org/x/sync/semaphore"
)

var _ N.Dialer = (*LimitDialer)(nil)

// LimitDialer caps the number of open connections dialed through it.
// A dial waits for a slot until its context is done.
type LimitDialer struct {
	dialer N.Dialer
	slots  *semaphore.Weighted
}

func NewLimitDialer(dialer N.Dialer, limit int) N.Dialer {
	if limit <= 0 {
		return dialer
	}
	return &LimitDialer{
		dialer: dialer,
		slots:  semaphore.NewWeighted(int64(limit)),
	}
}

func (d *LimitDialer) DialContext(ctx context.Context, network string, destination M.Socksaddr) (net.Conn, error) {
	err := d.slots.Acquire(ctx, 1)
	if err != nil {
		return nil, E.Cause(err, "wait for connection slot")
	}
	conn, err := d.dialer.DialContext(ctx, network, destination)
	if err != nil {
		d.slots.Release(1)
		return nil, err
	}
	return &limitConn{Conn: conn, release: func() { d.slots.Release(1) }}, nil
}

func (d *LimitDialer) ListenPacket(ctx context.Context, destination M.Socksaddr) (net.PacketConn, error) {
	return d.dialer.ListenPacket(ctx, destination)
}

type limitConn struct {
	net.Conn
	once    sync.Once
	release func()
}

func (c *limitConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(c.release)
	return err
}

func (c *limitConn) Upstream() any {
	return c.Conn
}
