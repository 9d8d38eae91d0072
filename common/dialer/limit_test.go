package dialer

import (
	"context"
	"net"
	"testing"
	"time"

	M "github.com/sagernet/sing/common/metadata"

	"github.com/stretchr/testify/require"
)

func TestLimitDialer(t *testing.T) {
	t.Parallel()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()
	destination := M.SocksaddrFromNet(listener.Addr())
	limited := NewLimitDialer(NewDefault(time.Second), 2)

	first, err := limited.DialContext(context.Background(), "tcp", destination)
	require.NoError(t, err)
	second, err := limited.DialContext(context.Background(), "tcp", destination)
	require.NoError(t, err)
	defer second.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	_, err = limited.DialContext(ctx, "tcp", destination)
	cancel()
	require.Error(t, err)

	require.NoError(t, first.Close())
	first.Close()
	third, err := limited.DialContext(context.Background(), "tcp", destination)
	require.NoError(t, err)
	defer third.Close()

	ctx, cancel = context.WithTimeout(context.Background(), 100*time.Millisecond)
	_, err = limited.DialContext(ctx, "tcp", destination)
	cancel()
	require.Error(t, err)
}

func TestLimitDialerUnlimited(t *testing.T) {
	t.Parallel()
	base := NewDefault(time.Second)
	require.Equal(t, base, NewLimitDialer(base, 0))
}
