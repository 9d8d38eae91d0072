package inbound

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/examproxy/sebproxy/adapter"
	"github.com/examproxy/sebproxy/log"
	"github.com/examproxy/sebproxy/option"
	M "github.com/sagernet/sing/common/metadata"

	"github.com/stretchr/testify/require"
)

type echoHandler struct {
	sessions chan adapter.InboundContext
}

func (h *echoHandler) NewConnection(ctx context.Context, conn net.Conn, metadata adapter.InboundContext) error {
	defer conn.Close()
	h.sessions <- metadata
	_, err := io.Copy(conn, conn)
	return err
}

func occupiedPort(t *testing.T) uint16 {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() {
		listener.Close()
	})
	return M.SocksaddrFromNet(listener.Addr()).Port
}

func TestListenerPortRetry(t *testing.T) {
	t.Parallel()
	port := occupiedPort(t)
	handler := &echoHandler{sessions: make(chan adapter.InboundContext, 1)}
	listener := NewListener(context.Background(), log.NewNOPFactory().Logger(), handler, option.InboundOptions{
		Listen:     "127.0.0.1",
		ListenPort: port,
		PortRetry:  10,
	})
	require.NoError(t, listener.Start())
	defer listener.Close()
	require.Greater(t, listener.Port(), port)
	require.LessOrEqual(t, listener.Port(), port+9)

	conn, err := net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)
	reply := make([]byte, 4)
	_, err = io.ReadFull(conn, reply)
	require.NoError(t, err)
	require.Equal(t, "ping", string(reply))

	metadata := <-handler.sessions
	require.Equal(t, "http", metadata.Inbound)
	require.True(t, metadata.Source.IsValid())
	require.NotEqual(t, [16]byte{}, [16]byte(metadata.Session))
}

func TestListenerPortExhausted(t *testing.T) {
	t.Parallel()
	port := occupiedPort(t)
	listener := NewListener(context.Background(), log.NewNOPFactory().Logger(), &echoHandler{}, option.InboundOptions{
		Listen:     "127.0.0.1",
		ListenPort: port,
		PortRetry:  1,
	})
	require.Error(t, listener.Start())
	require.NoError(t, listener.Close())
}
