package sniff

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"time"

	"github.com/sagernet/sing/common/buf"
	"github.com/sagernet/sing/common/bufio"
	E "github.com/sagernet/sing/common/exceptions"
)

// PeekTLS reads the first bytes of conn to find a ClientHello. The bytes
// consumed are replayed by the returned conn, so callers continue on it
// whether or not the stream turned out to be TLS.
func PeekTLS(ctx context.Context, conn net.Conn, timeout time.Duration) (net.Conn, *tls.ClientHelloInfo, error) {
	buffer := buf.NewPacket()
	if timeout > 0 {
		err := conn.SetReadDeadline(time.Now().Add(timeout))
		if err != nil {
			buffer.Release()
			return nil, nil, E.Cause(err, "set read deadline")
		}
	}
	clientHello, err := TLSClientHello(ctx, io.TeeReader(conn, buffer))
	if timeout > 0 {
		_ = conn.SetReadDeadline(time.Time{})
	}
	if clientHello == nil && buffer.IsEmpty() {
		buffer.Release()
		return nil, nil, E.Cause(err, "read initial payload")
	}
	return bufio.NewCachedConn(conn, buffer), clientHello, nil
}
