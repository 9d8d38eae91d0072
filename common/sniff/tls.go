package sniff

import (
	"context"
	"crypto/tls"
	"io"

	"github.com/sagernet/sing/common/bufio"
)

// TLSClientHello runs a server handshake against a read-only view of
// reader and returns the parsed ClientHello, or nil when the stream is
// not TLS.
func TLSClientHello(ctx context.Context, reader io.Reader) (*tls.ClientHelloInfo, error) {
	var clientHello *tls.ClientHelloInfo
	err := tls.Server(bufio.NewReadOnlyConn(reader), &tls.Config{
		GetConfigForClient: func(argHello *tls.ClientHelloInfo) (*tls.Config, error) {
			clientHello = argHello
			return nil, nil
		},
	}).HandshakeContext(ctx)
	if clientHello != nil {
		return clientHello, nil
	}
	return nil, err
}
