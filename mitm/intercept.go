package mitm

import (
	std_bufio "bufio"
	"context"
	"crypto/tls"
	"io"
	"net"

	"github.com/examproxy/sebproxy/common/sniff"
	sTLS "github.com/examproxy/sebproxy/common/tls"
	C "github.com/examproxy/sebproxy/constant"
	E "github.com/sagernet/sing/common/exceptions"
	M "github.com/sagernet/sing/common/metadata"

	"golang.org/x/net/http2"
)

func (s *Service) intercept(ctx context.Context, conn net.Conn, destination M.Socksaddr) error {
	hostname := destination.AddrString()
	leaf, err := s.issuer.Issue(ctx, hostname)
	if err != nil {
		s.counters.CountError()
		return E.Cause(err, "issue certificate for ", hostname)
	}
	_, err = io.WriteString(conn, C.ConnectionEstablished)
	if err != nil {
		return E.Cause(err, "write CONNECT response")
	}
	clientConn, clientHello, err := sniff.PeekTLS(ctx, conn, C.TCPConnectTimeout)
	if err != nil {
		return err
	}
	intercepted := &session{
		intercepted: true,
		hostname:    hostname,
		authority:   destination.String(),
	}
	if clientHello == nil {
		s.logger.DebugContext(ctx, "plain HTTP inside CONNECT to ", destination)
		intercepted.scheme = "http"
		return s.serveHTTP1(ctx, clientConn, std_bufio.NewReader(clientConn), intercepted)
	}
	intercepted.scheme = "https"
	tlsConn := tls.Server(clientConn, sTLS.ServerConfig(leaf, s.http2))
	handshakeCtx, cancel := context.WithTimeout(ctx, C.TCPConnectTimeout)
	err = tlsConn.HandshakeContext(handshakeCtx)
	cancel()
	if err != nil {
		return E.Cause(err, "TLS handshake")
	}
	if tlsConn.ConnectionState().NegotiatedProtocol == http2.NextProtoTLS {
		return s.serveHTTP2(ctx, tlsConn, intercepted)
	}
	return s.serveHTTP1(ctx, tlsConn, std_bufio.NewReader(tlsConn), intercepted)
}
