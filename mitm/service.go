package mitm

import (
	std_bufio "bufio"
	"context"
	"io"
	"net"
	"net/http"

	"github.com/examproxy/sebproxy/adapter"
	"github.com/examproxy/sebproxy/common/stats"
	C "github.com/examproxy/sebproxy/constant"
	"github.com/examproxy/sebproxy/log"
	"github.com/examproxy/sebproxy/option"
	"github.com/examproxy/sebproxy/policy"
	"github.com/sagernet/sing/common/buf"
	"github.com/sagernet/sing/common/bufio"
	E "github.com/sagernet/sing/common/exceptions"
	M "github.com/sagernet/sing/common/metadata"
	N "github.com/sagernet/sing/common/network"
)

var _ adapter.MITMService = (*Service)(nil)

type ServiceOptions struct {
	Logger    log.ContextLogger
	Issuer    adapter.CertificateIssuer
	Policy    *policy.Engine
	Injector  *policy.Injector
	Counters  *stats.Counters
	Dialer    N.Dialer
	Transport http.RoundTripper
	Local     http.Handler
	Options   option.MITMOptions
}

// Service dispatches proxy connections: CONNECT targets outside the
// whitelist are tunnelled byte for byte, whitelisted ones are terminated
// with a leaf certificate and forwarded request by request.
type Service struct {
	logger    log.ContextLogger
	issuer    adapter.CertificateIssuer
	policy    *policy.Engine
	injector  *policy.Injector
	counters  *stats.Counters
	dialer    N.Dialer
	transport http.RoundTripper
	local     http.Handler
	http2     bool
}

func NewService(options ServiceOptions) *Service {
	local := options.Local
	if local == nil {
		local = http.NotFoundHandler()
	}
	counters := options.Counters
	if counters == nil {
		counters = stats.NewCounters()
	}
	return &Service{
		logger:    options.Logger,
		issuer:    options.Issuer,
		policy:    options.Policy,
		injector:  options.Injector,
		counters:  counters,
		dialer:    options.Dialer,
		transport: options.Transport,
		local:     local,
		http2:     options.Options.HTTP2,
	}
}

func (s *Service) Start() error {
	return nil
}

func (s *Service) Close() error {
	return nil
}

func (s *Service) NewConnection(ctx context.Context, conn net.Conn, metadata adapter.InboundContext) error {
	defer conn.Close()
	ctx = adapter.WithContext(ctx, &metadata)
	return s.serveHTTP1(ctx, conn, std_bufio.NewReader(conn), &session{
		scheme:   "http",
		metadata: &metadata,
	})
}

func (s *Service) newConnect(ctx context.Context, conn net.Conn, reader *std_bufio.Reader, request *http.Request, metadata *adapter.InboundContext) error {
	s.counters.CountHTTPS()
	destination := M.ParseSocksaddr(request.Host)
	if !destination.IsValid() {
		s.counters.CountError()
		return E.New("invalid CONNECT target: ", request.Host)
	}
	if destination.Port == 0 {
		destination.Port = 443
	}
	metadata.Destination = destination
	hostname := destination.AddrString()
	if s.policy.Classify(hostname, "") {
		metadata.Intercepted = true
		s.logger.InfoContext(ctx, "intercept ", destination, " session ", metadata.Session)
		return s.intercept(ctx, replayBuffered(conn, reader), destination)
	}
	s.logger.InfoContext(ctx, "tunnel ", destination, " session ", metadata.Session)
	return s.tunnel(ctx, replayBuffered(conn, reader), destination)
}

func (s *Service) tunnel(ctx context.Context, conn net.Conn, destination M.Socksaddr) error {
	remoteConn, err := s.dialer.DialContext(ctx, N.NetworkTCP, destination)
	if err != nil {
		s.counters.CountError()
		return E.Cause(err, "open tunnel to ", destination)
	}
	_, err = io.WriteString(conn, C.ConnectionEstablished)
	if err != nil {
		remoteConn.Close()
		return E.Cause(err, "write CONNECT response")
	}
	return bufio.CopyConn(ctx, conn, remoteConn)
}

// replayBuffered returns a conn that yields the bytes the request reader
// already pulled off the wire before reading from conn again.
func replayBuffered(conn net.Conn, reader *std_bufio.Reader) net.Conn {
	buffered := reader.Buffered()
	if buffered == 0 {
		return conn
	}
	buffer := buf.NewSize(buffered)
	_, err := buffer.ReadFullFrom(reader, buffered)
	if err != nil {
		buffer.Release()
		return conn
	}
	return bufio.NewCachedConn(conn, buffer)
}
