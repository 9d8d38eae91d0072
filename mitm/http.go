package mitm

import (
	std_bufio "bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/examproxy/sebproxy/adapter"
	E "github.com/sagernet/sing/common/exceptions"
	sHTTP "github.com/sagernet/sing/protocol/http"
)

type session struct {
	intercepted bool
	scheme      string
	hostname    string
	authority   string
	metadata    *adapter.InboundContext
}

var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Connection",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func removeHopHeaders(header http.Header) {
	for _, name := range hopHeaders {
		header.Del(name)
	}
}

func isCertificatePath(path string) bool {
	return path == "/cert" || path == "/certificate"
}

func (s *Service) serveHTTP1(ctx context.Context, conn net.Conn, reader *std_bufio.Reader, session *session) error {
	for {
		request, err := sHTTP.ReadRequest(reader)
		if err != nil {
			if errors.Is(err, io.EOF) || E.IsClosedOrCanceled(err) {
				return nil
			}
			s.counters.CountError()
			return E.Cause(err, "read HTTP request")
		}
		if request.Method == http.MethodConnect && !session.intercepted {
			return s.newConnect(ctx, conn, reader, request, session.metadata)
		}
		keepAlive, err := s.serveRequest(ctx, conn, request, session)
		if err != nil {
			return err
		}
		if !keepAlive {
			return nil
		}
	}
}

func (s *Service) serveRequest(ctx context.Context, conn net.Conn, request *http.Request, session *session) (bool, error) {
	if session.intercepted {
		s.counters.CountRequest()
	} else {
		if isCertificatePath(request.URL.Path) && !request.URL.IsAbs() {
			return s.serveLocal(conn, request)
		}
		s.counters.CountHTTP()
		if !request.URL.IsAbs() {
			return s.serveLocal(conn, request)
		}
	}
	s.logger.DebugContext(ctx, request.Method, " ", request.URL, " ", request.Proto)
	return s.forward(ctx, conn, request, session)
}

func (s *Service) serveLocal(conn net.Conn, request *http.Request) (bool, error) {
	writer := new(simpleResponseWriter)
	s.local.ServeHTTP(writer, request)
	response := writer.Build(request)
	response.Close = request.Close
	err := response.Write(conn)
	if err != nil {
		return false, E.Cause(err, "write local response")
	}
	return !request.Close, nil
}

func (s *Service) prepareRequest(request *http.Request, session *session) {
	hostname := session.hostname
	if hostname == "" {
		hostname = request.URL.Hostname()
	}
	request.Header = s.injector.Inject(request.Header, hostname, request.URL.Path)
	removeHopHeaders(request.Header)
	request.RequestURI = ""
	request.Close = false
	if session.intercepted {
		request.URL.Scheme = session.scheme
		request.URL.Host = session.authority
	}
	if request.Host == "" {
		request.Host = request.URL.Host
	}
}

func (s *Service) forward(ctx context.Context, conn net.Conn, request *http.Request, session *session) (bool, error) {
	keepAlive := !request.Close
	http11Client := request.ProtoAtLeast(1, 1)
	s.prepareRequest(request, session)
	response, err := s.transport.RoundTrip(request.WithContext(ctx))
	if err != nil {
		s.counters.CountError()
		s.logger.ErrorContext(ctx, E.Cause(err, "forward ", request.Method, " ", request.URL))
		return false, writeBadGateway(conn, request)
	}
	defer response.Body.Close()
	removeHopHeaders(response.Header)
	response.Proto = "HTTP/1.1"
	response.ProtoMajor = 1
	response.ProtoMinor = 1
	response.Close = !keepAlive
	if !http11Client {
		response.TransferEncoding = nil
		if response.ContentLength < 0 {
			keepAlive = false
			response.Close = true
		}
	} else if response.ContentLength < 0 && len(response.TransferEncoding) == 0 && response.Body != http.NoBody {
		response.TransferEncoding = []string{"chunked"}
	}
	err = response.Write(conn)
	if err != nil {
		return false, E.Cause(err, "write HTTP response")
	}
	return keepAlive, nil
}

func writeBadGateway(conn net.Conn, request *http.Request) error {
	body := http.StatusText(http.StatusBadGateway)
	response := &http.Response{
		StatusCode:    http.StatusBadGateway,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": []string{"text/plain"}},
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Close:         true,
		Request:       request,
	}
	err := response.Write(conn)
	if err != nil {
		return E.Cause(err, "write 502 response")
	}
	return nil
}
