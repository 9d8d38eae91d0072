package mitm

import (
	std_bufio "bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/examproxy/sebproxy/adapter"
	"github.com/examproxy/sebproxy/certificate"
	"github.com/examproxy/sebproxy/common/stats"
	sTLS "github.com/examproxy/sebproxy/common/tls"
	C "github.com/examproxy/sebproxy/constant"
	"github.com/examproxy/sebproxy/log"
	"github.com/examproxy/sebproxy/option"
	"github.com/examproxy/sebproxy/outbound"
	"github.com/examproxy/sebproxy/policy"
	"github.com/sagernet/sing/common/json/badoption"
	M "github.com/sagernet/sing/common/metadata"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
)

const (
	testConfigKeyHash = "x-safeexambrowser-configkeyhash"
	testRequestHash   = "x-safeexambrowser-requesthash"
)

type redirectDialer struct {
	address string
}

func (d *redirectDialer) DialContext(ctx context.Context, network string, destination M.Socksaddr) (net.Conn, error) {
	var dialer net.Dialer
	return dialer.DialContext(ctx, network, d.address)
}

func (d *redirectDialer) ListenPacket(ctx context.Context, destination M.Socksaddr) (net.PacketConn, error) {
	return nil, os.ErrInvalid
}

type testProxy struct {
	address   string
	directory string
	root      *certificate.Root
	counters  *stats.Counters
}

func startTestProxy(t *testing.T, upstream string) *testProxy {
	directory := t.TempDir()
	keyPair, err := sTLS.GenerateCAKeyPair(nil, pkix.Name{CommonName: "SEB-MITM-Proxy-CA"}, 10)
	require.NoError(t, err)
	require.NoError(t, certificate.WriteRoot(directory, keyPair))
	root, err := certificate.LoadRoot(directory)
	require.NoError(t, err)
	logger := log.NewNOPFactory().Logger()
	watch := false
	authority, err := certificate.NewAuthority(certificate.AuthorityOptions{
		Logger: logger,
		Root:   root,
		Options: option.CertificateOptions{
			Directory: directory,
			CacheSize: 50,
			Watch:     &watch,
		},
	})
	require.NoError(t, err)
	engine, err := policy.NewEngine(option.PolicyOptions{
		AllowedDomains:   badoption.Listable[string]{"exam.test"},
		StaticExtensions: badoption.Listable[string]{".css", ".png"},
	})
	require.NoError(t, err)
	counters := stats.NewCounters()
	injector := policy.NewInjector(engine, []option.HeaderOptions{
		{Name: testConfigKeyHash, Value: "config"},
		{Name: testRequestHash, Value: "request"},
	}, counters)
	dialer := &redirectDialer{address: upstream}
	pool, err := outbound.NewPool(logger, dialer, option.OutboundOptions{
		MaxConnsPerHost: 4,
		Insecure:        true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		pool.Close()
	})
	service := NewService(ServiceOptions{
		Logger:    logger,
		Issuer:    authority,
		Policy:    engine,
		Injector:  injector,
		Counters:  counters,
		Dialer:    dialer,
		Transport: pool,
		Local: http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if isCertificatePath(request.URL.Path) {
				writer.Header().Set("Content-Type", "application/x-pem-file")
				writer.Write(root.CertificatePEM)
				return
			}
			writer.Header().Set("Content-Type", "text/html")
			writer.Write([]byte("<html>info</html>"))
		}),
	})
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() {
		listener.Close()
	})
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go service.NewConnection(context.Background(), conn, adapter.InboundContext{
				Source:  M.SocksaddrFromNet(conn.RemoteAddr()),
				Session: uuid.Must(uuid.NewV4()),
			})
		}
	}()
	return &testProxy{
		address:   listener.Addr().String(),
		directory: directory,
		root:      root,
		counters:  counters,
	}
}

func (p *testProxy) connect(t *testing.T, target string) net.Conn {
	conn, err := net.Dial("tcp", p.address)
	require.NoError(t, err)
	t.Cleanup(func() {
		conn.Close()
	})
	_, err = io.WriteString(conn, "CONNECT "+target+" HTTP/1.1\r\nHost: "+target+"\r\n\r\n")
	require.NoError(t, err)
	response := make([]byte, len(C.ConnectionEstablished))
	_, err = io.ReadFull(conn, response)
	require.NoError(t, err)
	require.Equal(t, C.ConnectionEstablished, string(response))
	return conn
}

func echoHeaders(writer http.ResponseWriter, request *http.Request) {
	writer.Header().Set("X-Seen-Config", request.Header.Get(testConfigKeyHash))
	writer.Header().Set("X-Seen-Request", request.Header.Get(testRequestHash))
	writer.Header().Set("X-Seen-Proxy-Connection", request.Header.Get("Proxy-Connection"))
	writer.Write([]byte("upstream"))
}

func TestTunnelBypassesInterception(t *testing.T) {
	t.Parallel()
	upstream := httptest.NewServer(http.HandlerFunc(echoHeaders))
	defer upstream.Close()
	proxy := startTestProxy(t, upstream.Listener.Addr().String())

	conn := proxy.connect(t, "other.test:443")
	request, err := http.NewRequest(http.MethodGet, "http://other.test/page", nil)
	require.NoError(t, err)
	require.NoError(t, request.Write(conn))
	response, err := http.ReadResponse(std_bufio.NewReader(conn), request)
	require.NoError(t, err)
	defer response.Body.Close()
	require.Equal(t, http.StatusOK, response.StatusCode)
	require.Empty(t, response.Header.Get("X-Seen-Config"))

	_, err = os.Stat(filepath.Join(proxy.directory, "other.test.pem"))
	require.ErrorIs(t, err, os.ErrNotExist)
	snapshot := proxy.counters.Snapshot()
	require.Equal(t, uint64(1), snapshot.TotalRequests)
	require.Equal(t, uint64(1), snapshot.HTTPSRequests)
	require.Zero(t, snapshot.HeadersInjected)
}

func TestConnectAfterPlainRequest(t *testing.T) {
	t.Parallel()
	upstream := httptest.NewServer(http.HandlerFunc(echoHeaders))
	defer upstream.Close()
	proxy := startTestProxy(t, upstream.Listener.Addr().String())

	conn, err := net.Dial("tcp", proxy.address)
	require.NoError(t, err)
	defer conn.Close()
	reader := std_bufio.NewReader(conn)
	_, err = io.WriteString(conn, "GET http://other.test/a HTTP/1.1\r\nHost: other.test\r\n\r\n")
	require.NoError(t, err)
	response, err := http.ReadResponse(reader, nil)
	require.NoError(t, err)
	_, err = io.Copy(io.Discard, response.Body)
	response.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, response.StatusCode)

	_, err = io.WriteString(conn, "CONNECT other.test:443 HTTP/1.1\r\nHost: other.test:443\r\n\r\n")
	require.NoError(t, err)
	established := make([]byte, len(C.ConnectionEstablished))
	_, err = io.ReadFull(reader, established)
	require.NoError(t, err)
	require.Equal(t, C.ConnectionEstablished, string(established))

	request, err := http.NewRequest(http.MethodGet, "http://other.test/b", nil)
	require.NoError(t, err)
	require.NoError(t, request.Write(conn))
	response, err = http.ReadResponse(reader, request)
	require.NoError(t, err)
	body, err := io.ReadAll(response.Body)
	response.Body.Close()
	require.NoError(t, err)
	require.Equal(t, "upstream", string(body))

	snapshot := proxy.counters.Snapshot()
	require.Equal(t, uint64(2), snapshot.TotalRequests)
	require.Equal(t, uint64(1), snapshot.HTTPRequests)
	require.Equal(t, uint64(1), snapshot.HTTPSRequests)
}

func TestMalformedRequestCounted(t *testing.T) {
	t.Parallel()
	proxy := startTestProxy(t, "127.0.0.1:1")

	conn, err := net.Dial("tcp", proxy.address)
	require.NoError(t, err)
	defer conn.Close()
	_, err = io.WriteString(conn, "garbage\r\n\r\n")
	require.NoError(t, err)
	_, err = io.ReadAll(conn)
	require.NoError(t, err)

	snapshot := proxy.counters.Snapshot()
	require.Equal(t, uint64(1), snapshot.Errors)
	require.Zero(t, snapshot.TotalRequests)
}

func TestInterceptInjectsHeaders(t *testing.T) {
	t.Parallel()
	upstream := httptest.NewTLSServer(http.HandlerFunc(echoHeaders))
	defer upstream.Close()
	proxy := startTestProxy(t, upstream.Listener.Addr().String())

	conn := proxy.connect(t, "exam.test:443")
	roots := x509.NewCertPool()
	require.True(t, roots.AppendCertsFromPEM(proxy.root.CertificatePEM))
	tlsConn := tls.Client(conn, &tls.Config{
		ServerName: "exam.test",
		RootCAs:    roots,
		NextProtos: []string{"http/1.1"},
	})
	require.NoError(t, tlsConn.Handshake())
	require.Equal(t, "exam.test", tlsConn.ConnectionState().PeerCertificates[0].Subject.CommonName)

	reader := std_bufio.NewReader(tlsConn)
	for _, path := range []string{"/quiz", "/next"} {
		request, err := http.NewRequest(http.MethodGet, "https://exam.test"+path, nil)
		require.NoError(t, err)
		require.NoError(t, request.Write(tlsConn))
		response, err := http.ReadResponse(reader, request)
		require.NoError(t, err)
		body, err := io.ReadAll(response.Body)
		response.Body.Close()
		require.NoError(t, err)
		require.Equal(t, "upstream", string(body))
		require.Equal(t, "config", response.Header.Get("X-Seen-Config"))
		require.Equal(t, "request", response.Header.Get("X-Seen-Request"))
	}

	_, err := os.Stat(filepath.Join(proxy.directory, "exam.test.pem"))
	require.NoError(t, err)
	snapshot := proxy.counters.Snapshot()
	require.Equal(t, uint64(3), snapshot.TotalRequests)
	require.Equal(t, uint64(4), snapshot.HeadersInjected)
}

func TestInterceptSkipsStaticAssets(t *testing.T) {
	t.Parallel()
	upstream := httptest.NewTLSServer(http.HandlerFunc(echoHeaders))
	defer upstream.Close()
	proxy := startTestProxy(t, upstream.Listener.Addr().String())

	conn := proxy.connect(t, "exam.test:443")
	tlsConn := tls.Client(conn, &tls.Config{
		ServerName:         "exam.test",
		InsecureSkipVerify: true,
	})
	request, err := http.NewRequest(http.MethodGet, "https://exam.test/theme/site.css", nil)
	require.NoError(t, err)
	require.NoError(t, request.Write(tlsConn))
	response, err := http.ReadResponse(std_bufio.NewReader(tlsConn), request)
	require.NoError(t, err)
	defer response.Body.Close()
	require.Empty(t, response.Header.Get("X-Seen-Config"))
	require.Zero(t, proxy.counters.Snapshot().HeadersInjected)
}

func TestPlainHTTPInjection(t *testing.T) {
	t.Parallel()
	upstream := httptest.NewServer(http.HandlerFunc(echoHeaders))
	defer upstream.Close()
	proxy := startTestProxy(t, upstream.Listener.Addr().String())

	conn, err := net.Dial("tcp", proxy.address)
	require.NoError(t, err)
	defer conn.Close()
	_, err = io.WriteString(conn, "GET http://exam.test/quiz HTTP/1.1\r\nHost: exam.test\r\nProxy-Connection: keep-alive\r\n\r\n")
	require.NoError(t, err)
	response, err := http.ReadResponse(std_bufio.NewReader(conn), nil)
	require.NoError(t, err)
	defer response.Body.Close()
	require.Equal(t, http.StatusOK, response.StatusCode)
	require.Equal(t, "config", response.Header.Get("X-Seen-Config"))
	require.Empty(t, response.Header.Get("X-Seen-Proxy-Connection"))

	snapshot := proxy.counters.Snapshot()
	require.Equal(t, uint64(1), snapshot.TotalRequests)
	require.Equal(t, uint64(1), snapshot.HTTPRequests)
	require.Equal(t, uint64(2), snapshot.HeadersInjected)
}

func TestPlainHTTPBadGateway(t *testing.T) {
	t.Parallel()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closedAddress := listener.Addr().String()
	listener.Close()
	proxy := startTestProxy(t, closedAddress)

	conn, err := net.Dial("tcp", proxy.address)
	require.NoError(t, err)
	defer conn.Close()
	_, err = io.WriteString(conn, "GET http://unlisted.test/ HTTP/1.1\r\nHost: unlisted.test\r\n\r\n")
	require.NoError(t, err)
	response, err := http.ReadResponse(std_bufio.NewReader(conn), nil)
	require.NoError(t, err)
	body, err := io.ReadAll(response.Body)
	response.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusBadGateway, response.StatusCode)
	require.Equal(t, "Bad Gateway", string(body))
	require.Equal(t, uint64(1), proxy.counters.Snapshot().Errors)
}

func TestLocalCertificateNotCounted(t *testing.T) {
	t.Parallel()
	proxy := startTestProxy(t, "127.0.0.1:1")

	conn, err := net.Dial("tcp", proxy.address)
	require.NoError(t, err)
	defer conn.Close()
	reader := std_bufio.NewReader(conn)
	_, err = io.WriteString(conn, "GET /cert HTTP/1.1\r\nHost: proxy\r\n\r\n")
	require.NoError(t, err)
	response, err := http.ReadResponse(reader, nil)
	require.NoError(t, err)
	body, err := io.ReadAll(response.Body)
	response.Body.Close()
	require.NoError(t, err)
	require.Equal(t, "application/x-pem-file", response.Header.Get("Content-Type"))
	require.Equal(t, proxy.root.CertificatePEM, body)
	require.Zero(t, proxy.counters.Snapshot().TotalRequests)

	_, err = io.WriteString(conn, "GET / HTTP/1.1\r\nHost: proxy\r\n\r\n")
	require.NoError(t, err)
	response, err = http.ReadResponse(reader, nil)
	require.NoError(t, err)
	response.Body.Close()
	require.Equal(t, http.StatusOK, response.StatusCode)
	require.Equal(t, uint64(1), proxy.counters.Snapshot().HTTPRequests)
}
