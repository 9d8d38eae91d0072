package outbound

import (
	"net/http"
	"time"

	"github.com/examproxy/sebproxy/common/dialer"
	sTLS "github.com/examproxy/sebproxy/common/tls"
	"github.com/examproxy/sebproxy/log"
	"github.com/examproxy/sebproxy/option"
	E "github.com/sagernet/sing/common/exceptions"
	N "github.com/sagernet/sing/common/network"

	"golang.org/x/net/http2"
)

var _ http.RoundTripper = (*Pool)(nil)

// Pool holds the keep-alive connections used to forward requests, one
// transport for plain HTTP origins and one for HTTPS origins. Each
// transport opens at most MaxConns sockets in total.
type Pool struct {
	logger log.ContextLogger
	http   *http.Transport
	https  *http.Transport
}

func NewPool(logger log.ContextLogger, outboundDialer N.Dialer, options option.OutboundOptions) (*Pool, error) {
	tlsConfig, err := sTLS.ClientConfig(options.Insecure, options.MinTLSVersion)
	if err != nil {
		return nil, E.Cause(err, "outbound tls")
	}
	newTransport := func() *http.Transport {
		return &http.Transport{
			DialContext:         dialer.DialContextFunc(dialer.NewLimitDialer(outboundDialer, options.MaxConns)),
			MaxConnsPerHost:     options.MaxConnsPerHost,
			MaxIdleConnsPerHost: options.MaxConnsPerHost,
			IdleConnTimeout:     time.Duration(options.IdleTimeout),
			TLSHandshakeTimeout: time.Duration(options.DialTimeout),
			DisableCompression:  true,
		}
	}
	pool := &Pool{
		logger: logger,
		http:   newTransport(),
		https:  newTransport(),
	}
	pool.https.TLSClientConfig = tlsConfig
	if options.HTTP2Enabled() {
		_, err = http2.ConfigureTransports(pool.https)
		if err != nil {
			return nil, E.Cause(err, "configure http2")
		}
	}
	return pool, nil
}

func (p *Pool) RoundTrip(request *http.Request) (*http.Response, error) {
	switch request.URL.Scheme {
	case "http":
		return p.http.RoundTrip(request)
	case "https":
		return p.https.RoundTrip(request)
	default:
		return nil, E.New("unsupported scheme: ", request.URL.Scheme)
	}
}

func (p *Pool) Close() error {
	p.http.CloseIdleConnections()
	p.https.CloseIdleConnections()
	return nil
}
