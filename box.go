package box

import (
	"context"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/examproxy/sebproxy/adapter"
	"github.com/examproxy/sebproxy/certificate"
	"github.com/examproxy/sebproxy/common/dialer"
	"github.com/examproxy/sebproxy/common/stats"
	C "github.com/examproxy/sebproxy/constant"
	"github.com/examproxy/sebproxy/dns"
	"github.com/examproxy/sebproxy/experimental/localapi"
	"github.com/examproxy/sebproxy/inbound"
	"github.com/examproxy/sebproxy/log"
	"github.com/examproxy/sebproxy/mitm"
	"github.com/examproxy/sebproxy/option"
	"github.com/examproxy/sebproxy/outbound"
	"github.com/examproxy/sebproxy/policy"
	"github.com/sagernet/sing/common"
	E "github.com/sagernet/sing/common/exceptions"
	F "github.com/sagernet/sing/common/format"
)

var _ adapter.Service = (*Box)(nil)

type Box struct {
	createdAt  time.Time
	ctx        context.Context
	cancel     context.CancelFunc
	options    option.Options
	logFactory log.Factory
	logger     log.ContextLogger
	counters   *stats.Counters
	root       *certificate.Root
	authority  *certificate.Authority
	policy     *policy.Engine
	injector   *policy.Injector
	pool       *outbound.Pool
	localAPI   *localapi.Server
	mitm       *mitm.Service
	inbound    *inbound.Listener
	done       chan struct{}
}

type Options struct {
	option.Options
	Context   context.Context
	LogWriter io.Writer
}

func New(options Options) (*Box, error) {
	createdAt := time.Now()
	ctx := options.Context
	if ctx == nil {
		ctx = context.Background()
	}
	logFactory, err := log.New(log.Options{
		Options:       common.PtrValueOrDefault(options.Log),
		DefaultWriter: options.LogWriter,
		BaseTime:      createdAt,
	})
	if err != nil {
		return nil, E.Cause(err, "create log factory")
	}
	root, err := certificate.LoadRoot(options.Certificate.Directory)
	if err != nil {
		logFactory.Close()
		return nil, E.Cause(err, "load root authority")
	}
	authority, err := certificate.NewAuthority(certificate.AuthorityOptions{
		Logger:  logFactory.NewLogger("certificate"),
		Root:    root,
		Options: options.Certificate,
	})
	if err != nil {
		logFactory.Close()
		return nil, E.Cause(err, "create certificate authority")
	}
	closeOnError := func() {
		common.Close(authority, logFactory)
	}
	dnsTransport, err := dns.NewTransport(options.DNS.Servers)
	if err != nil {
		closeOnError()
		return nil, E.Cause(err, "create dns transport")
	}
	dnsClient := dns.NewClient(dns.ClientOptions{
		Logger:    logFactory.NewLogger("dns"),
		Transport: dnsTransport,
		Options:   options.DNS,
	})
	outboundDialer := dialer.NewResolveDialer(
		dialer.NewDefault(time.Duration(options.Outbound.DialTimeout)),
		dnsClient,
		logFactory.NewLogger("dialer"),
	)
	pool, err := outbound.NewPool(logFactory.NewLogger("outbound"), outboundDialer, options.Outbound)
	if err != nil {
		closeOnError()
		return nil, E.Cause(err, "create outbound pool")
	}
	policyEngine, err := policy.NewEngine(options.Policy)
	if err != nil {
		closeOnError()
		return nil, E.Cause(err, "create policy")
	}
	counters := stats.NewCounters()
	injector := policy.NewInjector(policyEngine, options.Policy.InjectedHeaders, counters)
	localAPI := localapi.NewServer(localapi.ServerOptions{
		Logger:          logFactory.NewLogger("api"),
		Counters:        counters,
		CertificatePath: root.CertificatePath,
		CAName:          options.Certificate.CAName,
		Listen:          options.API.Listen,
	})
	mitmService := mitm.NewService(mitm.ServiceOptions{
		Logger:    logFactory.NewLogger("mitm"),
		Issuer:    authority,
		Policy:    policyEngine,
		Injector:  injector,
		Counters:  counters,
		Dialer:    outboundDialer,
		Transport: pool,
		Local:     localAPI.Handler(),
		Options:   options.MITM,
	})
	ctx, cancel := context.WithCancel(ctx)
	return &Box{
		createdAt:  createdAt,
		ctx:        ctx,
		cancel:     cancel,
		options:    options.Options,
		logFactory: logFactory,
		logger:     logFactory.Logger(),
		counters:   counters,
		root:       root,
		authority:  authority,
		policy:     policyEngine,
		injector:   injector,
		pool:       pool,
		localAPI:   localAPI,
		mitm:       mitmService,
		inbound:    inbound.NewListener(ctx, logFactory.NewLogger("inbound"), mitmService, options.Inbound),
		done:       make(chan struct{}),
	}, nil
}

func (s *Box) Start() error {
	err := s.start()
	if err != nil {
		s.Close()
		return err
	}
	s.logger.Info("sebproxy started (", time.Since(s.createdAt).Round(time.Millisecond), ")")
	return nil
}

func (s *Box) start() error {
	for _, service := range []struct {
		name    string
		service adapter.Service
	}{
		{"certificate authority", s.authority},
		{"mitm", s.mitm},
		{"local api", s.localAPI},
		{"inbound", s.inbound},
	} {
		err := service.service.Start()
		if err != nil {
			return E.Cause(err, "start ", service.name)
		}
	}
	s.logBanner()
	go s.loopStatistics()
	return nil
}

func (s *Box) logBanner() {
	s.logger.Info("proxy listening at ", s.inbound.Addr())
	configuredPort := s.options.Inbound.ListenPort
	if configuredPort != 0 && s.inbound.Port() != configuredPort {
		s.logger.Warn("port ", configuredPort, " was in use, clients must use port ", s.inbound.Port())
	}
	s.logger.Info("intercepted domains: ", strings.Join(s.policy.AllowedDomains(), ", "))
	s.logger.Info("injected headers: ", strings.Join(s.injector.HeaderNames(), ", "))
	s.logger.Info("root certificate ", s.root.CertificatePath, " is served at /cert")
}

func (s *Box) loopStatistics() {
	ticker := time.NewTicker(C.StatisticsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			snapshot := s.counters.Snapshot()
			if snapshot.TotalRequests > 0 {
				s.logger.Info(formatSnapshot(snapshot))
			}
		}
	}
}

func formatSnapshot(snapshot stats.Snapshot) string {
	return F.ToString(
		"total: ", snapshot.TotalRequests,
		", http: ", snapshot.HTTPRequests,
		", https: ", snapshot.HTTPSRequests,
		", headers injected: ", snapshot.HeadersInjected,
		", errors: ", snapshot.Errors,
	)
}

func (s *Box) Close() error {
	select {
	case <-s.done:
		return os.ErrClosed
	default:
		close(s.done)
	}
	s.logger.Info("final statistics: ", formatSnapshot(s.counters.Snapshot()))
	s.cancel()
	err := common.Close(s.inbound, s.mitm, s.localAPI, s.pool, s.authority)
	if closeErr := s.logFactory.Close(); closeErr != nil {
		err = E.Errors(err, E.Cause(closeErr, "close logger"))
	}
	return err
}

func (s *Box) Counters() *stats.Counters {
	return s.counters
}

func (s *Box) Addr() net.Addr {
	return s.inbound.Addr()
}
