package inbound

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"syscall"

	"github.com/examproxy/sebproxy/adapter"
	C "github.com/examproxy/sebproxy/constant"
	"github.com/examproxy/sebproxy/log"
	"github.com/examproxy/sebproxy/option"
	E "github.com/sagernet/sing/common/exceptions"
	M "github.com/sagernet/sing/common/metadata"
	N "github.com/sagernet/sing/common/network"

	"github.com/gofrs/uuid/v5"
	"github.com/metacubex/tfo-go"
)

var _ adapter.Service = (*Listener)(nil)

// Listener accepts proxy clients and hands every connection to the
// handler on its own goroutine.
type Listener struct {
	ctx         context.Context
	logger      log.ContextLogger
	handler     adapter.ConnectionHandler
	options     option.InboundOptions
	tcpListener net.Listener
	shutdown    atomic.Bool
}

func NewListener(ctx context.Context, logger log.ContextLogger, handler adapter.ConnectionHandler, options option.InboundOptions) *Listener {
	return &Listener{
		ctx:     ctx,
		logger:  logger,
		handler: handler,
		options: options,
	}
}

func (l *Listener) Start() error {
	tcpListener, err := l.listenTCP()
	if err != nil {
		return err
	}
	l.tcpListener = tcpListener
	go l.loopTCPIn()
	return nil
}

func (l *Listener) listenTCP() (net.Listener, error) {
	var listenConfig net.ListenConfig
	listenConfig.KeepAliveConfig = net.KeepAliveConfig{
		Enable:   true,
		Idle:     C.TCPKeepAliveInitial,
		Interval: C.TCPKeepAliveInterval,
	}
	attempts := l.options.PortRetry
	if attempts < 1 || l.options.ListenPort == 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		port := int(l.options.ListenPort) + attempt
		if port > 65535 {
			break
		}
		bindAddr := M.ParseSocksaddrHostPort(l.options.Listen, uint16(port))
		var (
			tcpListener net.Listener
			err         error
		)
		if l.options.TCPFastOpen {
			var tfoConfig tfo.ListenConfig
			tfoConfig.ListenConfig = listenConfig
			tcpListener, err = tfoConfig.Listen(l.ctx, M.NetworkFromNetAddr(N.NetworkTCP, bindAddr.Addr), bindAddr.String())
		} else {
			tcpListener, err = listenConfig.Listen(l.ctx, M.NetworkFromNetAddr(N.NetworkTCP, bindAddr.Addr), bindAddr.String())
		}
		if err == nil {
			l.logger.Info("tcp server started at ", tcpListener.Addr())
			return tcpListener, nil
		}
		lastErr = err
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, E.Cause(err, "listen on ", bindAddr)
		}
		l.logger.Warn("port ", port, " is in use, trying ", port+1)
	}
	return nil, E.Cause(lastErr, "no free port after ", attempts, " attempts from ", l.options.ListenPort)
}

func (l *Listener) loopTCPIn() {
	tcpListener := l.tcpListener
	for {
		conn, err := tcpListener.Accept()
		if err != nil {
			//nolint:staticcheck
			if netError, isNetError := err.(net.Error); isNetError && netError.Temporary() {
				l.logger.Error(err)
				continue
			}
			if l.shutdown.Load() && E.IsClosed(err) {
				return
			}
			l.logger.Error("tcp listener closed: ", err)
			return
		}
		var metadata adapter.InboundContext
		metadata.Inbound = "http"
		metadata.Source = M.SocksaddrFromNet(conn.RemoteAddr()).Unwrap()
		metadata.Session = uuid.Must(uuid.NewV4())
		ctx := log.ContextWithNewID(l.ctx)
		l.logger.DebugContext(ctx, "inbound connection from ", metadata.Source)
		go l.newConnection(ctx, conn, metadata)
	}
}

func (l *Listener) newConnection(ctx context.Context, conn net.Conn, metadata adapter.InboundContext) {
	err := l.handler.NewConnection(ctx, conn, metadata)
	if err != nil {
		if E.IsClosedOrCanceled(err) {
			l.logger.DebugContext(ctx, "connection closed: ", err)
		} else {
			l.logger.ErrorContext(ctx, err)
		}
	}
}

// Port reports the port actually bound, which may differ from the
// configured one after a retry.
func (l *Listener) Port() uint16 {
	if l.tcpListener == nil {
		return 0
	}
	return M.SocksaddrFromNet(l.tcpListener.Addr()).Port
}

func (l *Listener) Addr() net.Addr {
	if l.tcpListener == nil {
		return nil
	}
	return l.tcpListener.Addr()
}

func (l *Listener) Close() error {
	l.shutdown.Store(true)
	if l.tcpListener == nil {
		return nil
	}
	return l.tcpListener.Close()
}
