package localapi

import (
	"errors"
	"net"
	"net/http"
	"os"

	"github.com/examproxy/sebproxy/common/stats"
	"github.com/examproxy/sebproxy/log"
	"github.com/sagernet/sing/common"
	E "github.com/sagernet/sing/common/exceptions"
	sHTTP "github.com/sagernet/sing/protocol/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sagernet/cors"
)

type ServerOptions struct {
	Logger          log.ContextLogger
	Counters        *stats.Counters
	CertificatePath string
	CAName          string
	Listen          string
}

// Server answers requests addressed to the proxy itself: the root
// certificate download, counters and the info page. It is served in-band
// by the proxy listener and optionally on its own address.
type Server struct {
	logger          log.ContextLogger
	counters        *stats.Counters
	certificatePath string
	caName          string
	handler         http.Handler
	httpServer      *http.Server
}

func NewServer(options ServerOptions) *Server {
	chiRouter := chi.NewRouter()
	server := &Server{
		logger:          options.Logger,
		counters:        options.Counters,
		certificatePath: options.CertificatePath,
		caName:          options.CAName,
		handler:         chiRouter,
	}
	if options.Listen != "" {
		server.httpServer = &http.Server{
			Addr:    options.Listen,
			Handler: chiRouter,
		}
	}
	cors := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "HEAD"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	})
	chiRouter.Use(cors.Handler)
	chiRouter.HandleFunc("/cert", server.handleCertificate)
	chiRouter.HandleFunc("/certificate", server.handleCertificate)
	chiRouter.Get("/stats", server.handleStats)
	chiRouter.NotFound(server.handleInfo)
	chiRouter.MethodNotAllowed(server.handleInfo)
	return server
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start() error {
	if s.httpServer == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return E.Cause(err, "local api listen error")
	}
	s.logger.Info("local api listening at ", listener.Addr())
	go func() {
		serveErr := s.httpServer.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("local api serve error: ", serveErr)
		}
	}()
	return nil
}

func (s *Server) Close() error {
	return common.Close(common.PtrOrNil(s.httpServer))
}

func (s *Server) handleCertificate(writer http.ResponseWriter, request *http.Request) {
	content, err := os.ReadFile(s.certificatePath)
	if err != nil {
		s.logger.Error("certificate download from ", sHTTP.SourceAddress(request), ": ", err)
		render.Status(request, http.StatusNotFound)
		render.PlainText(writer, request, "Certificate not found")
		return
	}
	writer.Header().Set("Content-Type", "application/x-pem-file")
	writer.Header().Set("Content-Disposition", `attachment; filename="`+s.caName+`.pem"`)
	writer.WriteHeader(http.StatusOK)
	writer.Write(content)
	s.logger.Info("certificate downloaded by ", sHTTP.SourceAddress(request))
}

func (s *Server) handleStats(writer http.ResponseWriter, request *http.Request) {
	render.JSON(writer, request, s.counters.Snapshot())
}
