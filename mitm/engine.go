package mitm

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"

	E "github.com/sagernet/sing/common/exceptions"

	"golang.org/x/net/http2"
)

func (s *Service) serveHTTP2(ctx context.Context, conn net.Conn, session *session) error {
	handler := &engineHandler{
		Service: s,
		session: session,
	}
	http2Server := &http2.Server{}
	http2Server.ServeConn(conn, &http2.ServeConnOpts{
		Context: ctx,
		Handler: handler,
	})
	return nil
}

type engineHandler struct {
	*Service
	session *session
}

func (e *engineHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	e.counters.CountRequest()
	err := e.serveHTTP(request.Context(), writer, request)
	if err != nil {
		if E.IsClosedOrCanceled(err) {
			e.logger.DebugContext(request.Context(), E.Cause(err, "connection closed"))
		} else {
			e.logger.ErrorContext(request.Context(), err)
		}
	}
}

func (e *engineHandler) serveHTTP(ctx context.Context, writer http.ResponseWriter, request *http.Request) error {
	e.logger.DebugContext(ctx, request.Method, " ", request.URL, " ", request.Proto)
	e.prepareRequest(request, e.session)
	response, err := e.transport.RoundTrip(request.WithContext(ctx))
	if err != nil {
		e.counters.CountError()
		http.Error(writer, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return E.Cause(err, "forward ", request.Method, " ", request.URL)
	}
	defer response.Body.Close()
	removeHopHeaders(response.Header)
	for key, values := range response.Header {
		writer.Header()[key] = values
	}
	writer.WriteHeader(response.StatusCode)
	_, err = io.Copy(writer, response.Body)
	if err != nil {
		return E.Cause(err, "write HTTP response")
	}
	return nil
}

type simpleResponseWriter struct {
	statusCode int
	header     http.Header
	body       bytes.Buffer
}

func (w *simpleResponseWriter) Build(request *http.Request) *http.Response {
	if w.statusCode == 0 {
		w.statusCode = http.StatusOK
	}
	return &http.Response{
		StatusCode:    w.statusCode,
		Status:        http.StatusText(w.statusCode),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        w.Header(),
		Body:          io.NopCloser(&w.body),
		ContentLength: int64(w.body.Len()),
		Request:       request,
	}
}

func (w *simpleResponseWriter) Header() http.Header {
	if w.header == nil {
		w.header = make(http.Header)
	}
	return w.header
}

func (w *simpleResponseWriter) Write(b []byte) (int, error) {
	if w.statusCode == 0 {
		w.statusCode = http.StatusOK
	}
	return w.body.Write(b)
}

func (w *simpleResponseWriter) WriteHeader(statusCode int) {
	if w.statusCode == 0 {
		w.statusCode = statusCode
	}
}
