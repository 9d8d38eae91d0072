package localapi

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/go-chi/render"
)

var infoTemplate = template.Must(template.New("info").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>SEB MITM Proxy Server</title>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; background: #f5f7fa; padding: 40px; }
    .container { max-width: 600px; margin: 0 auto; background: #fff; border-radius: 12px; padding: 32px; box-shadow: 0 2px 12px rgba(0, 0, 0, 0.08); }
    h1 { color: #212529; margin-bottom: 4px; }
    .subtitle { color: #6c757d; margin-bottom: 24px; }
    .error { background: #fff5f5; border-left: 4px solid #e03131; padding: 16px; margin-bottom: 20px; }
    .download { background: #f1f8ff; border-left: 4px solid #1971c2; padding: 16px; margin-bottom: 20px; }
    .stats { background: #f8f9fa; padding: 16px; color: #495057; font-size: 14px; line-height: 1.8; }
  </style>
</head>
<body>
  <div class="container">
    <h1>SEB MITM Proxy Server</h1>
    <div class="subtitle">For Safe Exam Browser only</div>
    <div class="error">
      <strong>Invalid Request</strong><br>
      This is a forward proxy server, not a web server.
    </div>
    <div class="download">
      <strong>Download Certificate:</strong><br>
      <a href="/cert">Click here to download CA certificate</a>
    </div>
    <div class="stats">
      <strong>Stats:</strong><br>
      Total Requests: {{.TotalRequests}}<br>
      HTTP: {{.HTTPRequests}} | HTTPS: {{.HTTPSRequests}}
    </div>
  </div>
</body>
</html>
`))

func (s *Server) handleInfo(writer http.ResponseWriter, request *http.Request) {
	s.logger.Debug("info page request: ", request.URL)
	var content bytes.Buffer
	err := infoTemplate.Execute(&content, s.counters.Snapshot())
	if err != nil {
		render.Status(request, http.StatusInternalServerError)
		render.PlainText(writer, request, err.Error())
		return
	}
	render.HTML(writer, request, content.String())
}
