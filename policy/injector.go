package policy

import (
	"net/http"
	"strings"

	"github.com/examproxy/sebproxy/common/stats"
	"github.com/examproxy/sebproxy/option"
)

type Injector struct {
	engine   *Engine
	headers  []option.HeaderOptions
	counters *stats.Counters
}

func NewInjector(engine *Engine, headers []option.HeaderOptions, counters *stats.Counters) *Injector {
	return &Injector{
		engine:   engine,
		headers:  headers,
		counters: counters,
	}
}

// Inject returns header unchanged when the request is not intercepted.
// Otherwise it returns a copy overlaid with the configured headers; the
// input is never modified.
func (i *Injector) Inject(header http.Header, host string, path string) http.Header {
	if !i.engine.Classify(host, path) {
		return header
	}
	injected := header.Clone()
	if injected == nil {
		injected = make(http.Header, len(i.headers))
	}
	for _, pair := range i.headers {
		for key := range injected {
			if strings.EqualFold(key, pair.Name) {
				delete(injected, key)
			}
		}
		injected.Set(pair.Name, pair.Value)
	}
	if i.counters != nil {
		i.counters.CountInjected(len(i.headers))
	}
	return injected
}

func (i *Injector) HeaderNames() []string {
	names := make([]string, 0, len(i.headers))
	for _, pair := range i.headers {
		names = append(names, pair.Name)
	}
	return names
}
