package policy

import (
	"strings"

	"github.com/examproxy/sebproxy/option"
	"github.com/sagernet/sing/common"
	E "github.com/sagernet/sing/common/exceptions"
)

// Engine decides which hosts are intercepted. It is immutable after
// construction and safe for concurrent use.
type Engine struct {
	domains    []string
	extensions []string
}

func NewEngine(options option.PolicyOptions) (*Engine, error) {
	domains := common.Map([]string(options.AllowedDomains), normalizeHostname)
	if options.AllowedDomainsPath != "" {
		fileDomains, err := readDomainListFile(options.AllowedDomainsPath)
		if err != nil {
			return nil, E.Cause(err, "load allowed domains")
		}
		domains = append(domains, fileDomains...)
	}
	domains = common.Uniq(common.Filter(domains, func(it string) bool {
		return it != ""
	}))
	return &Engine{
		domains:    domains,
		extensions: common.Map([]string(options.StaticExtensions), strings.ToLower),
	}, nil
}

// Classify reports whether a request to hostname for path must be
// intercepted. An empty path means the path is not known yet.
func (e *Engine) Classify(hostname string, path string) bool {
	hostname = normalizeHostname(hostname)
	if hostname == "" {
		return false
	}
	if path != "" && e.IsStaticAsset(path) {
		return false
	}
	return e.MatchDomain(hostname)
}

func (e *Engine) MatchDomain(hostname string) bool {
	for _, domain := range e.domains {
		if hostname == domain || strings.HasSuffix(hostname, "."+domain) {
			return true
		}
	}
	return false
}

func (e *Engine) IsStaticAsset(path string) bool {
	if index := strings.IndexAny(path, "?#"); index >= 0 {
		path = path[:index]
	}
	path = strings.ToLower(path)
	for _, extension := range e.extensions {
		if strings.HasSuffix(path, extension) {
			return true
		}
	}
	return false
}

func (e *Engine) AllowedDomains() []string {
	return e.domains
}

func normalizeHostname(hostname string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(hostname)), ".")
}
