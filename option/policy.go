package option

import "github.com/sagernet/sing/common/json/badoption"

type PolicyOptions struct {
	AllowedDomains     badoption.Listable[string] `json:"allowed_domains,omitempty"`
	AllowedDomainsPath string                     `json:"allowed_domains_path,omitempty"`
	StaticExtensions   badoption.Listable[string] `json:"static_extensions,omitempty"`
	InjectedHeaders    []HeaderOptions            `json:"injected_headers,omitempty"`
}

type HeaderOptions struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}
