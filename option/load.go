package option

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	C "github.com/examproxy/sebproxy/constant"
	E "github.com/sagernet/sing/common/exceptions"
	"github.com/sagernet/sing/common/json"
	"github.com/sagernet/sing/common/json/badoption"

	"gopkg.in/yaml.v3"
)

// Read decodes a JSON or YAML configuration file. A missing file yields
// an empty configuration.
func Read(path string) (Options, error) {
	var options Options
	if path == "" {
		return options, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return options, nil
		}
		return options, E.Cause(err, "read config at ", path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		content, err = yamlToJSON(content)
		if err != nil {
			return options, E.Cause(err, "decode yaml config at ", path)
		}
	}
	err = options.UnmarshalJSON(content)
	if err != nil {
		return options, E.Cause(err, "decode config at ", path)
	}
	return options, nil
}

func yamlToJSON(content []byte) ([]byte, error) {
	var document map[string]any
	err := yaml.Unmarshal(content, &document)
	if err != nil {
		return nil, err
	}
	if document == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(document)
}

// ApplyEnvironment lets the deployment platform pick the port.
func (o *Options) ApplyEnvironment(lookup func(string) (string, bool)) error {
	portString, loaded := lookup(C.EnvironmentPort)
	if !loaded || portString == "" {
		return nil
	}
	port, err := strconv.ParseUint(portString, 10, 16)
	if err != nil {
		return E.Cause(err, "parse ", C.EnvironmentPort)
	}
	o.Inbound.ListenPort = uint16(port)
	return nil
}

func (o *Options) ApplyDefaults() {
	if o.Log == nil {
		o.Log = &LogOptions{}
	}
	if o.Log.Level == "" {
		o.Log.Level = "info"
	}
	if o.Inbound.Listen == "" {
		o.Inbound.Listen = "0.0.0.0"
	}
	if o.Inbound.ListenPort == 0 {
		o.Inbound.ListenPort = C.DefaultListenPort
	}
	if o.Inbound.PortRetry == 0 {
		o.Inbound.PortRetry = C.DefaultPortRetry
	}
	if o.Certificate.Directory == "" {
		o.Certificate.Directory = C.DefaultCertificateDirectory
	}
	if o.Certificate.CacheSize == 0 {
		o.Certificate.CacheSize = C.DefaultCertificateCacheSize
	}
	if o.Certificate.CAName == "" {
		o.Certificate.CAName = C.DefaultCAName
	}
	if len(o.Policy.AllowedDomains) == 0 && o.Policy.AllowedDomainsPath == "" {
		o.Policy.AllowedDomains = append([]string(nil), C.DefaultAllowedDomains...)
	}
	if len(o.Policy.StaticExtensions) == 0 {
		o.Policy.StaticExtensions = append([]string(nil), C.DefaultStaticExtensions...)
	}
	if len(o.Policy.InjectedHeaders) == 0 {
		for _, header := range C.DefaultInjectedHeaders {
			o.Policy.InjectedHeaders = append(o.Policy.InjectedHeaders, HeaderOptions{Name: header.Name, Value: header.Value})
		}
	}
	if o.Outbound.DialTimeout == 0 {
		o.Outbound.DialTimeout = badoption.Duration(C.TCPConnectTimeout)
	}
	if o.Outbound.MaxConns == 0 {
		o.Outbound.MaxConns = C.MaxConns
	}
	if o.Outbound.MaxConnsPerHost == 0 {
		o.Outbound.MaxConnsPerHost = C.MaxConnsPerHost
	}
	if o.Outbound.IdleTimeout == 0 {
		o.Outbound.IdleTimeout = badoption.Duration(C.IdleConnTimeout)
	}
	if o.DNS.TTL == 0 {
		o.DNS.TTL = badoption.Duration(C.DNSCacheTTL)
	}
	if o.DNS.CacheCeiling == 0 {
		o.DNS.CacheCeiling = C.DNSCacheCeiling
	}
}

func (o *Options) Validate() error {
	if o.Certificate.CacheSize < 0 {
		return E.New("certificate.cache_size must not be negative")
	}
	if o.Inbound.PortRetry < 1 {
		return E.New("inbound.port_retry must be positive")
	}
	if time.Duration(o.DNS.TTL) < 0 {
		return E.New("dns.ttl must not be negative")
	}
	for i, header := range o.Policy.InjectedHeaders {
		if header.Name == "" {
			return E.New("policy.injected_headers[", i, "]: missing name")
		}
	}
	return nil
}

// Load reads, overrides and completes the configuration in one step.
func Load(path string) (Options, error) {
	options, err := Read(path)
	if err != nil {
		return options, err
	}
	err = options.ApplyEnvironment(os.LookupEnv)
	if err != nil {
		return options, err
	}
	options.ApplyDefaults()
	return options, options.Validate()
}
