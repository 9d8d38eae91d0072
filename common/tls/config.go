package tls

import (
	"crypto/tls"

	E "github.com/sagernet/sing/common/exceptions"
)

type (
	STDConfig       = tls.Config
	STDConn         = tls.Conn
	ConnectionState = tls.ConnectionState
)

const (
	ProtocolHTTP11 = "http/1.1"
	ProtocolHTTP2  = "h2"
)

func ParseTLSVersion(version string) (uint16, error) {
	switch version {
	case "1.0":
		return tls.VersionTLS10, nil
	case "1.1":
		return tls.VersionTLS11, nil
	case "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, E.New("unknown tls version:", version)
	}
}

// ServerConfig terminates client TLS with a single leaf certificate.
func ServerConfig(leaf *tls.Certificate, enableHTTP2 bool) *tls.Config {
	config := &tls.Config{
		Certificates: []tls.Certificate{*leaf},
		MinVersion:   tls.VersionTLS10,
	}
	if enableHTTP2 {
		config.NextProtos = []string{ProtocolHTTP2, ProtocolHTTP11}
	} else {
		config.NextProtos = []string{ProtocolHTTP11}
	}
	return config
}

func ClientConfig(insecure bool, minVersion string) (*tls.Config, error) {
	config := &tls.Config{
		InsecureSkipVerify: insecure,
	}
	if minVersion != "" {
		version, err := ParseTLSVersion(minVersion)
		if err != nil {
			return nil, err
		}
		config.MinVersion = version
	}
	return config, nil
}
