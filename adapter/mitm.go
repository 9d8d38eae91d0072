package adapter

import (
	"context"
	"crypto/tls"
	"net"
)

type MITMService interface {
	Service
	ConnectionHandler
}

type ConnectionHandler interface {
	NewConnection(ctx context.Context, conn net.Conn, metadata InboundContext) error
}

type CertificateIssuer interface {
	Issue(ctx context.Context, hostname string) (*tls.Certificate, error)
}
