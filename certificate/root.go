package certificate

import (
	"crypto/tls"
	"crypto/x509/pkix"
	"os"
	"path/filepath"

	sTLS "github.com/examproxy/sebproxy/common/tls"
	C "github.com/examproxy/sebproxy/constant"
	E "github.com/sagernet/sing/common/exceptions"
)

// Root is the signing authority loaded once at startup.
type Root struct {
	Certificate     *tls.Certificate
	CertificatePEM  []byte
	CertificatePath string
	KeyPath         string
}

func LoadRoot(directory string) (*Root, error) {
	keyPath := filepath.Join(directory, C.CAKeyFileName)
	certificatePath := filepath.Join(directory, C.CACertificateFileName)
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, E.Cause(err, "read root key")
	}
	certificatePEM, err := os.ReadFile(certificatePath)
	if err != nil {
		return nil, E.Cause(err, "read root certificate")
	}
	certificate, err := sTLS.ParseKeyPair(certificatePEM, keyPEM)
	if err != nil {
		return nil, E.Cause(err, "parse root key pair")
	}
	if !certificate.Leaf.IsCA {
		return nil, E.New("root certificate is not a CA: ", certificate.Leaf.Subject.CommonName)
	}
	return &Root{
		Certificate:     certificate,
		CertificatePEM:  certificatePEM,
		CertificatePath: certificatePath,
		KeyPath:         keyPath,
	}, nil
}

func (r *Root) Subject() pkix.Name {
	return r.Certificate.Leaf.Subject
}

// WriteRoot stores a freshly generated authority. Existing files are
// never overwritten.
func WriteRoot(directory string, keyPair *sTLS.KeyPair) error {
	err := os.MkdirAll(directory, 0o755)
	if err != nil {
		return err
	}
	keyPath := filepath.Join(directory, C.CAKeyFileName)
	certificatePath := filepath.Join(directory, C.CACertificateFileName)
	for _, path := range []string{keyPath, certificatePath} {
		if _, err = os.Stat(path); err == nil {
			return E.New("refusing to overwrite ", path)
		}
	}
	err = os.WriteFile(keyPath, keyPair.KeyPEM, 0o600)
	if err != nil {
		return err
	}
	return os.WriteFile(certificatePath, keyPair.CertificatePEM, 0o644)
}
