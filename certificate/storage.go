package certificate

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"strings"

	sTLS "github.com/examproxy/sebproxy/common/tls"
	C "github.com/examproxy/sebproxy/constant"
	E "github.com/sagernet/sing/common/exceptions"
)

// Storage keeps one certificate and key file per host name in a flat
// directory.
type Storage struct {
	directory string
}

func NewStorage(directory string) *Storage {
	return &Storage{directory: directory}
}

func (s *Storage) Directory() string {
	return s.directory
}

func (s *Storage) paths(hostname string) (certificatePath string, keyPath string) {
	return filepath.Join(s.directory, hostname+C.LeafCertificateSuffix),
		filepath.Join(s.directory, hostname+C.LeafKeySuffix)
}

// Load returns os.ErrNotExist when either file is missing.
func (s *Storage) Load(hostname string) (*tls.Certificate, error) {
	certificatePath, keyPath := s.paths(hostname)
	certificatePEM, err := os.ReadFile(certificatePath)
	if err != nil {
		return nil, err
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}
	certificate, err := sTLS.ParseKeyPair(certificatePEM, keyPEM)
	if err != nil {
		return nil, E.Cause(err, "parse stored certificate for ", hostname)
	}
	return certificate, nil
}

func (s *Storage) Store(hostname string, keyPair *sTLS.KeyPair) error {
	certificatePath, keyPath := s.paths(hostname)
	err := writeFileAtomic(keyPath, keyPair.KeyPEM, 0o600)
	if err != nil {
		return E.Cause(err, "write key for ", hostname)
	}
	err = writeFileAtomic(certificatePath, keyPair.CertificatePEM, 0o644)
	if err != nil {
		return E.Cause(err, "write certificate for ", hostname)
	}
	return nil
}

// HostnameFromPath maps a file in the storage directory back to its host
// name, or returns false for unrelated files.
func (s *Storage) HostnameFromPath(path string) (string, bool) {
	if filepath.Dir(filepath.Clean(path)) != filepath.Clean(s.directory) {
		return "", false
	}
	name := filepath.Base(path)
	switch name {
	case C.CAKeyFileName, C.CACertificateFileName:
		return "", false
	}
	if hostname, found := strings.CutSuffix(name, C.LeafKeySuffix); found {
		return hostname, hostname != ""
	}
	if hostname, found := strings.CutSuffix(name, C.LeafCertificateSuffix); found {
		return hostname, hostname != ""
	}
	return "", false
}

func writeFileAtomic(path string, content []byte, perm os.FileMode) error {
	file, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	temporaryPath := file.Name()
	_, err = file.Write(content)
	if err == nil {
		err = file.Chmod(perm)
	}
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(temporaryPath, path)
	}
	if err != nil {
		os.Remove(temporaryPath)
		return err
	}
	return nil
}
