package tls

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/binary"
	"encoding/pem"
	"math/big"
	"net/netip"
	"time"

	C "github.com/examproxy/sebproxy/constant"
	E "github.com/sagernet/sing/common/exceptions"
)

type KeyPair struct {
	Certificate    *tls.Certificate
	CertificatePEM []byte
	KeyPEM         []byte
}

// LeafSerialNumber is fixed per host name: reissuing for the same name
// yields the same serial.
func LeafSerialNumber(serverName string) *big.Int {
	sum := sha256.Sum256([]byte(serverName))
	return new(big.Int).SetUint64(binary.BigEndian.Uint64(sum[:8]) >> 1)
}

func GenerateKeyPair(timeFunc func() time.Time, serverName string, parent *tls.Certificate) (*KeyPair, error) {
	if parent == nil {
		return nil, E.New("missing parent certificate")
	}
	if timeFunc == nil {
		timeFunc = time.Now
	}
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	now := timeFunc()
	template := &x509.Certificate{
		SerialNumber:          LeafSerialNumber(serverName),
		SignatureAlgorithm:    x509.SHA256WithRSA,
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(C.LeafValidity),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  false,
		Subject: pkix.Name{
			CommonName: serverName,
		},
	}
	if address, parseErr := netip.ParseAddr(serverName); parseErr == nil {
		template.IPAddresses = append(template.IPAddresses, address.AsSlice())
	} else {
		template.DNSNames = []string{serverName}
	}
	if parent.Leaf == nil {
		parent.Leaf, err = x509.ParseCertificate(parent.Certificate[0])
		if err != nil {
			return nil, E.Cause(err, "parse parent certificate")
		}
	}
	return createKeyPair(template, parent.Leaf, key, parent.PrivateKey)
}

// GenerateCAKeyPair creates a self-signed authority valid for the given
// number of years.
func GenerateCAKeyPair(timeFunc func() time.Time, subject pkix.Name, years int) (*KeyPair, error) {
	if timeFunc == nil {
		timeFunc = time.Now
	}
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	spkiASN1, err := x509.MarshalPKIXPublicKey(key.Public())
	if err != nil {
		return nil, err
	}
	var spki struct {
		Algorithm        pkix.AlgorithmIdentifier
		SubjectPublicKey asn1.BitString
	}
	_, err = asn1.Unmarshal(spkiASN1, &spki)
	if err != nil {
		return nil, err
	}
	skid := sha1.Sum(spki.SubjectPublicKey.Bytes)
	now := timeFunc()
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		SignatureAlgorithm:    x509.SHA256WithRSA,
		Subject:               subject,
		SubjectKeyId:          skid[:],
		NotBefore:             now,
		NotAfter:              now.AddDate(years, 0, 0),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	return createKeyPair(template, template, key, key)
}

func createKeyPair(template *x509.Certificate, parent *x509.Certificate, key *rsa.PrivateKey, parentKey crypto.PrivateKey) (*KeyPair, error) {
	publicDer, err := x509.CreateCertificate(rand.Reader, template, parent, key.Public(), parentKey)
	if err != nil {
		return nil, err
	}
	privateDer, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, err
	}
	publicPem := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: publicDer})
	privPem := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privateDer})
	keyPair, err := ParseKeyPair(publicPem, privPem)
	if err != nil {
		return nil, err
	}
	return &KeyPair{
		Certificate:    keyPair,
		CertificatePEM: publicPem,
		KeyPEM:         privPem,
	}, nil
}

// ParseKeyPair is tls.X509KeyPair with the leaf already parsed.
func ParseKeyPair(certificatePEM []byte, keyPEM []byte) (*tls.Certificate, error) {
	keyPair, err := tls.X509KeyPair(certificatePEM, keyPEM)
	if err != nil {
		return nil, err
	}
	if keyPair.Leaf == nil {
		keyPair.Leaf, err = x509.ParseCertificate(keyPair.Certificate[0])
		if err != nil {
			return nil, err
		}
	}
	return &keyPair, nil
}
