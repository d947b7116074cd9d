// Package tlsbootstrap creates a private CA and a server certificate so the
// dashboard can be served over https:// without an external PKI.
package tlsbootstrap

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	caCommonName     = "five9cm-local-ca"
	serverCommonName = "five9cm-dashboard"

	caValidity     = 5 * 365 * 24 * time.Hour
	serverValidity = 397 * 24 * time.Hour
)

// DefaultHosts are always present on the server certificate.
var DefaultHosts = []string{"localhost", "127.0.0.1", "::1"}

// KeyPair holds PEM-encoded certificate and private key material.
type KeyPair struct {
	CertPEM []byte
	KeyPEM  []byte
}

// Files lists the paths Init wrote.
type Files struct {
	CACert     string
	CAKey      string
	ServerCert string
	ServerKey  string
}

// GenerateCA creates a self-signed ECDSA P-256 CA.
func GenerateCA() (*KeyPair, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate CA key: %w", err)
	}
	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: caCommonName},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(caValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLenZero:        true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create CA certificate: %w", err)
	}
	return newKeyPair(der, key)
}

// IssueServerCert signs a server-auth leaf for hosts. Entries that parse as IP
// addresses become IP SANs, the rest DNS SANs.
func IssueServerCert(ca *KeyPair, hosts []string) (*KeyPair, error) {
	caCert, caKey, err := parseKeyPair(ca)
	if err != nil {
		return nil, err
	}
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate server key: %w", err)
	}
	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}

	dnsNames, ips := splitHosts(hosts)
	if len(dnsNames) == 0 && len(ips) == 0 {
		return nil, errors.New("server certificate needs at least one host")
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: serverCommonName},
		NotBefore:    now.Add(-time.Minute),
		NotAfter:     now.Add(serverValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     dnsNames,
		IPAddresses:  ips,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, caCert, &key.PublicKey, caKey)
	if err != nil {
		return nil, fmt.Errorf("create server certificate: %w", err)
	}
	return newKeyPair(der, key)
}

// Layout returns where Init writes its files under dir.
func Layout(dir string) Files {
	return Files{
		CACert:     filepath.Join(dir, "ca.pem"),
		CAKey:      filepath.Join(dir, "ca.key"),
		ServerCert: filepath.Join(dir, "server.pem"),
		ServerKey:  filepath.Join(dir, "server.key"),
	}
}

// Init writes ca.pem, ca.key, server.pem and server.key to dir. The server
// certificate covers DefaultHosts plus extraHosts. An existing CA is kept
// unless force is set.
func Init(dir string, extraHosts []string, force bool) (Files, error) {
	files := Layout(dir)
	if !force {
		if _, err := os.Stat(files.CACert); err == nil {
			return Files{}, fmt.Errorf("CA already exists at %s (use --force to overwrite)", files.CACert)
		}
	}

	ca, err := GenerateCA()
	if err != nil {
		return Files{}, err
	}
	server, err := IssueServerCert(ca, mergeHosts(DefaultHosts, extraHosts))
	if err != nil {
		return Files{}, err
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Files{}, fmt.Errorf("create TLS directory: %w", err)
	}
	writes := []struct {
		path string
		data []byte
		perm os.FileMode
	}{
		{files.CACert, ca.CertPEM, 0o644},
		{files.CAKey, ca.KeyPEM, 0o600},
		{files.ServerCert, server.CertPEM, 0o644},
		{files.ServerKey, server.KeyPEM, 0o600},
	}
	for _, w := range writes {
		if err := os.WriteFile(w.path, w.data, w.perm); err != nil {
			return Files{}, fmt.Errorf("write %s: %w", filepath.Base(w.path), err)
		}
	}
	return files, nil
}

func mergeHosts(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, h := range append(append([]string{}, base...), extra...) {
		h = strings.TrimSpace(h)
		key := strings.ToLower(h)
		if h == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, h)
	}
	return out
}

func splitHosts(hosts []string) (dnsNames []string, ips []net.IP) {
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			ips = append(ips, ip)
		} else if h != "" {
			dnsNames = append(dnsNames, h)
		}
	}
	return dnsNames, ips
}

func parseKeyPair(kp *KeyPair) (*x509.Certificate, *ecdsa.PrivateKey, error) {
	if kp == nil {
		return nil, nil, errors.New("missing CA key pair")
	}
	block, _ := pem.Decode(kp.CertPEM)
	if block == nil {
		return nil, nil, errors.New("decode CA certificate PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("parse CA certificate: %w", err)
	}
	keyBlock, _ := pem.Decode(kp.KeyPEM)
	if keyBlock == nil {
		return nil, nil, errors.New("decode CA key PEM")
	}
	key, err := x509.ParseECPrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("parse CA key: %w", err)
	}
	return cert, key, nil
}

func newKeyPair(certDER []byte, key *ecdsa.PrivateKey) (*KeyPair, error) {
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("encode private key: %w", err)
	}
	return &KeyPair{
		CertPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER}),
		KeyPEM:  pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}),
	}, nil
}

func randomSerial() (*big.Int, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial number: %w", err)
	}
	return serial, nil
}
