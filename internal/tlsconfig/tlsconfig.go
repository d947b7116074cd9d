// Package tlsconfig builds the TLS configs for the https dashboard and for
// clients dialing it. Both sides default to the material 'five9cm tls init'
// writes to the TLS directory.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ccops/five9cm/internal/paths"
	"github.com/ccops/five9cm/internal/tlsbootstrap"
)

// ErrNoServerCertificate is returned when https is requested and neither
// flags nor the TLS directory provide a certificate.
var ErrNoServerCertificate = errors.New("https listen endpoint requires TLS certificates (run 'five9cm tls init' or provide --tls-cert/--tls-key)")

// ServerFiles names the dashboard certificate and key. Leave both empty to
// use the bootstrapped pair.
type ServerFiles struct {
	CertPath string
	KeyPath  string
}

// now is replaced in tests.
var now = time.Now

// Server loads the dashboard certificate for an https listener. Browsers use
// the same listener, so TLS 1.2 stays enabled.
func Server(files ServerFiles) (*tls.Config, error) {
	certPath := strings.TrimSpace(files.CertPath)
	keyPath := strings.TrimSpace(files.KeyPath)
	switch {
	case certPath == "" && keyPath == "":
		boot, ok := bootstrapped()
		if !ok || !fileExists(boot.ServerCert) || !fileExists(boot.ServerKey) {
			return nil, ErrNoServerCertificate
		}
		certPath, keyPath = boot.ServerCert, boot.ServerKey
	case certPath == "" || keyPath == "":
		return nil, errors.New("--tls-cert and --tls-key must be set together")
	}

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load server certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("parse server certificate %s: %w", certPath, err)
	}
	if expiry := leaf.NotAfter; now().After(expiry) {
		return nil, fmt.Errorf("server certificate %s expired on %s (run 'five9cm tls init --force')", certPath, expiry.UTC().Format(time.DateOnly))
	}
	cert.Leaf = leaf

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{"h2", "http/1.1"},
	}, nil
}

// Client returns the config used to dial an https dashboard. caPath wins;
// otherwise the bootstrapped CA is trusted when present, and the system
// roots when it is not.
func Client(caPath string) (*tls.Config, error) {
	caPath = strings.TrimSpace(caPath)
	if caPath == "" {
		if boot, ok := bootstrapped(); ok && fileExists(boot.CACert) {
			caPath = boot.CACert
		}
	}

	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caPath == "" {
		return cfg, nil
	}
	caPEM, err := os.ReadFile(caPath)
	if err != nil {
		return nil, fmt.Errorf("read CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("no valid certificates found in CA file %s", caPath)
	}
	cfg.RootCAs = pool
	return cfg, nil
}

func bootstrapped() (tlsbootstrap.Files, bool) {
	dir, err := paths.TLSDir()
	if err != nil {
		return tlsbootstrap.Files{}, false
	}
	return tlsbootstrap.Layout(dir), true
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
