package tlsconfig

import (
	"crypto/tls"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ccops/five9cm/internal/paths"
	"github.com/ccops/five9cm/internal/tlsbootstrap"
)

func TestServerWithoutMaterial(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if _, err := Server(ServerFiles{}); !errors.Is(err, ErrNoServerCertificate) {
		t.Fatalf("expected ErrNoServerCertificate, got %v", err)
	}
}

func TestServerAndClientUseBootstrappedMaterial(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	bootstrap(t)

	serverCfg, err := Server(ServerFiles{})
	if err != nil {
		t.Fatalf("Server returned error: %v", err)
	}
	if len(serverCfg.Certificates) != 1 || serverCfg.Certificates[0].Leaf == nil {
		t.Fatalf("expected one parsed certificate, got %+v", serverCfg.Certificates)
	}
	if serverCfg.MinVersion != tls.VersionTLS12 {
		t.Fatalf("unexpected min version %x", serverCfg.MinVersion)
	}

	clientCfg, err := Client("")
	if err != nil {
		t.Fatalf("Client returned error: %v", err)
	}
	if clientCfg.RootCAs == nil {
		t.Fatal("expected the bootstrapped CA to be trusted")
	}

	ln, err := tls.Listen("tcp", "127.0.0.1:0", serverCfg)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	done := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			done <- err
			return
		}
		defer conn.Close()
		done <- conn.(*tls.Conn).Handshake()
	}()

	conn, err := tls.Dial("tcp", ln.Addr().String(), clientCfg)
	if err != nil {
		t.Fatalf("client dial: %v", err)
	}
	defer conn.Close()
	if err := <-done; err != nil {
		t.Fatalf("server handshake: %v", err)
	}
}

func TestServerRequiresCompletePair(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	files := bootstrap(t)

	for _, pair := range []ServerFiles{
		{CertPath: files.ServerCert},
		{KeyPath: files.ServerKey},
	} {
		_, err := Server(pair)
		if err == nil || !strings.Contains(err.Error(), "must be set together") {
			t.Fatalf("Server(%+v) = %v, want pair error", pair, err)
		}
	}

	if _, err := Server(ServerFiles{CertPath: files.ServerCert, KeyPath: files.ServerKey}); err != nil {
		t.Fatalf("explicit pair returned error: %v", err)
	}
}

func TestServerRejectsExpiredCertificate(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	bootstrap(t)

	orig := now
	now = func() time.Time { return time.Now().AddDate(2, 0, 0) }
	t.Cleanup(func() { now = orig })

	_, err := Server(ServerFiles{})
	if err == nil || !strings.Contains(err.Error(), "expired") || !strings.Contains(err.Error(), "tls init --force") {
		t.Fatalf("expected expiry error, got %v", err)
	}
}

func TestServerErrorsOnBadExplicitPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if _, err := Server(ServerFiles{CertPath: "/nonexistent/server.pem", KeyPath: "/nonexistent/server.key"}); err == nil {
		t.Fatal("expected load error for missing files")
	}
}

func TestClientCA(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Client("")
	if err != nil {
		t.Fatalf("Client returned error: %v", err)
	}
	if cfg.RootCAs != nil {
		t.Fatal("expected system roots without a bootstrapped CA")
	}

	notPEM := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(notPEM, []byte("not a certificate"), 0o644); err != nil {
		t.Fatalf("write CA: %v", err)
	}
	if _, err := Client(notPEM); err == nil || !strings.Contains(err.Error(), "no valid certificates") {
		t.Fatalf("expected invalid CA error, got %v", err)
	}
	if _, err := Client(filepath.Join(t.TempDir(), "missing.pem")); err == nil {
		t.Fatal("expected missing CA error")
	}
}

func bootstrap(t *testing.T) tlsbootstrap.Files {
	t.Helper()
	dir, err := paths.TLSDir()
	if err != nil {
		t.Fatalf("resolve TLS dir: %v", err)
	}
	files, err := tlsbootstrap.Init(dir, nil, false)
	if err != nil {
		t.Fatalf("tlsbootstrap.Init: %v", err)
	}
	if files != tlsbootstrap.Layout(dir) {
		t.Fatalf("Init wrote %+v, Layout reports %+v", files, tlsbootstrap.Layout(dir))
	}
	return files
}
