package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"otp-guard/internal/config"
)

func TestNewTLSManagerProductionNeedsCertificate(t *testing.T) {
	_, err := NewTLSManager(config.ServerConfig{AutoCertDir: t.TempDir()}, false, zap.NewNop())
	if !errors.Is(err, ErrNoCertificate) {
		t.Fatalf("expected ErrNoCertificate, got %v", err)
	}
}

func TestSelfSignedFallbackInDevelopment(t *testing.T) {
	dir := t.TempDir()
	m, err := NewTLSManager(config.ServerConfig{AutoCertDir: dir, Domain: "otp.local"}, true, zap.NewNop())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	cert, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: "localhost"})
	if err != nil {
		t.Fatalf("get certificate: %v", err)
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("parse leaf: %v", err)
	}
	if err := leaf.VerifyHostname("otp.local"); err != nil {
		t.Fatalf("expected the configured domain in the SANs: %v", err)
	}
	if err := leaf.VerifyHostname("127.0.0.1"); err != nil {
		t.Fatalf("expected loopback in the SANs: %v", err)
	}

	again, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: "localhost"})
	if err != nil || again != cert {
		t.Fatal("expected the generated certificate to be reused")
	}
	if _, err := os.Stat(filepath.Join(dir, "dev-key.pem")); err != nil {
		t.Fatalf("expected the key to be cached on disk: %v", err)
	}
}

func TestDevCertGeneratorReusesCachedPair(t *testing.T) {
	dir := t.TempDir()
	gen := NewDevCertGenerator(dir, zap.NewNop())

	first, err := gen.GenerateCert([]string{"localhost"})
	if err != nil {
		t.Fatalf("first generate: %v", err)
	}
	second, err := gen.GenerateCert([]string{"localhost"})
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}
	if string(first.Certificate[0]) != string(second.Certificate[0]) {
		t.Fatal("expected the cached certificate to be loaded")
	}
}

func TestFileCertificateWins(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewDevCertGenerator(dir, zap.NewNop()).GenerateCert([]string{"files.local"}); err != nil {
		t.Fatalf("seed pair: %v", err)
	}

	cfg := config.ServerConfig{
		CertFile:    filepath.Join(dir, "dev-cert.pem"),
		KeyFile:     filepath.Join(dir, "dev-key.pem"),
		AutoCertDir: t.TempDir(),
	}
	m, err := NewTLSManager(cfg, false, zap.NewNop())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	cert, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: "files.local"})
	if err != nil {
		t.Fatalf("get certificate: %v", err)
	}
	leaf, _ := x509.ParseCertificate(cert.Certificate[0])
	if err := leaf.VerifyHostname("files.local"); err != nil {
		t.Fatalf("expected the file certificate: %v", err)
	}

	tlsCfg := m.GetTLSConfig()
	if tlsCfg.MinVersion != tls.VersionTLS12 || m.GetAutocertManager() != nil {
		t.Fatal("unexpected TLS config")
	}
}

func TestNewTLSManagerBadKeyPair(t *testing.T) {
	cfg := config.ServerConfig{CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem"}
	if _, err := NewTLSManager(cfg, true, zap.NewNop()); err == nil {
		t.Fatal("expected an error for an unreadable key pair")
	}
}
