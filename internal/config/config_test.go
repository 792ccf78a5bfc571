package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/RJ/bevygap-spaceships/internal/protocol"
)

var keys = []string{
	"SERVER_LISTEN_PORT", "LIGHTYEAR_PRIVATE_KEY", "MATCHMAKER_URL", "CERTIFICATE_DIGEST",
	"SERVER_ADDR", "SPACESHIPS_TLS_CERT", "SPACESHIPS_TLS_KEY", "SPACESHIPS_DB_PATH",
	"SPACESHIPS_REPLAY_DIR", "SERVER_LOCATION", "SERVER_FQDN", "SPACESHIPS_PUBLIC_URL",
	"CLIENT_SNAPSHOT_TIMEOUT",
}

// clearEnv unsets every key for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.ListenPort != DefaultListenPort || cfg.ListenAddr() != ":6420" {
		t.Errorf("unexpected port %d", cfg.ListenPort)
	}
	if cfg.PrivateKey != protocol.DummyPrivateKey || cfg.ProtocolID != protocol.ProtocolID {
		t.Error("expected zero key and default protocol id")
	}
	if cfg.ServerAddr != DefaultServerAddr || cfg.SnapshotTimeout != DefaultSnapshotTimeout {
		t.Errorf("unexpected client defaults: %q %v", cfg.ServerAddr, cfg.SnapshotTimeout)
	}
	if cfg.DBPath != DefaultDBPath || cfg.MatchmakerURL != "" || cfg.TLSEnabled() {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_LISTEN_PORT", "7000")
	t.Setenv("LIGHTYEAR_PRIVATE_KEY", "["+strings.Repeat("1, ", 31)+"2]")
	t.Setenv("MATCHMAKER_URL", "https://mm.example.org/wannaplay")
	t.Setenv("CERTIFICATE_DIGEST", strings.Repeat("AB:", 31)+"AB")
	t.Setenv("SPACESHIPS_DB_PATH", "")
	t.Setenv("CLIENT_SNAPSHOT_TIMEOUT", "2s")
	t.Setenv("SPACESHIPS_TLS_CERT", "/tmp/cert.pem")
	t.Setenv("SPACESHIPS_TLS_KEY", "/tmp/key.pem")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.ListenPort != 7000 {
		t.Errorf("expected port 7000, got %d", cfg.ListenPort)
	}
	if cfg.PrivateKey[0] != 1 || cfg.PrivateKey[31] != 2 {
		t.Errorf("private key not parsed: %v", cfg.PrivateKey)
	}
	if cfg.CertificateDigest != strings.Repeat("ab", 32) {
		t.Errorf("digest not normalised: %q", cfg.CertificateDigest)
	}
	if cfg.DBPath != "" {
		t.Error("empty SPACESHIPS_DB_PATH should disable the database")
	}
	if cfg.SnapshotTimeout != 2*time.Second || !cfg.TLSEnabled() {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestLoadAggregatesProblems(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_LISTEN_PORT", "70000")
	t.Setenv("LIGHTYEAR_PRIVATE_KEY", "1,2,3")
	t.Setenv("CLIENT_SNAPSHOT_TIMEOUT", "soon")
	t.Setenv("MATCHMAKER_URL", "not a url")
	t.Setenv("SPACESHIPS_TLS_CERT", "/tmp/cert.pem")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"SERVER_LISTEN_PORT", "LIGHTYEAR_PRIVATE_KEY", "CLIENT_SNAPSHOT_TIMEOUT", "MATCHMAKER_URL", "SPACESHIPS_TLS_KEY"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	body := "SERVER_LOCATION=eu-west\nSERVER_FQDN=play.example.org\nSERVER_LISTEN_PORT=6500\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SERVER_LISTEN_PORT", "6600")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Location != "eu-west" || cfg.FQDN != "play.example.org" {
		t.Errorf("dotenv values not loaded: %q %q", cfg.Location, cfg.FQDN)
	}
	if cfg.ListenPort != 6600 {
		t.Errorf("environment must win over the file, got %d", cfg.ListenPort)
	}
}
