package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/RJ/bevygap-spaceships/internal/protocol"
)

const (
	// DefaultListenPort is the server's websocket port.
	DefaultListenPort = protocol.ServerPort
	// DefaultServerAddr is where a client connects without a matchmaker.
	DefaultServerAddr = "127.0.0.1:6420"
	// DefaultDBPath is the sqlite session history file. Empty disables it.
	DefaultDBPath = "spaceships.db"
	// DefaultTLSCert and DefaultTLSKey are used when both files exist.
	DefaultTLSCert = "certificates/cert.pem"
	DefaultTLSKey  = "certificates/key.pem"
	// DefaultSnapshotTimeout disconnects a client that hears nothing.
	DefaultSnapshotTimeout = 5 * time.Second
)

// Config holds every tunable for both processes.
type Config struct {
	ListenPort int
	PrivateKey protocol.PrivateKey
	ProtocolID uint64

	MatchmakerURL     string
	CertificateDigest string
	ServerAddr        string
	SnapshotTimeout   time.Duration

	TLSCertPath string
	TLSKeyPath  string
	DBPath      string
	ReplayDir   string

	Location  string
	FQDN      string
	PublicURL string
}

// ListenAddr is the server listen address.
func (c *Config) ListenAddr() string { return ":" + strconv.Itoa(c.ListenPort) }

// TLSEnabled reports whether the server should serve TLS.
func (c *Config) TLSEnabled() bool { return c.TLSCertPath != "" && c.TLSKeyPath != "" }

// Load reads an optional .env file (or the given files) into the
// environment without overriding variables already set, then builds the
// configuration. All invalid values are reported together.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: %s: %w", f, err)
		}
	}

	cfg := &Config{
		ListenPort:      DefaultListenPort,
		PrivateKey:      protocol.DummyPrivateKey,
		ProtocolID:      protocol.ProtocolID,
		MatchmakerURL:   getString("MATCHMAKER_URL", ""),
		ServerAddr:      getString("SERVER_ADDR", DefaultServerAddr),
		SnapshotTimeout: DefaultSnapshotTimeout,
		TLSCertPath:     getString("SPACESHIPS_TLS_CERT", ""),
		TLSKeyPath:      getString("SPACESHIPS_TLS_KEY", ""),
		DBPath:          DefaultDBPath,
		ReplayDir:       getString("SPACESHIPS_REPLAY_DIR", ""),
		Location:        getString("SERVER_LOCATION", "local"),
		FQDN:            getString("SERVER_FQDN", "localhost"),
		PublicURL:       getString("SPACESHIPS_PUBLIC_URL", ""),
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("SERVER_LISTEN_PORT")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 || value > 65535 {
			problems = append(problems, fmt.Sprintf("SERVER_LISTEN_PORT must be a port number, got %q", raw))
		} else {
			cfg.ListenPort = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("LIGHTYEAR_PRIVATE_KEY")); raw != "" {
		key, err := protocol.ParsePrivateKey(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("LIGHTYEAR_PRIVATE_KEY: %v", err))
		} else {
			cfg.PrivateKey = key
		}
	}

	if raw := strings.TrimSpace(os.Getenv("CERTIFICATE_DIGEST")); raw != "" {
		digest, err := protocol.ParseCertificateDigest(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("CERTIFICATE_DIGEST: %v", err))
		} else {
			cfg.CertificateDigest = digest
		}
	}

	if raw := strings.TrimSpace(os.Getenv("CLIENT_SNAPSHOT_TIMEOUT")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			problems = append(problems, fmt.Sprintf("CLIENT_SNAPSHOT_TIMEOUT must be a positive duration, got %q", raw))
		} else {
			cfg.SnapshotTimeout = d
		}
	}

	if raw, ok := os.LookupEnv("SPACESHIPS_DB_PATH"); ok {
		cfg.DBPath = strings.TrimSpace(raw)
	}

	if cfg.MatchmakerURL != "" {
		if u, err := url.Parse(cfg.MatchmakerURL); err != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, fmt.Sprintf("MATCHMAKER_URL must be an absolute URL, got %q", cfg.MatchmakerURL))
		}
	}

	if (cfg.TLSCertPath == "") != (cfg.TLSKeyPath == "") {
		problems = append(problems, "SPACESHIPS_TLS_CERT and SPACESHIPS_TLS_KEY must be provided together")
	}
	if cfg.TLSCertPath == "" && cfg.TLSKeyPath == "" && fileExists(DefaultTLSCert) && fileExists(DefaultTLSKey) {
		cfg.TLSCertPath, cfg.TLSKeyPath = DefaultTLSCert, DefaultTLSKey
	}

	if len(problems) > 0 {
		return nil, errors.New(strings.Join(problems, "; "))
	}
	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
