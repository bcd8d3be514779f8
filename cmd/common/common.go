// Package common provides shared utilities for CipherTrace CLI commands.
//
// This package contains the YAML configuration shared by the standalone
// service binaries (gateway, oracle) plus helper functions to reduce code
// duplication:
//
//   - Key loading and generation for the service's ECDSA signing key
//   - Store construction (in-memory or Postgres)
//   - Sealer construction (hex simulation or BGV)
//   - Structured logger setup
package common

import (
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"gopkg.in/yaml.v3"

	"github.com/loserner/CipherTrace/ledger"
	"github.com/loserner/CipherTrace/seal"
	"github.com/loserner/CipherTrace/services"
)

// Config holds the settings shared by the gateway and oracle binaries.
// Command-line flags override values loaded from the YAML file.
type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	EnablePprof bool   `yaml:"enable_pprof"`
	LogJSON     bool   `yaml:"log_json"`
	LogDebug    bool   `yaml:"log_debug"`

	// Seal selects the payload codec: "simulation" (hex) or "bgv".
	Seal string `yaml:"seal"`

	// Store selects persistence: "memory" or "postgres".
	Store    string                  `yaml:"store"`
	Postgres services.PostgresConfig `yaml:"postgres"`

	Keys struct {
		// SigningKey is the hex-encoded ECDSA private key of the service
		// identity. Generated at startup if empty.
		SigningKey string `yaml:"signing_key"`
	} `yaml:"keys"`

	Ledger struct {
		// Admin and Oracle are the privileged addresses. Empty means the
		// service's own signing address.
		Admin        string `yaml:"admin"`
		Oracle       string `yaml:"oracle"`
		MaxBatchSize int    `yaml:"max_batch_size"`

		Scoring ledger.ScoringConfig `yaml:"scoring"`
	} `yaml:"ledger"`

	Oracle struct {
		// Interval between scans for pending analysis requests.
		Interval   time.Duration `yaml:"interval"`
		BatchLimit int           `yaml:"batch_limit"`
		// Embedded runs the oracle inside the gateway process.
		Embedded bool `yaml:"embedded"`
	} `yaml:"oracle"`
}

// DefaultConfig returns a config with sane development defaults: in-memory
// store, hex simulation sealer, embedded oracle.
func DefaultConfig() *Config {
	cfg := &Config{
		HTTPAddr: ":3001",
		Seal:     "simulation",
		Store:    "memory",
	}
	cfg.Ledger.Scoring = ledger.DefaultScoringConfig()
	cfg.Oracle.Interval = time.Second
	cfg.Oracle.Embedded = true
	return cfg
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// LoadOrGenerateSigningKey loads an ECDSA private key from a hex string, or
// generates a new key if hexKey is empty.
func LoadOrGenerateSigningKey(hexKey string) (*ecdsa.PrivateKey, error) {
	if hexKey != "" {
		key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid signing key: %w", err)
		}
		return key, nil
	}
	return ethcrypto.GenerateKey()
}

// ResolveAddress parses an optional hex address, falling back to the given
// default when the string is empty.
func ResolveAddress(s string, fallback ethcommon.Address) (ethcommon.Address, error) {
	if s == "" {
		return fallback, nil
	}
	if !ethcommon.IsHexAddress(s) {
		return ethcommon.Address{}, fmt.Errorf("invalid address: %q", s)
	}
	return ethcommon.HexToAddress(s), nil
}

// NewStore creates the ledger store named by cfg.Store. The returned closer
// releases the store's resources.
func NewStore(cfg *Config) (ledger.Store, func() error, error) {
	switch cfg.Store {
	case "", "memory":
		return ledger.NewMemoryStore(), func() error { return nil }, nil
	case "postgres":
		store, err := services.NewPostgresStore(&cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres store: %w", err)
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// ValidateStandaloneOracle rejects configurations a standalone oracle
// cannot serve. The BGV sealer generates its key material in-process, so an
// oracle in its own process can never reveal payloads sealed by the
// gateway; those deployments must run the embedded oracle instead.
func ValidateStandaloneOracle(cfg *Config) error {
	if cfg.Seal == "bgv" {
		return fmt.Errorf("seal %q holds its keys in-process and cannot reveal gateway-sealed payloads from a separate process; use the gateway's embedded oracle (oracle.embedded: true)", cfg.Seal)
	}
	return nil
}

// NewSealer creates the payload codec named by cfg.Seal.
func NewSealer(cfg *Config) (seal.Sealer, error) {
	switch cfg.Seal {
	case "", "simulation", "hex":
		return seal.NewHexSealer(), nil
	case "bgv":
		return seal.NewBGVSealer()
	default:
		return nil, fmt.Errorf("unknown sealer %q", cfg.Seal)
	}
}

// NewLogger builds the process logger. JSON output is intended for
// deployments, text for local development.
func NewLogger(cfg *Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.LogDebug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
