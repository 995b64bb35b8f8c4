package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Run modes.
const (
	ModeBoth   = "both"
	ModeKeeper = "keeper"
	ModeAPI    = "api"
)

// Ledger types.
const (
	LedgerLocal = "local"
	LedgerHTTP  = "http"
)

// LoadEnv loads .env files into the process environment without
// overriding variables that are already set. With no paths it reads ".env"
// in the working directory if present.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		if _, err := os.Stat(".env"); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		paths = []string{".env"}
	}
	if err := godotenv.Load(paths...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// Load loads configuration from YAML file and environment variables.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	data, err := os.ReadFile(absPath) // #nosec G304 -- Path sanitized with filepath.Clean and filepath.Abs
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse expands environment variables in data, decodes it and applies defaults.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// applyDefaults sets default values for optional fields.
func applyDefaults(cfg *Config) {
	if cfg.Mode == "" {
		cfg.Mode = ModeBoth
	}

	if cfg.Keeper.Interval == 0 {
		cfg.Keeper.Interval = Duration(30e9)
	}
	if cfg.Keeper.ChangeThreshold == "" {
		cfg.Keeper.ChangeThreshold = "0.01"
	}
	if cfg.Keeper.MinSubmissionDelay == 0 {
		cfg.Keeper.MinSubmissionDelay = Duration(500e6)
	}
	if cfg.Keeper.BaseBackoff == 0 {
		cfg.Keeper.BaseBackoff = Duration(5e9)
	}
	if cfg.Keeper.MaxBackoff == 0 {
		cfg.Keeper.MaxBackoff = Duration(300e9)
	}

	if cfg.Aggregator.Mode == "" {
		cfg.Aggregator.Mode = "average"
	}
	if cfg.Aggregator.MaxAge == 0 {
		cfg.Aggregator.MaxAge = Duration(60e9)
	}
	if cfg.Aggregator.MinimumSources == 0 {
		cfg.Aggregator.MinimumSources = 1
	}
	if cfg.Aggregator.FetchTimeout == 0 {
		cfg.Aggregator.FetchTimeout = Duration(5e9)
	}

	if cfg.Ledger.Type == "" {
		cfg.Ledger.Type = LedgerLocal
	}
	if cfg.Ledger.HTTP.Timeout == 0 {
		cfg.Ledger.HTTP.Timeout = Duration(10e9)
	}

	for i := range cfg.Pairs {
		p := &cfg.Pairs[i]
		if p.ID == "" && p.Base != "" && p.Quote != "" {
			p.ID = p.Base + "/" + p.Quote
		}
	}

	if cfg.API.Addr == "" {
		cfg.API.Addr = ":8080"
	}
	if cfg.API.ReadTimeout == 0 {
		cfg.API.ReadTimeout = Duration(15e9)
	}
	if cfg.API.WriteTimeout == 0 {
		cfg.API.WriteTimeout = Duration(15e9)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9091"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// NormalizeMode converts mode string to lowercase.
func (c *Config) NormalizeMode() string {
	return strings.ToLower(c.Mode)
}

// IsAPIMode returns true if the API server should run.
func (c *Config) IsAPIMode() bool {
	mode := c.NormalizeMode()
	return mode == ModeBoth || mode == ModeAPI
}

// IsKeeperMode returns true if the keeper should run.
func (c *Config) IsKeeperMode() bool {
	mode := c.NormalizeMode()
	return mode == ModeBoth || mode == ModeKeeper
}

// ShouldBootstrap reports whether missing feeds are initialized on start.
func (k KeeperConfig) ShouldBootstrap() bool {
	return k.Bootstrap == nil || *k.Bootstrap
}

// EnabledSources returns the enabled sources in configuration order.
func (c *Config) EnabledSources() []SourceConfig {
	var out []SourceConfig
	for _, s := range c.Sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// Secrets returns the private key and mnemonic, reading env variants when
// the inline value is empty.
func (s SignerConfig) Secrets() (privateKey, mnemonic string, err error) {
	privateKey, mnemonic = s.PrivateKey, s.Mnemonic
	if privateKey == "" && s.PrivateKeyEnv != "" {
		if privateKey = os.Getenv(s.PrivateKeyEnv); privateKey == "" {
			return "", "", fmt.Errorf("%w: %s", ErrSignerEnvNotSet, s.PrivateKeyEnv)
		}
	}
	if mnemonic == "" && s.MnemonicEnv != "" && privateKey == "" {
		if mnemonic = os.Getenv(s.MnemonicEnv); mnemonic == "" {
			return "", "", fmt.Errorf("%w: %s", ErrSignerEnvNotSet, s.MnemonicEnv)
		}
	}
	if privateKey == "" && mnemonic == "" {
		return "", "", ErrSignerRequired
	}
	return privateKey, mnemonic, nil
}
