package config

import (
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure
type Config struct {
	Mode       string           `yaml:"mode"`
	Program    string           `yaml:"program"` // address that owns the feed accounts
	Keeper     KeeperConfig     `yaml:"keeper"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Signer     SignerConfig     `yaml:"signer"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Pairs      []PairConfig     `yaml:"pairs"`
	Sources    []SourceConfig   `yaml:"sources"`
	API        APIConfig        `yaml:"api"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// KeeperConfig configures the decision loop
type KeeperConfig struct {
	Interval           Duration `yaml:"interval"`
	ChangeThreshold    string   `yaml:"change_threshold"` // relative, "0.01" = 1%
	MinSubmissionDelay Duration `yaml:"min_submission_delay"`
	BaseBackoff        Duration `yaml:"base_backoff"`
	MaxBackoff         Duration `yaml:"max_backoff"`
	DryRun             bool     `yaml:"dry_run"`
	Bootstrap          *bool    `yaml:"bootstrap"` // initialize missing feeds on start, default true
}

// AggregatorConfig configures price aggregation
type AggregatorConfig struct {
	Mode           string             `yaml:"mode"`
	MaxAge         Duration           `yaml:"max_age"`
	MinimumSources int                `yaml:"minimum_sources"`
	OutlierZScore  float64            `yaml:"outlier_z_score"`
	FetchTimeout   Duration           `yaml:"fetch_timeout"`
	Weights        map[string]float64 `yaml:"weights"`
	Confidence     ConfidenceConfig   `yaml:"confidence"`
}

// ConfidenceConfig overrides the confidence constants. All zero keeps the defaults.
type ConfidenceConfig struct {
	K            float64 `yaml:"k"`
	Floor        float64 `yaml:"floor"`
	Ceiling      float64 `yaml:"ceiling"`
	SingleSource float64 `yaml:"single_source"`
}

// SignerConfig configures the authority key. Env variants name an
// environment variable holding the secret.
type SignerConfig struct {
	PrivateKey    string `yaml:"private_key"`
	PrivateKeyEnv string `yaml:"private_key_env"`
	Mnemonic      string `yaml:"mnemonic"`
	MnemonicEnv   string `yaml:"mnemonic_env"`
	HDPath        string `yaml:"hd_path"`
}

// LedgerConfig selects where feed accounts live
type LedgerConfig struct {
	Type  string            `yaml:"type"` // "local" or "http"
	Local LocalLedgerConfig `yaml:"local"`
	HTTP  HTTPLedgerConfig  `yaml:"http"`
	Serve bool              `yaml:"serve"` // expose the local ledger on the API server
}

// LocalLedgerConfig configures the embedded store
type LocalLedgerConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// HTTPLedgerConfig configures the remote ledger client
type HTTPLedgerConfig struct {
	Endpoints   []string `yaml:"endpoints"`
	Timeout     Duration `yaml:"timeout"`
	MaxAttempts int      `yaml:"max_attempts"`
}

// PairConfig configures one feed
type PairConfig struct {
	ID            string       `yaml:"id"`
	Base          string       `yaml:"base"`
	Quote         string       `yaml:"quote"`
	BaseDecimals  uint8        `yaml:"base_decimals"`
	QuoteDecimals uint8        `yaml:"quote_decimals"`
	Symbol        string       `yaml:"symbol"`  // symbol asked from sources, defaults to BASE/QUOTE
	Sources       []string     `yaml:"sources"` // source names, empty = every enabled source
	Params        ParamsConfig `yaml:"params"`
}

// ParamsConfig is the feed configuration written at initialization
type ParamsConfig struct {
	HistoryCapacity int      `yaml:"history_capacity"`
	MaxAge          Duration `yaml:"max_age"`
	MinConfidence   float64  `yaml:"min_confidence"`
	MinimumSources  int      `yaml:"minimum_sources"`
	ErrorThreshold  int      `yaml:"error_threshold"`
	TimeWindow      Duration `yaml:"time_window"`
	RecoveryTime    Duration `yaml:"recovery_time"`
}

// SourceConfig configures a price source
type SourceConfig struct {
	Type    string                 `yaml:"type"`
	Name    string                 `yaml:"name"`
	Enabled bool                   `yaml:"enabled"`
	Config  map[string]interface{} `yaml:"config"`
}

// APIConfig configures the read API
type APIConfig struct {
	Addr         string   `yaml:"addr"`
	WebSocket    bool     `yaml:"websocket"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

// MetricsConfig configures Prometheus metrics
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string        `yaml:"level"`
	Format string        `yaml:"format"`
	Output string        `yaml:"output"`
	File   LogFileConfig `yaml:"file"`
}

// LogFileConfig configures log file rotation
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Duration is a wrapper around time.Duration for YAML parsing. It accepts
// duration strings ("30s") and plain integers as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: line %d", ErrInvalidDuration, value.Line)
	}
	if secs, err := strconv.ParseInt(value.Value, 10, 64); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	td, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDuration, value.Value)
	}
	*d = Duration(td)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// ToDuration converts Duration to time.Duration
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}
