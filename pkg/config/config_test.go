package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Magicwander/OKX-submission-complete/pkg/feed"
)

const sampleConfig = `
mode: both
program: "0x00000000000000000000000000000000000000b2"
keeper:
  interval: 15s
  change_threshold: "0.005"
  dry_run: true
aggregator:
  mode: median
  minimum_sources: 2
  outlier_z_score: 2.5
  weights:
    okx: 2
signer:
  private_key_env: TEST_FEED_KEEPER_KEY
ledger:
  type: local
  local:
    in_memory: true
pairs:
  - base: BTC
    quote: USD
    base_decimals: 8
    quote_decimals: 6
    sources: [okx, binance]
    params:
      history_capacity: 500
      max_age: 120
      recovery_time: 10m
sources:
  - type: cex
    name: okx
    enabled: true
    config:
      pairs:
        BTC/USD: BTC-USDT
  - type: cex
    name: binance
    enabled: true
  - type: cex
    name: kraken
    enabled: false
logging:
  file:
    path: ${TEST_FEED_KEEPER_LOG}
    compress: true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_FEED_KEEPER_LOG", "/tmp/keeper.log")
	t.Setenv("TEST_FEED_KEEPER_KEY", "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	assert.Equal(t, 15*time.Second, cfg.Keeper.Interval.ToDuration())
	assert.Equal(t, 500*time.Millisecond, cfg.Keeper.MinSubmissionDelay.ToDuration(), "default")
	assert.True(t, cfg.Keeper.ShouldBootstrap())
	assert.Equal(t, "/tmp/keeper.log", cfg.Logging.File.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.IsAPIMode())
	assert.True(t, cfg.IsKeeperMode())
	assert.Len(t, cfg.EnabledSources(), 2)

	require.Len(t, cfg.Pairs, 1)
	pair := cfg.Pairs[0]
	assert.Equal(t, "BTC/USD", pair.ID)
	assert.Equal(t, feed.TradingPair{ID: "BTC/USD", Base: "BTC", Quote: "USD", BaseDecimals: 8, QuoteDecimals: 6}, pair.TradingPair())

	params := pair.Params.FeedParams()
	assert.Equal(t, 500, params.HistoryCapacity)
	assert.Equal(t, 2*time.Minute, params.MaxAge)
	assert.Equal(t, 10*time.Minute, params.RecoveryTime)
	assert.Equal(t, feed.DefaultParams().ErrorThreshold, params.ErrorThreshold)

	kc := cfg.Keeper.KeeperConfig(cfg.ProgramAddress())
	assert.Equal(t, "0.005", kc.ChangeThreshold.String())
	assert.True(t, kc.DryRun)
	assert.Equal(t, cfg.ProgramAddress(), kc.Program)

	ac := cfg.Aggregator.AggregatorConfig()
	assert.Equal(t, "median", ac.Mode)
	assert.Equal(t, 2.0, ac.Weights["okx"])

	key, mnemonic, err := cfg.Signer.Secrets()
	require.NoError(t, err)
	assert.NotEmpty(t, key)
	assert.Empty(t, mnemonic)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParse_InvalidDuration(t *testing.T) {
	_, err := Parse([]byte("keeper:\n  interval: soon\n"))
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestLoadEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("TEST_FEED_KEEPER_FROM_ENV_FILE=abc\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("TEST_FEED_KEEPER_FROM_ENV_FILE") })

	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "abc", os.Getenv("TEST_FEED_KEEPER_FROM_ENV_FILE"))

	assert.Error(t, LoadEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestValidate_Errors(t *testing.T) {
	t.Setenv("TEST_FEED_KEEPER_KEY", "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"mode", func(c *Config) { c.Mode = "server" }, ErrInvalidMode},
		{"program", func(c *Config) { c.Program = "nope" }, ErrInvalidProgram},
		{"no pairs", func(c *Config) { c.Pairs = nil }, ErrNoPairs},
		{"duplicate pair", func(c *Config) { c.Pairs = append(c.Pairs, c.Pairs[0]) }, ErrDuplicatePair},
		{"unknown source", func(c *Config) { c.Pairs[0].Sources = []string{"kraken"} }, ErrUnknownSource},
		{"no sources", func(c *Config) { c.Sources = nil }, ErrNoSourcesEnabled},
		{"source name", func(c *Config) { c.Sources[0].Name = "" }, ErrSourceNameRequired},
		{"duplicate source", func(c *Config) { c.Sources[1].Name = "okx" }, ErrDuplicateSource},
		{"threshold", func(c *Config) { c.Keeper.ChangeThreshold = "-0.1" }, ErrInvalidThreshold},
		{"aggregator mode", func(c *Config) { c.Aggregator.Mode = "tvwap" }, ErrInvalidAggregateMode},
		{"ledger type", func(c *Config) { c.Ledger.Type = "grpc" }, ErrInvalidLedgerType},
		{"ledger endpoints", func(c *Config) { c.Ledger.Type = LedgerHTTP }, ErrNoLedgerEndpoints},
		{"signer", func(c *Config) { c.Signer = SignerConfig{} }, ErrSignerRequired},
		{"signer env", func(c *Config) { c.Signer = SignerConfig{MnemonicEnv: "TEST_FEED_KEEPER_UNSET"} }, ErrSignerEnvNotSet},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }, ErrInvalidLogLevel},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, ErrInvalidLogFormat},
		{"feed params", func(c *Config) { c.Pairs[0].Params.MinConfidence = 2 }, feed.ErrInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(sampleConfig))
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.ErrorIs(t, Validate(cfg), tt.want)
		})
	}
}

func TestValidate_APIModeNeedsNoSigner(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)
	cfg.Mode = ModeAPI
	cfg.Signer = SignerConfig{}
	assert.NoError(t, Validate(cfg))
}
