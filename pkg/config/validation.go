package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Validate checks configuration for errors
func Validate(cfg *Config) error {
	mode := cfg.NormalizeMode()
	if mode != ModeBoth && mode != ModeKeeper && mode != ModeAPI {
		return fmt.Errorf("%w: %s (must be 'both', 'keeper', or 'api')", ErrInvalidMode, cfg.Mode)
	}
	if !common.IsHexAddress(cfg.Program) {
		return fmt.Errorf("%w: %q", ErrInvalidProgram, cfg.Program)
	}

	sourceNames, err := validateSources(cfg.Sources)
	if err != nil {
		return err
	}
	if err := validatePairs(cfg.Pairs, sourceNames); err != nil {
		return err
	}
	if err := validateAggregatorConfig(&cfg.Aggregator); err != nil {
		return fmt.Errorf("aggregator config: %w", err)
	}
	if err := validateLedgerConfig(&cfg.Ledger); err != nil {
		return fmt.Errorf("ledger config: %w", err)
	}

	if cfg.IsKeeperMode() {
		if err := validateKeeperConfig(&cfg.Keeper); err != nil {
			return fmt.Errorf("keeper config: %w", err)
		}
		if _, _, err := cfg.Signer.Secrets(); err != nil {
			return fmt.Errorf("signer config: %w", err)
		}
	}

	if err := validateLoggingConfig(&cfg.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

func validateSources(sources []SourceConfig) (map[string]bool, error) {
	names := make(map[string]bool)
	for i, source := range sources {
		if !source.Enabled {
			continue
		}
		if source.Type == "" {
			return nil, fmt.Errorf("source %d: %w", i, ErrSourceTypeRequired)
		}
		if source.Name == "" {
			return nil, fmt.Errorf("source %d (%s): %w", i, source.Type, ErrSourceNameRequired)
		}
		if names[source.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSource, source.Name)
		}
		names[source.Name] = true
	}
	if len(names) == 0 {
		return nil, ErrNoSourcesEnabled
	}
	return names, nil
}

func validatePairs(pairs []PairConfig, sources map[string]bool) error {
	if len(pairs) == 0 {
		return ErrNoPairs
	}
	seen := make(map[string]bool, len(pairs))
	for i, p := range pairs {
		if p.ID == "" || p.Base == "" || p.Quote == "" {
			return fmt.Errorf("pair %d: %w: id, base and quote are required", i, ErrInvalidPair)
		}
		if seen[p.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicatePair, p.ID)
		}
		seen[p.ID] = true
		for _, name := range p.Sources {
			if !sources[name] {
				return fmt.Errorf("pair %s: %w: %s", p.ID, ErrUnknownSource, name)
			}
		}
		if err := p.Params.FeedParams().Validate(); err != nil {
			return fmt.Errorf("pair %s: %w", p.ID, err)
		}
	}
	return nil
}

func validateKeeperConfig(cfg *KeeperConfig) error {
	threshold, err := decimal.NewFromString(cfg.ChangeThreshold)
	if err != nil || threshold.IsNegative() {
		return fmt.Errorf("%w: %q", ErrInvalidThreshold, cfg.ChangeThreshold)
	}
	return cfg.KeeperConfig(common.Address{}).Validate()
}

func validateAggregatorConfig(cfg *AggregatorConfig) error {
	mode := strings.ToLower(cfg.Mode)
	if mode != "average" && mode != "median" {
		return fmt.Errorf("%w: %s (must be 'average' or 'median')", ErrInvalidAggregateMode, cfg.Mode)
	}
	return cfg.AggregatorConfig().Validate()
}

func validateLedgerConfig(cfg *LedgerConfig) error {
	switch strings.ToLower(cfg.Type) {
	case LedgerLocal:
		return nil
	case LedgerHTTP:
		if len(cfg.HTTP.Endpoints) == 0 {
			return ErrNoLedgerEndpoints
		}
		return nil
	}
	return fmt.Errorf("%w: %s (must be 'local' or 'http')", ErrInvalidLedgerType, cfg.Type)
}

func validateLoggingConfig(cfg *LoggingConfig) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	levelValid := false
	for _, l := range validLevels {
		if strings.ToLower(cfg.Level) == l {
			levelValid = true
			break
		}
	}
	if !levelValid {
		return fmt.Errorf("%w: %s (must be one of: %s)", ErrInvalidLogLevel, cfg.Level, strings.Join(validLevels, ", "))
	}

	formatValid := strings.ToLower(cfg.Format) == "json" || strings.ToLower(cfg.Format) == "text"
	if !formatValid {
		return fmt.Errorf("%w: %s (must be 'json' or 'text')", ErrInvalidLogFormat, cfg.Format)
	}
	return nil
}
