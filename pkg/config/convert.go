package config

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/Magicwander/OKX-submission-complete/pkg/feed"
	"github.com/Magicwander/OKX-submission-complete/pkg/feeder/keeper"
	"github.com/Magicwander/OKX-submission-complete/pkg/feeder/ledger"
	"github.com/Magicwander/OKX-submission-complete/pkg/logging"
	"github.com/Magicwander/OKX-submission-complete/pkg/server/aggregator"
)

// ProgramAddress returns the parsed program address.
func (c *Config) ProgramAddress() common.Address {
	return common.HexToAddress(c.Program)
}

// AggregatorConfig converts to the aggregator's configuration.
func (a *AggregatorConfig) AggregatorConfig() aggregator.Config {
	return aggregator.Config{
		MaxAge:         a.MaxAge.ToDuration(),
		MinimumSources: a.MinimumSources,
		OutlierZScore:  a.OutlierZScore,
		Mode:           strings.ToLower(a.Mode),
		Weights:        a.Weights,
		FetchTimeout:   a.FetchTimeout.ToDuration(),
		K:              a.Confidence.K,
		Floor:          a.Confidence.Floor,
		Ceiling:        a.Confidence.Ceiling,
		SingleSource:   a.Confidence.SingleSource,
	}
}

// KeeperConfig converts to the keeper's configuration. The threshold was
// checked by Validate and defaulted by Load.
func (k *KeeperConfig) KeeperConfig(program common.Address) keeper.Config {
	threshold, _ := decimal.NewFromString(k.ChangeThreshold)
	return keeper.Config{
		Program:            program,
		Interval:           k.Interval.ToDuration(),
		ChangeThreshold:    threshold,
		MinSubmissionDelay: k.MinSubmissionDelay.ToDuration(),
		BaseBackoff:        k.BaseBackoff.ToDuration(),
		MaxBackoff:         k.MaxBackoff.ToDuration(),
		DryRun:             k.DryRun,
	}
}

// TradingPair returns the pair identity.
func (p *PairConfig) TradingPair() feed.TradingPair {
	return feed.TradingPair{
		ID:            p.ID,
		Base:          p.Base,
		Quote:         p.Quote,
		BaseDecimals:  p.BaseDecimals,
		QuoteDecimals: p.QuoteDecimals,
	}
}

// FeedParams returns the feed parameters with defaults for zero fields.
func (p ParamsConfig) FeedParams() feed.Params {
	return feed.Params{
		HistoryCapacity: p.HistoryCapacity,
		MaxAge:          p.MaxAge.ToDuration(),
		MinConfidence:   p.MinConfidence,
		MinimumSources:  p.MinimumSources,
		ErrorThreshold:  p.ErrorThreshold,
		TimeWindow:      p.TimeWindow.ToDuration(),
		RecoveryTime:    p.RecoveryTime.ToDuration(),
	}.WithDefaults()
}

// LocalConfig converts to the embedded ledger configuration.
func (l *LedgerConfig) LocalConfig() ledger.LocalConfig {
	return ledger.LocalConfig{Path: l.Local.Path, InMemory: l.Local.InMemory}
}

// HTTPConfig converts to the remote ledger client configuration.
func (l *LedgerConfig) HTTPConfig() ledger.HTTPConfig {
	return ledger.HTTPConfig{
		Endpoints:   l.HTTP.Endpoints,
		Timeout:     l.HTTP.Timeout.ToDuration(),
		MaxAttempts: l.HTTP.MaxAttempts,
	}
}

// FileOptions converts to the logger's rotation options.
func (l *LoggingConfig) FileOptions() logging.FileOptions {
	return logging.FileOptions{
		Path:       l.File.Path,
		MaxSize:    l.File.MaxSize,
		MaxBackups: l.File.MaxBackups,
		MaxAge:     l.File.MaxAge,
		Compress:   l.File.Compress,
	}
}
