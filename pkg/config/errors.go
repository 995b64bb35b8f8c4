// Package config provides configuration loading and validation for the feed keeper.
package config

import "errors"

var (
	// ErrInvalidMode indicates that the mode is invalid.
	ErrInvalidMode = errors.New("invalid mode")
	// ErrInvalidDuration indicates a duration that is neither a Go duration nor whole seconds.
	ErrInvalidDuration = errors.New("invalid duration")
	// ErrInvalidProgram indicates a program address that is not a hex address.
	ErrInvalidProgram = errors.New("program must be a hex address")
	// ErrNoPairs indicates that no pairs are configured.
	ErrNoPairs = errors.New("at least one pair must be configured")
	// ErrDuplicatePair indicates a pair id configured twice.
	ErrDuplicatePair = errors.New("duplicate pair id")
	// ErrInvalidPair indicates an incomplete pair.
	ErrInvalidPair = errors.New("invalid pair")
	// ErrNoSourcesEnabled indicates that no sources are enabled.
	ErrNoSourcesEnabled = errors.New("no sources enabled")
	// ErrSourceTypeRequired indicates that source type is required.
	ErrSourceTypeRequired = errors.New("source type is required")
	// ErrSourceNameRequired indicates that source name is required.
	ErrSourceNameRequired = errors.New("source name is required")
	// ErrDuplicateSource indicates a source name configured twice.
	ErrDuplicateSource = errors.New("duplicate source name")
	// ErrUnknownSource indicates a pair that references a source that is not enabled.
	ErrUnknownSource = errors.New("pair references unknown source")
	// ErrInvalidThreshold indicates an unparsable or negative change threshold.
	ErrInvalidThreshold = errors.New("invalid change_threshold")
	// ErrInvalidAggregateMode indicates that the aggregation mode is invalid.
	ErrInvalidAggregateMode = errors.New("invalid aggregator mode")
	// ErrInvalidLedgerType indicates that the ledger type is invalid.
	ErrInvalidLedgerType = errors.New("invalid ledger type")
	// ErrNoLedgerEndpoints indicates an http ledger without endpoints.
	ErrNoLedgerEndpoints = errors.New("at least one ledger endpoint must be specified")
	// ErrSignerRequired indicates that no signing key is configured.
	ErrSignerRequired = errors.New("one of private_key, private_key_env, mnemonic or mnemonic_env must be specified")
	// ErrSignerEnvNotSet indicates that a signer environment variable is empty.
	ErrSignerEnvNotSet = errors.New("signer environment variable not set")
	// ErrInvalidLogLevel indicates that the log level is invalid.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidLogFormat indicates that the log format is invalid.
	ErrInvalidLogFormat = errors.New("invalid log format")
)
