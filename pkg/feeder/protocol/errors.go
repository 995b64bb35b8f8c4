// Package protocol defines the versioned update commands that mutate a feed
// account, their wire encoding, the ordered validation rules and the error
// taxonomy shared by the ledger and the keeper.
package protocol

import (
	"context"
	"errors"
	"fmt"

	"github.com/Magicwander/OKX-submission-complete/pkg/feed"
)

var (
	// ErrMissingAccount indicates that the target account reference is absent.
	ErrMissingAccount = errors.New("missing account")
	// ErrUnauthorized indicates that the signer is not the account authority.
	ErrUnauthorized = errors.New("signer is not the feed authority")
	// ErrNonPositivePrice is feed.ErrNonPositivePrice.
	ErrNonPositivePrice = feed.ErrNonPositivePrice
	// ErrConfidenceOutOfRange is feed.ErrConfidenceOutOfRange.
	ErrConfidenceOutOfRange = feed.ErrConfidenceOutOfRange
	// ErrNonPositiveSequence indicates a sequence number of zero or below.
	ErrNonPositiveSequence = errors.New("sequence must be positive")
	// ErrStaleTimestamp indicates a command older than the feed's max age.
	ErrStaleTimestamp = errors.New("command timestamp is stale")
	// ErrInsufficientSources indicates fewer sources than the feed requires.
	ErrInsufficientSources = errors.New("insufficient sources")
	// ErrMalformed indicates a command that cannot be encoded, decoded or applied as sent.
	ErrMalformed = errors.New("malformed command")
	// ErrUnknownOpcode indicates an opcode this version does not define.
	ErrUnknownOpcode = errors.New("unknown opcode")
	// ErrUnsupportedWireVersion indicates a command encoded with an unknown wire version.
	ErrUnsupportedWireVersion = errors.New("unsupported wire version")
	// ErrTransport indicates that the command could not be delivered.
	ErrTransport = errors.New("transport failure")
	// ErrCircuitOpen is feed.ErrCircuitOpen.
	ErrCircuitOpen = feed.ErrCircuitOpen
)

// Kind identifies one distinct failure.
type Kind string

// Failure kinds. Validation kinds are listed in checking order.
const (
	KindMissingAccount       Kind = "missing_account"
	KindUnauthorized         Kind = "unauthorized"
	KindNonPositivePrice     Kind = "non_positive_price"
	KindConfidenceOutOfRange Kind = "confidence_out_of_range"
	KindNonPositiveSequence  Kind = "non_positive_sequence"
	KindStaleTimestamp       Kind = "stale_timestamp"
	KindInsufficientSources  Kind = "insufficient_sources"
	KindAlreadyInitialized   Kind = "already_initialized"
	KindMalformed            Kind = "malformed"
	KindTransport            Kind = "transport"
	KindCircuitOpen          Kind = "circuit_open"
)

// Category groups kinds by how a caller should react.
type Category string

const (
	// CategoryValidation is fixed by correcting the input and resubmitting.
	CategoryValidation Category = "validation"
	// CategoryAuthorization is fatal for the command and never retried with the same signer.
	CategoryAuthorization Category = "authorization"
	// CategoryStaleData is fixed by refetching fresher data.
	CategoryStaleData Category = "stale_data"
	// CategoryTransport is retryable with backoff.
	CategoryTransport Category = "transport"
	// CategoryCircuitOpen is surfaced to the operator and never retried silently.
	CategoryCircuitOpen Category = "circuit_open"
)

// Category returns the category of k.
func (k Kind) Category() Category {
	switch k {
	case KindUnauthorized:
		return CategoryAuthorization
	case KindStaleTimestamp:
		return CategoryStaleData
	case KindTransport:
		return CategoryTransport
	case KindCircuitOpen:
		return CategoryCircuitOpen
	default:
		return CategoryValidation
	}
}

// Retryable reports whether the keeper may resubmit after a failure of category c.
func (c Category) Retryable() bool {
	return c == CategoryTransport || c == CategoryStaleData
}

// Error is a typed protocol failure. It unwraps to the sentinel for its kind
// and, when present, to the underlying cause.
type Error struct {
	Kind  Kind
	Msg   string
	cause error
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap returns the kind sentinel and the cause.
func (e *Error) Unwrap() []error {
	errs := []error{sentinels[e.Kind]}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

// Known reports whether k is one of the defined kinds.
func (k Kind) Known() bool {
	_, ok := sentinels[k]
	return ok
}

// Category returns the category of the error kind.
func (e *Error) Category() Category {
	return e.Kind.Category()
}

var sentinels = map[Kind]error{
	KindMissingAccount:       ErrMissingAccount,
	KindUnauthorized:         ErrUnauthorized,
	KindNonPositivePrice:     ErrNonPositivePrice,
	KindConfidenceOutOfRange: ErrConfidenceOutOfRange,
	KindNonPositiveSequence:  ErrNonPositiveSequence,
	KindStaleTimestamp:       ErrStaleTimestamp,
	KindInsufficientSources:  ErrInsufficientSources,
	KindAlreadyInitialized:   feed.ErrAlreadyInitialized,
	KindMalformed:            ErrMalformed,
	KindTransport:            ErrTransport,
	KindCircuitOpen:          ErrCircuitOpen,
}

// NewError builds an *Error of kind k.
func NewError(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err and returns it as an *Error, keeping err as the cause.
// nil stays nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Kind: KindOf(err), Msg: err.Error(), cause: err}
}

// Transport marks err as a delivery failure.
func Transport(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindTransport, Msg: err.Error(), cause: err}
}

// KindOf classifies any error. Errors that carry no known sentinel are
// treated as transport failures.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	switch {
	case errors.Is(err, feed.ErrCircuitOpen):
		return KindCircuitOpen
	case errors.Is(err, feed.ErrNonPositivePrice):
		return KindNonPositivePrice
	case errors.Is(err, feed.ErrConfidenceOutOfRange):
		return KindConfidenceOutOfRange
	case errors.Is(err, feed.ErrOutOfOrder):
		return KindStaleTimestamp
	case errors.Is(err, feed.ErrNotInitialized):
		return KindMissingAccount
	case errors.Is(err, feed.ErrAlreadyInitialized):
		return KindAlreadyInitialized
	case errors.Is(err, feed.ErrSourceRegistryFull),
		errors.Is(err, feed.ErrFieldTooLong),
		errors.Is(err, feed.ErrPriceOverflow),
		errors.Is(err, feed.ErrInvalidPair),
		errors.Is(err, feed.ErrInvalidParams),
		errors.Is(err, feed.ErrInvalidLayout),
		errors.Is(err, feed.ErrUnsupportedVersion):
		return KindMalformed
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindTransport
	}
	for k, s := range sentinels {
		if errors.Is(err, s) {
			return k
		}
	}
	return KindTransport
}

// CategoryOf is KindOf(err).Category().
func CategoryOf(err error) Category {
	return KindOf(err).Category()
}
