package feed

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ReservedSize is the number of bytes kept free for future fields.
const ReservedSize = 64

// Account is the price-feed storage entity. A single authority mutates it;
// readers that run alongside the writer must work on a Snapshot.
type Account struct {
	Version     uint8              `json:"version"`
	Initialized bool               `json:"initialized"`
	Authority   common.Address     `json:"authority"`
	Program     common.Address     `json:"program"`
	CreatedAt   time.Time          `json:"created_at"`
	LastUpdated time.Time          `json:"last_updated"`
	Pair        TradingPair        `json:"pair"`
	Params      Params             `json:"params"`
	Current     PriceSample        `json:"current"`
	History     *HistoryRing       `json:"-"`
	Stats       Statistics         `json:"stats"`
	Sources     []SourceStats      `json:"sources"`
	Breaker     Breaker            `json:"breaker"`
	Reserved    [ReservedSize]byte `json:"-"`
}

// NewAccount returns an empty, uninitialized account.
func NewAccount() *Account {
	return &Account{Version: LayoutVersion, History: NewHistoryRing(0)}
}

// DeriveAddress returns the account address owned by program for pairID.
func DeriveAddress(program common.Address, pairID string) common.Address {
	h := crypto.Keccak256([]byte("price-feed"), program.Bytes(), []byte(pairID))
	return common.BytesToAddress(h[12:])
}

// Address is DeriveAddress for this account.
func (a *Account) Address() common.Address {
	return DeriveAddress(a.Program, a.Pair.ID)
}

// Initialize binds the account to pair and authority. It can succeed once.
func (a *Account) Initialize(pair TradingPair, authority, program common.Address, params Params, now time.Time) error {
	if a.Initialized {
		return ErrAlreadyInitialized
	}
	if err := pair.Validate(); err != nil {
		return err
	}
	params = params.WithDefaults()
	if err := params.Validate(); err != nil {
		return err
	}

	a.Version = LayoutVersion
	a.Initialized = true
	a.Authority = authority
	a.Program = program
	a.Pair = pair
	a.Params = params
	a.CreatedAt = now
	a.LastUpdated = now
	a.Current = PriceSample{}
	a.History = NewHistoryRing(params.HistoryCapacity)
	a.Stats = Statistics{}
	a.Sources = nil
	a.Breaker = Breaker{}
	return nil
}

// ApplyUpdate records an already authorized sample. Every check runs before
// the first write, so a rejected sample leaves the account untouched.
func (a *Account) ApplyUpdate(sample PriceSample, now time.Time) error {
	if !a.Initialized {
		return ErrNotInitialized
	}
	if a.Breaker.open(now, a.Params) {
		return fmt.Errorf("%w: opened at %s", ErrCircuitOpen, a.Breaker.OpenedAt.Format(time.RFC3339))
	}
	if !sample.Price.IsPositive() {
		return fmt.Errorf("%w: %s", ErrNonPositivePrice, sample.Price)
	}
	if !ValidConfidence(sample.Confidence) {
		return fmt.Errorf("%w: %v", ErrConfidenceOutOfRange, sample.Confidence)
	}
	if sample.Timestamp.Before(a.Current.Timestamp) {
		return fmt.Errorf("%w: %s before %s", ErrOutOfOrder,
			sample.Timestamp.Format(time.RFC3339Nano), a.Current.Timestamp.Format(time.RFC3339Nano))
	}
	mask, registry, err := a.resolveSources(sample.Sources)
	if err != nil {
		return err
	}
	if _, err := coefficientFits(sample.Price); err != nil {
		return err
	}

	if a.Breaker.recovered(now, a.Params) {
		a.Breaker.reset()
	}
	a.Sources = registry
	sample = sample.clone()
	sample.Sources = namesForMask(registry, mask)
	for i := range a.Sources {
		if mask&(1<<uint(i)) != 0 {
			a.Sources[i].Contributions++
			a.Sources[i].LastSeen = sample.Timestamp
		}
	}

	a.History.Push(sample)
	a.Current = sample
	a.Stats.recompute(a.History, sample)
	a.LastUpdated = now
	return nil
}

// RecordError counts a failed update against the circuit breaker and
// reports whether it opened the breaker.
func (a *Account) RecordError(now time.Time) (bool, error) {
	if !a.Initialized {
		return false, ErrNotInitialized
	}
	return a.Breaker.record(now, a.Params), nil
}

// IsCircuitOpen reports whether updates are currently rejected.
func (a *Account) IsCircuitOpen(now time.Time) bool {
	return a.Breaker.open(now, a.Params)
}

// Validate reports every failed health condition; nil means healthy.
func (a *Account) Validate(now time.Time) []Violation {
	var v []Violation
	if !a.Initialized {
		v = append(v, ViolationNotInitialized)
	}
	if !a.Current.Price.IsPositive() {
		v = append(v, ViolationNonPositivePrice)
	}
	if a.Current.Confidence < a.Params.MinConfidence {
		v = append(v, ViolationLowConfidence)
	}
	if a.isStale(now) {
		v = append(v, ViolationStale)
	}
	if a.IsCircuitOpen(now) {
		v = append(v, ViolationCircuitOpen)
	}
	return v
}

func (a *Account) isStale(now time.Time) bool {
	return a.LastUpdated.IsZero() || now.Sub(a.LastUpdated) > a.Params.MaxAge
}

// CurrentPrice returns the latest price with its age and staleness.
func (a *Account) CurrentPrice(now time.Time) (CurrentPrice, error) {
	if !a.Initialized {
		return CurrentPrice{}, ErrNotInitialized
	}
	return CurrentPrice{
		Price:      a.Current.Price,
		Confidence: a.Current.Confidence,
		Sources:    append([]string(nil), a.Current.Sources...),
		Age:        now.Sub(a.LastUpdated),
		IsStale:    a.isStale(now),
		Sequence:   a.Current.Sequence,
	}, nil
}

// RecentHistory returns up to limit samples, newest first.
func (a *Account) RecentHistory(limit int) ([]PriceSample, error) {
	if !a.Initialized {
		return nil, ErrNotInitialized
	}
	return a.History.Latest(limit), nil
}

// Reliability returns the share of accepted updates each source contributed to.
func (a *Account) Reliability() map[string]float64 {
	out := make(map[string]float64, len(a.Sources))
	for _, s := range a.Sources {
		if a.Stats.TotalUpdates == 0 {
			out[s.Name] = 0
			continue
		}
		out[s.Name] = float64(s.Contributions) / float64(a.Stats.TotalUpdates)
	}
	return out
}

// Snapshot returns a deep copy safe to read while the original is mutated.
func (a *Account) Snapshot() *Account {
	c := *a
	c.Current = a.Current.clone()
	c.History = a.History.Clone()
	if a.Sources != nil {
		c.Sources = append([]SourceStats(nil), a.Sources...)
	}
	if a.Breaker.Recent != nil {
		c.Breaker.Recent = append([]time.Time(nil), a.Breaker.Recent...)
	}
	return &c
}

// resolveSources maps names to a registry bitmask, returning the registry
// extended with unseen names. The receiver is not modified.
func (a *Account) resolveSources(names []string) (uint16, []SourceStats, error) {
	registry := append([]SourceStats(nil), a.Sources...)
	var mask uint16
	for _, name := range names {
		if name == "" {
			continue
		}
		if len(name) > MaxSourceNameLen {
			return 0, nil, fmt.Errorf("%w: source %q longer than %d bytes", ErrFieldTooLong, name, MaxSourceNameLen)
		}
		idx := -1
		for i := range registry {
			if registry[i].Name == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			if len(registry) >= MaxSources {
				return 0, nil, fmt.Errorf("%w: cannot register %q", ErrSourceRegistryFull, name)
			}
			registry = append(registry, SourceStats{Name: name})
			idx = len(registry) - 1
		}
		mask |= 1 << uint(idx)
	}
	return mask, registry, nil
}

func namesForMask(registry []SourceStats, mask uint16) []string {
	var names []string
	for i := range registry {
		if mask&(1<<uint(i)) != 0 {
			names = append(names, registry[i].Name)
		}
	}
	return names
}

func maskForNames(registry []SourceStats, names []string) (uint16, error) {
	var mask uint16
	for _, name := range names {
		found := false
		for i := range registry {
			if registry[i].Name == name {
				mask |= 1 << uint(i)
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("%w: source %q not registered", ErrInvalidLayout, name)
		}
	}
	return mask, nil
}
