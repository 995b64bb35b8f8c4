package keeper

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/Magicwander/OKX-submission-complete/pkg/feed"
	"github.com/Magicwander/OKX-submission-complete/pkg/feeder/keystore"
	"github.com/Magicwander/OKX-submission-complete/pkg/feeder/ledger"
	"github.com/Magicwander/OKX-submission-complete/pkg/feeder/protocol"
	"github.com/Magicwander/OKX-submission-complete/pkg/logging"
	"github.com/Magicwander/OKX-submission-complete/pkg/server/aggregator"
	"github.com/Magicwander/OKX-submission-complete/pkg/server/sources"
)

// State represents where the keeper is in its cycle.
type State string

const (
	StateIdle       State = "idle"
	StateFetching   State = "fetching"
	StateDeciding   State = "deciding"
	StateSubmitting State = "submitting"
	StateStopped    State = "stopped"
)

// Suspension reasons.
const (
	SuspendCircuitOpen  = "circuit_open"
	SuspendUnauthorized = "unauthorized"
)

// PriceSource produces one aggregated quote per symbol.
type PriceSource interface {
	Price(ctx context.Context, symbol string, srcs []sources.MarketDataSource, now func() time.Time) (aggregator.AggregatedQuote, error)
}

var _ PriceSource = (*aggregator.PriceAggregator)(nil)

// Pair is one feed managed by the keeper.
type Pair struct {
	Pair    feed.TradingPair
	Params  feed.Params // used when the keeper initializes the feed
	Symbol  string      // symbol asked from sources, defaults to Pair.Symbol()
	Sources []sources.MarketDataSource
}

// Config is the immutable keeper configuration.
type Config struct {
	Program            common.Address
	Interval           time.Duration
	ChangeThreshold    decimal.Decimal // relative, 0.01 = 1%
	MinSubmissionDelay time.Duration
	BaseBackoff        time.Duration
	MaxBackoff         time.Duration
	DryRun             bool
}

// DefaultConfig returns the defaults for zero fields. ChangeThreshold is
// the exception: zero is a valid threshold and means every tick updates.
func DefaultConfig() Config {
	return Config{
		Interval:           30 * time.Second,
		ChangeThreshold:    decimal.RequireFromString("0.01"),
		MinSubmissionDelay: 500 * time.Millisecond,
		BaseBackoff:        5 * time.Second,
		MaxBackoff:         5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = d.BaseBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	return c
}

// Validate checks ranges.
func (c Config) Validate() error {
	switch {
	case c.ChangeThreshold.IsNegative():
		return fmt.Errorf("%w: change threshold must not be negative", ErrInvalidConfig)
	case c.MinSubmissionDelay < 0:
		return fmt.Errorf("%w: min submission delay must not be negative", ErrInvalidConfig)
	case c.MaxBackoff < c.BaseBackoff:
		return fmt.Errorf("%w: max backoff below base backoff", ErrInvalidConfig)
	}
	return nil
}

// PairState is the scheduler state of one pair.
type PairState struct {
	Pair                string          `json:"pair"`
	Account             common.Address  `json:"account"`
	LastPrice           decimal.Decimal `json:"last_price"`
	HasPrice            bool            `json:"has_price"`
	LastConfidence      float64         `json:"last_confidence"`
	LastUpdate          time.Time       `json:"last_update"`
	Sequence            int64           `json:"sequence"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
	LastErrorKind       protocol.Kind   `json:"last_error_kind,omitempty"`
	LastError           string          `json:"last_error,omitempty"`
	NextAttempt         time.Time       `json:"next_attempt"`
	Suspended           string          `json:"suspended,omitempty"`
	SuspendedUntil      time.Time       `json:"suspended_until"`
}

// Update describes an accepted submission.
type Update struct {
	CycleID    string          `json:"cycle_id"`
	Pair       string          `json:"pair"`
	Account    common.Address  `json:"account"`
	Price      decimal.Decimal `json:"price"`
	Confidence float64         `json:"confidence"`
	Sources    []string        `json:"sources"`
	Sequence   int64           `json:"sequence"`
	Timestamp  time.Time       `json:"timestamp"`
	Receipt    ledger.Receipt  `json:"receipt"`
	DryRun     bool            `json:"dry_run,omitempty"`
}

type pairEntry struct {
	cfg     Pair
	account common.Address
}

// Keeper is the decision loop. One keeper submits for one authority.
type Keeper struct {
	cfg     Config
	pairs   []pairEntry
	prices  PriceSource
	client  ledger.Client
	signer  keystore.Signer
	limiter *rate.Limiter
	logger  *logging.Logger
	now     func() time.Time

	mu        sync.RWMutex
	state     State
	states    map[string]*PairState
	observers []func(Update)

	tickMu  sync.Mutex
	runMu   sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// New creates a keeper for pairs.
func New(cfg Config, pairs []Pair, prices PriceSource, client ledger.Client, signer keystore.Signer, logger *logging.Logger) (*Keeper, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, ErrNoPairs
	}
	if signer == nil {
		return nil, ErrNoSigner
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	limit := rate.Inf
	if cfg.MinSubmissionDelay > 0 {
		limit = rate.Every(cfg.MinSubmissionDelay)
	}

	k := &Keeper{
		cfg:     cfg,
		prices:  prices,
		client:  client,
		signer:  signer,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With("component", "keeper"),
		now:     time.Now,
		state:   StateIdle,
		states:  make(map[string]*PairState, len(pairs)),
	}
	for _, p := range pairs {
		if err := p.Pair.Validate(); err != nil {
			return nil, err
		}
		if _, dup := k.states[p.Pair.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePair, p.Pair.ID)
		}
		if p.Symbol == "" {
			p.Symbol = p.Pair.Symbol()
		}
		entry := pairEntry{cfg: p, account: feed.DeriveAddress(cfg.Program, p.Pair.ID)}
		k.pairs = append(k.pairs, entry)
		k.states[p.Pair.ID] = &PairState{Pair: p.Pair.ID, Account: entry.account}
	}
	return k, nil
}

// SetClock replaces the time source.
func (k *Keeper) SetClock(now func() time.Time) {
	k.now = now
}

// OnUpdate registers fn to be called after every accepted update.
func (k *Keeper) OnUpdate(fn func(Update)) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.observers = append(k.observers, fn)
}

// Accounts returns the feed address of every pair.
func (k *Keeper) Accounts() map[string]common.Address {
	out := make(map[string]common.Address, len(k.pairs))
	for _, p := range k.pairs {
		out[p.cfg.Pair.ID] = p.account
	}
	return out
}

// State returns the current keeper state.
func (k *Keeper) State() State {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.state
}

func (k *Keeper) setState(s State) {
	k.mu.Lock()
	k.state = s
	k.mu.Unlock()
}

// Snapshot returns a copy of every pair state, sorted by pair.
func (k *Keeper) Snapshot() []PairState {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]PairState, 0, len(k.states))
	for _, s := range k.states {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pair < out[j].Pair })
	return out
}

// Start runs a first tick immediately and then one per interval until Stop
// or ctx is done.
func (k *Keeper) Start(ctx context.Context) error {
	k.runMu.Lock()
	defer k.runMu.Unlock()
	if k.running {
		return ErrAlreadyRunning
	}
	k.running = true
	k.stopCh = make(chan struct{})
	k.setState(StateIdle)

	k.logger.Info("Starting keeper",
		"pairs", len(k.pairs),
		"interval", k.cfg.Interval.String(),
		"threshold", k.cfg.ChangeThreshold.String(),
		"authority", k.signer.Address().Hex(),
		"dry_run", k.cfg.DryRun,
	)

	k.wg.Add(1)
	go k.loop(ctx, k.stopCh)
	return nil
}

func (k *Keeper) loop(ctx context.Context, stop <-chan struct{}) {
	defer k.wg.Done()
	ticker := time.NewTicker(k.cfg.Interval)
	defer ticker.Stop()

	k.runTick(ctx)
	for {
		select {
		case <-ctx.Done():
			k.logger.Info("Keeper loop stopped", "reason", ctx.Err())
			k.setState(StateStopped)
			return
		case <-stop:
			k.logger.Info("Keeper loop stopped")
			k.setState(StateStopped)
			return
		case <-ticker.C:
			k.runTick(ctx)
		}
	}
}

func (k *Keeper) runTick(ctx context.Context) {
	if err := k.Tick(ctx); err != nil {
		k.logger.Debug("Tick skipped", "error", err)
	}
}

// Stop halts the timer after the in-flight cycle, if any, has finished.
func (k *Keeper) Stop() error {
	k.runMu.Lock()
	defer k.runMu.Unlock()
	if !k.running {
		return ErrNotRunning
	}
	close(k.stopCh)
	k.wg.Wait()
	k.running = false
	k.setState(StateStopped)
	return nil
}
