package keeper

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Magicwander/OKX-submission-complete/pkg/feeder/ledger"
	"github.com/Magicwander/OKX-submission-complete/pkg/feeder/protocol"
	"github.com/Magicwander/OKX-submission-complete/pkg/logging"
	"github.com/Magicwander/OKX-submission-complete/pkg/metrics"
	"github.com/Magicwander/OKX-submission-complete/pkg/server/aggregator"
)

// Tick runs one cycle over every pair. It returns ErrTickInFlight without
// doing anything while a previous tick is still running.
func (k *Keeper) Tick(ctx context.Context) error {
	if !k.tickMu.TryLock() {
		return ErrTickInFlight
	}
	defer k.tickMu.Unlock()

	start := time.Now()
	cycleID := uuid.NewString()
	logger := k.logger.With("cycle", cycleID)
	defer func() {
		k.setState(StateIdle)
		metrics.RecordCycle(time.Since(start))
	}()

	logger.Debug("Starting cycle", "pairs", len(k.pairs))
	submitted := 0
	for _, p := range k.pairs {
		if ctx.Err() != nil {
			break
		}
		if k.skip(p) {
			continue
		}
		if k.runPair(ctx, cycleID, p) {
			submitted++
		}
	}
	logger.Info("Cycle completed", "submitted", submitted, "duration", time.Since(start).String())
	return nil
}

// skip reports whether pair is suspended or backing off. An expired
// circuit suspension is lifted here.
func (k *Keeper) skip(p pairEntry) bool {
	now := k.now()
	k.mu.Lock()
	defer k.mu.Unlock()
	st := k.states[p.cfg.Pair.ID]

	switch st.Suspended {
	case SuspendUnauthorized:
		return true
	case SuspendCircuitOpen:
		if now.Before(st.SuspendedUntil) {
			return true
		}
		k.logger.Info("Lifting circuit suspension", "pair", st.Pair)
		st.Suspended = ""
		st.SuspendedUntil = time.Time{}
		metrics.RecordSuspension(st.Pair, SuspendCircuitOpen, false)
	}
	return now.Before(st.NextAttempt)
}

// runPair fetches, decides and submits for one pair and reports whether an
// update was accepted.
func (k *Keeper) runPair(ctx context.Context, cycleID string, p pairEntry) bool {
	id := p.cfg.Pair.ID
	logger := k.logger.With("cycle", cycleID, "pair", id)

	k.setState(StateFetching)
	quote, err := k.prices.Price(ctx, p.cfg.Symbol, p.cfg.Sources, k.now)
	if err != nil {
		kind := protocol.KindTransport
		if errors.Is(err, aggregator.ErrInsufficientSources) {
			kind = protocol.KindInsufficientSources
		}
		logger.Warn("No aggregated price", "error", err)
		metrics.RecordKeeperError(id, string(kind))
		return false
	}

	if last := k.lastUpdate(id); quote.Timestamp.Before(last) {
		logger.Debug("Aggregated price older than last update",
			"timestamp", quote.Timestamp,
			"last_update", last)
		return false
	}

	k.setState(StateDeciding)
	ok, prev := k.decide(id, quote.Price)
	if !ok {
		logger.Debug("Price change below threshold", "price", quote.Price.String(), "last", prev.LastPrice.String())
		return false
	}

	k.setState(StateSubmitting)
	if err := k.limiter.Wait(ctx); err != nil {
		k.rollback(id, prev)
		return false
	}

	cmd := &protocol.UpdateCommand{
		Account:    p.account,
		Price:      quote.Price,
		Confidence: quote.Confidence,
		Sequence:   prev.Sequence + 1,
		Timestamp:  quote.Timestamp,
		Sources:    quote.Sources,
	}
	receipt, err := k.submit(ctx, id, cmd)
	if err != nil {
		k.rollback(id, prev)
		k.fail(ctx, logger, p, err)
		return false
	}

	update := Update{
		CycleID:    cycleID,
		Pair:       id,
		Account:    p.account,
		Price:      cmd.Price,
		Confidence: cmd.Confidence,
		Sources:    cmd.Sources,
		Sequence:   cmd.Sequence,
		Timestamp:  cmd.Timestamp,
		Receipt:    receipt,
		DryRun:     k.cfg.DryRun,
	}
	k.succeed(update)
	logger.Info("Price update accepted",
		"price", cmd.Price.String(),
		"confidence", cmd.Confidence,
		"sources", len(cmd.Sources),
		"sequence", cmd.Sequence,
		"slot", receipt.Slot,
		"dry_run", k.cfg.DryRun,
	)
	return true
}

func (k *Keeper) submit(ctx context.Context, pair string, cmd *protocol.UpdateCommand) (receipt ledger.Receipt, err error) {
	start := time.Now()
	defer func() {
		status := "accepted"
		switch {
		case k.cfg.DryRun:
			status = "dry_run"
		case err != nil:
			status = string(protocol.KindOf(err))
		}
		metrics.RecordSubmission(pair, status, time.Since(start))
	}()

	encoded, err := protocol.Encode(cmd)
	if err != nil {
		return ledger.Receipt{}, err
	}
	if k.cfg.DryRun {
		return ledger.Receipt{Account: cmd.Account, Opcode: cmd.Opcode()}, nil
	}
	return k.client.Submit(ctx, encoded, k.signer)
}

func (k *Keeper) succeed(u Update) {
	k.mu.Lock()
	st := k.states[u.Pair]
	st.Sequence = u.Sequence
	st.LastConfidence = u.Confidence
	st.LastUpdate = u.Timestamp
	st.ConsecutiveFailures = 0
	st.NextAttempt = time.Time{}
	st.LastErrorKind = ""
	st.LastError = ""
	observers := append(([]func(Update))(nil), k.observers...)
	k.mu.Unlock()

	for _, fn := range observers {
		fn(u)
	}
}

// fail records a rejected submission and applies the retry policy of its
// category. Nothing is retried within the current cycle.
func (k *Keeper) fail(ctx context.Context, logger *logging.Logger, p pairEntry, err error) {
	kind := protocol.KindOf(err)
	category := kind.Category()
	now := k.now()
	id := p.cfg.Pair.ID
	metrics.RecordKeeperError(id, string(kind))

	var until time.Time
	if category == protocol.CategoryCircuitOpen {
		until = k.circuitReopensAt(ctx, p, now)
	}

	k.mu.Lock()
	st := k.states[id]
	st.ConsecutiveFailures++
	st.LastErrorKind = kind
	st.LastError = err.Error()
	failures := st.ConsecutiveFailures
	switch category {
	case protocol.CategoryTransport:
		st.NextAttempt = now.Add(k.backoff(failures))
	case protocol.CategoryCircuitOpen:
		st.Suspended = SuspendCircuitOpen
		st.SuspendedUntil = until
	case protocol.CategoryAuthorization:
		st.Suspended = SuspendUnauthorized
	}
	next := st.NextAttempt
	k.mu.Unlock()

	switch category {
	case protocol.CategoryCircuitOpen:
		logger.Error("Feed circuit breaker open, suspending pair", "until", until, "failures", failures, "error", err)
		metrics.RecordSuspension(id, SuspendCircuitOpen, true)
	case protocol.CategoryAuthorization:
		logger.Error("Signer is not the feed authority, suspending pair until restart", "authority", k.signer.Address().Hex(), "error", err)
		metrics.RecordSuspension(id, SuspendUnauthorized, true)
	case protocol.CategoryTransport:
		logger.Warn("Submission failed, backing off", "next_attempt", next, "failures", failures, "error", err)
	default:
		logger.Warn("Submission rejected", "kind", kind, "failures", failures, "error", err)
	}
}

// backoff is BaseBackoff doubled per consecutive failure, capped at MaxBackoff.
func (k *Keeper) backoff(failures int) time.Duration {
	d := k.cfg.BaseBackoff
	for i := 1; i < failures && d < k.cfg.MaxBackoff; i++ {
		d *= 2
	}
	if d > k.cfg.MaxBackoff {
		d = k.cfg.MaxBackoff
	}
	return d
}

// circuitReopensAt reads the feed's breaker to find when it recovers. If
// the account cannot be read the pair waits MaxBackoff.
func (k *Keeper) circuitReopensAt(ctx context.Context, p pairEntry, now time.Time) time.Time {
	if k.client != nil {
		acct, err := ledger.FetchAccount(ctx, k.client, p.account)
		if err == nil && acct.Breaker.Broken {
			return acct.Breaker.LastError.Add(acct.Params.RecoveryTime)
		}
	}
	return now.Add(k.cfg.MaxBackoff)
}
