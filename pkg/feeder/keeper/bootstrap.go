package keeper

import (
	"context"
	"errors"
	"fmt"

	"github.com/Magicwander/OKX-submission-complete/pkg/feeder/ledger"
	"github.com/Magicwander/OKX-submission-complete/pkg/feeder/protocol"
	"github.com/Magicwander/OKX-submission-complete/pkg/metrics"
)

// Bootstrap initializes every feed that does not exist yet and loads the
// last recorded price and sequence of the ones that do, so a restarted
// keeper does not resubmit an unchanged price. Feeds owned by another
// authority are suspended.
func (k *Keeper) Bootstrap(ctx context.Context) error {
	if k.client == nil {
		return fmt.Errorf("%w: no ledger client", ErrInvalidConfig)
	}
	for _, p := range k.pairs {
		if err := k.bootstrapPair(ctx, p); err != nil {
			return fmt.Errorf("bootstrap %s: %w", p.cfg.Pair.ID, err)
		}
	}
	return nil
}

func (k *Keeper) bootstrapPair(ctx context.Context, p pairEntry) error {
	id := p.cfg.Pair.ID
	acct, err := ledger.FetchAccount(ctx, k.client, p.account)
	if errors.Is(err, ledger.ErrAccountNotFound) || (err == nil && !acct.Initialized) {
		if k.cfg.DryRun {
			k.logger.Info("Feed missing, dry run leaves it uninitialized", "pair", id, "account", p.account.Hex())
			return nil
		}
		encoded, err := protocol.Encode(protocol.NewInitializeCommand(k.cfg.Program, p.cfg.Pair, p.cfg.Params))
		if err != nil {
			return err
		}
		receipt, err := k.client.Submit(ctx, encoded, k.signer)
		if err != nil {
			return err
		}
		k.logger.Info("Feed initialized", "pair", id, "account", p.account.Hex(), "slot", receipt.Slot)
		return nil
	}
	if err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	st := k.states[id]
	if acct.Authority != k.signer.Address() {
		st.Suspended = SuspendUnauthorized
		st.LastErrorKind = protocol.KindUnauthorized
		k.logger.Error("Feed is owned by another authority, pair suspended",
			"pair", id,
			"authority", acct.Authority.Hex(),
			"signer", k.signer.Address().Hex(),
		)
		metrics.RecordSuspension(id, SuspendUnauthorized, true)
		return nil
	}
	st.Sequence = acct.Current.Sequence
	st.LastUpdate = acct.Current.Timestamp
	st.LastConfidence = acct.Current.Confidence
	if acct.Current.Price.IsPositive() {
		st.LastPrice = acct.Current.Price
		st.HasPrice = true
	}
	k.logger.Info("Feed loaded",
		"pair", id,
		"price", acct.Current.Price.String(),
		"sequence", acct.Current.Sequence,
		"updates", acct.Stats.TotalUpdates,
	)
	return nil
}
