package keeper

import (
	"time"

	"github.com/shopspring/decimal"
)

// ShouldUpdate reports whether price warrants an update of pair and, if so,
// records it as the pair's last price. It is true when no price was
// recorded yet, when the recorded price is not positive, or when the
// relative move |price-last|/last reaches the change threshold.
func (k *Keeper) ShouldUpdate(pair string, price decimal.Decimal) bool {
	ok, _ := k.decide(pair, price)
	return ok
}

// decide is ShouldUpdate that also returns the state to restore when the
// submission fails.
func (k *Keeper) decide(pair string, price decimal.Decimal) (bool, PairState) {
	k.mu.Lock()
	defer k.mu.Unlock()

	st, ok := k.states[pair]
	if !ok {
		st = &PairState{Pair: pair}
		k.states[pair] = st
	}
	prev := *st
	if !k.warranted(st, price) {
		return false, prev
	}
	st.LastPrice = price
	st.HasPrice = true
	return true, prev
}

func (k *Keeper) warranted(st *PairState, price decimal.Decimal) bool {
	if !st.HasPrice || !st.LastPrice.IsPositive() {
		return true
	}
	delta := price.Sub(st.LastPrice).Abs().Div(st.LastPrice)
	return delta.GreaterThanOrEqual(k.cfg.ChangeThreshold)
}

// lastUpdate is the sample time of the last accepted update for pair.
func (k *Keeper) lastUpdate(pair string) time.Time {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if st, ok := k.states[pair]; ok {
		return st.LastUpdate
	}
	return time.Time{}
}

// rollback restores the recorded price after a failed submission.
func (k *Keeper) rollback(pair string, prev PairState) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if st, ok := k.states[pair]; ok {
		st.LastPrice = prev.LastPrice
		st.HasPrice = prev.HasPrice
	}
}
