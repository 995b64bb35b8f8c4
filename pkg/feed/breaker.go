package feed

import "time"

// Breaker is the persisted circuit-breaker state of a feed.
//
// Recent holds the times of the errors still inside TimeWindow, oldest
// first, so the count is a rolling one rather than per fixed bucket.
type Breaker struct {
	Broken      bool        `json:"broken"`
	ErrorCount  int         `json:"error_count"`
	Recent      []time.Time `json:"recent_errors,omitempty"`
	LastError   time.Time   `json:"last_error"`
	OpenedAt    time.Time   `json:"opened_at"`
	TotalErrors uint64      `json:"total_errors"`
}

// open reports whether the breaker still blocks updates at now.
func (b Breaker) open(now time.Time, p Params) bool {
	return b.Broken && now.Sub(b.LastError) < p.RecoveryTime
}

// recovered reports a broken breaker whose recovery time has passed.
func (b Breaker) recovered(now time.Time, p Params) bool {
	return b.Broken && now.Sub(b.LastError) >= p.RecoveryTime
}

func (b *Breaker) reset() {
	b.Broken = false
	b.ErrorCount = 0
	b.Recent = nil
	b.OpenedAt = time.Time{}
}

// record counts one error and reports whether this error opened the breaker.
func (b *Breaker) record(now time.Time, p Params) bool {
	if b.recovered(now, p) {
		b.reset()
	}

	kept := make([]time.Time, 0, len(b.Recent)+1)
	for _, t := range b.Recent {
		if now.Sub(t) <= p.TimeWindow {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	if n := len(kept); n > MaxErrorThreshold {
		kept = kept[n-MaxErrorThreshold:]
	}
	b.Recent = kept
	b.ErrorCount = len(kept)
	b.TotalErrors++
	b.LastError = now

	if !b.Broken && b.ErrorCount >= p.ErrorThreshold {
		b.Broken = true
		b.OpenedAt = now
		return true
	}
	return false
}
