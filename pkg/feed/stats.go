package feed

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	dayWindow  = 24 * time.Hour
	weekWindow = 7 * 24 * time.Hour

	// changePlaces bounds the scale of relative change values.
	changePlaces = 12
)

// recompute refreshes the rolling windows from the ring and folds sample into
// the all-time figures. ref anchors both windows.
func (s *Statistics) recompute(ring *HistoryRing, sample PriceSample) {
	ref := sample.Timestamp
	s.Day = scanWindow(ring, ref.Add(-dayWindow))
	s.Week = scanWindow(ring, ref.Add(-weekWindow))

	if s.TotalUpdates == 0 || sample.Price.GreaterThan(s.AllTimeHigh) {
		s.AllTimeHigh = sample.Price
		s.AllTimeHighAt = sample.Timestamp
	}
	if s.TotalUpdates == 0 || sample.Price.LessThan(s.AllTimeLow) {
		s.AllTimeLow = sample.Price
		s.AllTimeLowAt = sample.Timestamp
	}
	s.TotalUpdates++
}

// scanWindow summarizes every ring entry stamped at or after since.
// Change is relative: (newest - oldest) / oldest, in insertion order.
func scanWindow(ring *HistoryRing, since time.Time) WindowStats {
	var (
		ws             WindowStats
		newest, oldest decimal.Decimal
	)
	ring.Each(func(_ int, s PriceSample) bool {
		if s.Timestamp.Before(since) {
			return true
		}
		if ws.Updates == 0 {
			newest = s.Price
			ws.High = s.Price
			ws.Low = s.Price
		}
		if s.Price.GreaterThan(ws.High) {
			ws.High = s.Price
		}
		if s.Price.LessThan(ws.Low) {
			ws.Low = s.Price
		}
		oldest = s.Price
		ws.Volume = ws.Volume.Add(decimal.NewFromInt(int64(s.SampleCount)))
		ws.Updates++
		return true
	})

	if ws.Updates > 1 && oldest.IsPositive() {
		ws.Change = newest.Sub(oldest).Div(oldest).Round(changePlaces)
	}
	return ws
}
