package feed

// HistoryRing is a fixed-capacity circular buffer of samples. The slot arena
// is allocated once; slot() is the only place that maps an age to a slot.
type HistoryRing struct {
	slots []PriceSample
	head  int // next slot to write
	count int
}

// NewHistoryRing allocates a ring holding capacity samples.
func NewHistoryRing(capacity int) *HistoryRing {
	if capacity < 0 {
		capacity = 0
	}
	return &HistoryRing{slots: make([]PriceSample, capacity)}
}

// Cap returns the fixed capacity.
func (r *HistoryRing) Cap() int {
	return len(r.slots)
}

// Len returns the number of recorded samples.
func (r *HistoryRing) Len() int {
	return r.count
}

// slot maps age (0 = newest) to an arena index.
func (r *HistoryRing) slot(age int) int {
	n := len(r.slots)
	return ((r.head-1-age)%n + n) % n
}

// Push records s, overwriting the oldest sample once full.
func (r *HistoryRing) Push(s PriceSample) {
	if len(r.slots) == 0 {
		return
	}
	r.slots[r.head] = s
	r.head = (r.head + 1) % len(r.slots)
	if r.count < len(r.slots) {
		r.count++
	}
}

// At returns the sample recorded age pushes ago.
func (r *HistoryRing) At(age int) (PriceSample, bool) {
	if age < 0 || age >= r.count {
		return PriceSample{}, false
	}
	return r.slots[r.slot(age)], true
}

// Latest returns up to limit samples, newest first.
func (r *HistoryRing) Latest(limit int) []PriceSample {
	if limit > r.count {
		limit = r.count
	}
	if limit <= 0 {
		return []PriceSample{}
	}
	out := make([]PriceSample, 0, limit)
	for age := 0; age < limit; age++ {
		out = append(out, r.slots[r.slot(age)].clone())
	}
	return out
}

// Each visits samples newest first until fn returns false.
func (r *HistoryRing) Each(fn func(age int, s PriceSample) bool) {
	for age := 0; age < r.count; age++ {
		if !fn(age, r.slots[r.slot(age)]) {
			return
		}
	}
}

// Clone returns a deep copy.
func (r *HistoryRing) Clone() *HistoryRing {
	if r == nil {
		return nil
	}
	c := &HistoryRing{slots: make([]PriceSample, len(r.slots)), head: r.head, count: r.count}
	for i, s := range r.slots {
		c.slots[i] = s.clone()
	}
	return c
}
