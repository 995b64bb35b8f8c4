package feed

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Sizes of the persisted account layout. All integers are big-endian.
const (
	DecimalSize = 20 // i128 coefficient + i32 exponent
	SampleSize  = DecimalSize + 8 + 2 + 2 + 8 + 8

	pairSize    = MaxPairIDLen + 2*MaxSymbolLen + 2
	paramsSize  = 8 + 8 + 2 + 2 + 8 + 8
	HeaderSize  = 1 + 1 + 4 + common.AddressLength*2 + 8 + 8 + pairSize + paramsSize
	windowSize  = 4*DecimalSize + 4
	StatsSize   = 2*windowSize + 2*DecimalSize + 8 + 8 + 8
	sourceSize  = MaxSourceNameLen + 8 + 8
	SourcesSize = MaxSources * sourceSize
	BreakerSize = 2 + MaxErrorThreshold*8 + 8 + 8 + 8

	historyHeaderSize = 4 + 4

	fixedSize = HeaderSize + SampleSize + StatsSize + SourcesSize + BreakerSize + ReservedSize + historyHeaderSize
)

const (
	flagInitialized = 1 << 0
	flagBroken      = 1 << 1
)

var two128 = new(big.Int).Lsh(big.NewInt(1), 128)

// AccountSize returns the serialized size of an account with the given
// history capacity.
func AccountSize(capacity int) int {
	return fixedSize + capacity*SampleSize
}

// Serialize encodes the account into its fixed layout.
func (a *Account) Serialize() ([]byte, error) {
	capacity := 0
	if a.History != nil {
		capacity = a.History.Cap()
	}
	w := &writer{buf: make([]byte, AccountSize(capacity))}

	var flags uint8
	if a.Initialized {
		flags |= flagInitialized
	}
	if a.Breaker.Broken {
		flags |= flagBroken
	}
	w.u8(LayoutVersion)
	w.u8(flags)
	w.u32(uint32(capacity))
	w.bytes(a.Authority.Bytes())
	w.bytes(a.Program.Bytes())
	w.time(a.CreatedAt)
	w.time(a.LastUpdated)

	w.str(a.Pair.ID, MaxPairIDLen)
	w.str(a.Pair.Base, MaxSymbolLen)
	w.str(a.Pair.Quote, MaxSymbolLen)
	w.u8(a.Pair.BaseDecimals)
	w.u8(a.Pair.QuoteDecimals)

	w.i64(int64(a.Params.MaxAge))
	w.f64(a.Params.MinConfidence)
	w.u16(uint16(a.Params.MinimumSources))
	w.u16(uint16(a.Params.ErrorThreshold))
	w.i64(int64(a.Params.TimeWindow))
	w.i64(int64(a.Params.RecoveryTime))

	w.sample(a.Current, a.Sources)

	for _, ws := range []WindowStats{a.Stats.Day, a.Stats.Week} {
		w.decimal(ws.High)
		w.decimal(ws.Low)
		w.decimal(ws.Change)
		w.decimal(ws.Volume)
		w.u32(ws.Updates)
	}
	w.decimal(a.Stats.AllTimeHigh)
	w.decimal(a.Stats.AllTimeLow)
	w.time(a.Stats.AllTimeHighAt)
	w.time(a.Stats.AllTimeLowAt)
	w.u64(a.Stats.TotalUpdates)

	if len(a.Sources) > MaxSources {
		return nil, fmt.Errorf("%w: %d sources", ErrSourceRegistryFull, len(a.Sources))
	}
	for i := 0; i < MaxSources; i++ {
		var s SourceStats
		if i < len(a.Sources) {
			s = a.Sources[i]
		}
		w.str(s.Name, MaxSourceNameLen)
		w.u64(s.Contributions)
		w.time(s.LastSeen)
	}

	recent := a.Breaker.Recent
	if len(recent) > MaxErrorThreshold {
		recent = recent[len(recent)-MaxErrorThreshold:]
	}
	w.u16(uint16(len(recent)))
	for i := 0; i < MaxErrorThreshold; i++ {
		var t time.Time
		if i < len(recent) {
			t = recent[i]
		}
		w.time(t)
	}
	w.time(a.Breaker.LastError)
	w.time(a.Breaker.OpenedAt)
	w.u64(a.Breaker.TotalErrors)

	w.bytes(a.Reserved[:])

	if a.History != nil {
		w.u32(uint32(a.History.head))
		w.u32(uint32(a.History.count))
		for _, s := range a.History.slots {
			w.sample(s, a.Sources)
		}
	} else {
		w.u32(0)
		w.u32(0)
	}

	if w.err != nil {
		return nil, w.err
	}
	return w.buf, nil
}

// Deserialize decodes an account. The version byte is checked before any
// other field is read.
func Deserialize(b []byte) (*Account, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("%w: empty buffer", ErrInvalidLayout)
	}
	if b[0] != LayoutVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, b[0])
	}
	if len(b) < fixedSize {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrInvalidLayout, len(b), fixedSize)
	}

	r := &reader{buf: b}
	a := &Account{}
	a.Version = r.u8()
	flags := r.u8()
	capacity := int(r.u32())
	if capacity > MaxHistoryCapacity || len(b) != AccountSize(capacity) {
		return nil, fmt.Errorf("%w: %d bytes for capacity %d", ErrInvalidLayout, len(b), capacity)
	}
	a.Initialized = flags&flagInitialized != 0
	a.Breaker.Broken = flags&flagBroken != 0
	a.Authority = common.BytesToAddress(r.bytes(common.AddressLength))
	a.Program = common.BytesToAddress(r.bytes(common.AddressLength))
	a.CreatedAt = r.time()
	a.LastUpdated = r.time()

	a.Pair.ID = r.str(MaxPairIDLen)
	a.Pair.Base = r.str(MaxSymbolLen)
	a.Pair.Quote = r.str(MaxSymbolLen)
	a.Pair.BaseDecimals = r.u8()
	a.Pair.QuoteDecimals = r.u8()

	a.Params.HistoryCapacity = capacity
	a.Params.MaxAge = time.Duration(r.i64())
	a.Params.MinConfidence = r.f64()
	a.Params.MinimumSources = int(r.u16())
	a.Params.ErrorThreshold = int(r.u16())
	a.Params.TimeWindow = time.Duration(r.i64())
	a.Params.RecoveryTime = time.Duration(r.i64())

	// The registry follows the current sample on disk but is needed to
	// resolve its source mask, so read it first.
	registryOffset := HeaderSize + SampleSize + StatsSize
	a.Sources = readRegistry(&reader{buf: b, off: registryOffset})

	a.Current = r.sample(a.Sources)

	for _, ws := range []*WindowStats{&a.Stats.Day, &a.Stats.Week} {
		ws.High = r.decimal()
		ws.Low = r.decimal()
		ws.Change = r.decimal()
		ws.Volume = r.decimal()
		ws.Updates = r.u32()
	}
	a.Stats.AllTimeHigh = r.decimal()
	a.Stats.AllTimeLow = r.decimal()
	a.Stats.AllTimeHighAt = r.time()
	a.Stats.AllTimeLowAt = r.time()
	a.Stats.TotalUpdates = r.u64()

	r.skip(SourcesSize)

	recent := int(r.u16())
	if recent > MaxErrorThreshold {
		return nil, fmt.Errorf("%w: %d breaker errors, slots for %d", ErrInvalidLayout, recent, MaxErrorThreshold)
	}
	for i := 0; i < MaxErrorThreshold; i++ {
		t := r.time()
		if i < recent {
			a.Breaker.Recent = append(a.Breaker.Recent, t)
		}
	}
	a.Breaker.ErrorCount = recent
	a.Breaker.LastError = r.time()
	a.Breaker.OpenedAt = r.time()
	a.Breaker.TotalErrors = r.u64()

	copy(a.Reserved[:], r.bytes(ReservedSize))

	head := int(r.u32())
	count := int(r.u32())
	if (capacity == 0 && (head != 0 || count != 0)) || (capacity > 0 && (head >= capacity || count > capacity)) {
		return nil, fmt.Errorf("%w: ring head %d count %d capacity %d", ErrInvalidLayout, head, count, capacity)
	}
	a.History = &HistoryRing{slots: make([]PriceSample, capacity), head: head, count: count}
	for i := 0; i < capacity; i++ {
		a.History.slots[i] = r.sample(a.Sources)
	}

	if r.err != nil {
		return nil, r.err
	}
	return a, nil
}

func readRegistry(r *reader) []SourceStats {
	var registry []SourceStats
	for i := 0; i < MaxSources; i++ {
		s := SourceStats{Name: r.str(MaxSourceNameLen), Contributions: r.u64(), LastSeen: r.time()}
		if s.Name == "" {
			break
		}
		registry = append(registry, s)
	}
	return registry
}

// PutDecimal writes d as a 16-byte two's-complement coefficient followed by a
// 4-byte exponent.
func PutDecimal(b []byte, d decimal.Decimal) error {
	coef, err := coefficientFits(d)
	if err != nil {
		return err
	}
	if coef.Sign() < 0 {
		coef.Add(coef, two128)
	}
	coef.FillBytes(b[:16])
	binary.BigEndian.PutUint32(b[16:20], uint32(d.Exponent()))
	return nil
}

// ReadDecimal is the inverse of PutDecimal.
func ReadDecimal(b []byte) decimal.Decimal {
	coef := new(big.Int).SetBytes(b[:16])
	if b[0]&0x80 != 0 {
		coef.Sub(coef, two128)
	}
	return decimal.NewFromBigInt(coef, int32(binary.BigEndian.Uint32(b[16:20])))
}

func coefficientFits(d decimal.Decimal) (*big.Int, error) {
	coef := d.Coefficient()
	if coef.BitLen() > 127 {
		return nil, fmt.Errorf("%w: %s", ErrPriceOverflow, d)
	}
	return coef, nil
}

func putTime(b []byte, t time.Time) {
	var n int64
	if !t.IsZero() {
		n = t.UnixNano()
	}
	binary.BigEndian.PutUint64(b, uint64(n))
}

func readTime(b []byte) time.Time {
	n := int64(binary.BigEndian.Uint64(b))
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// PutTime and ReadTime expose the timestamp encoding (unix nanoseconds, 0
// for the zero time) to wire codecs.
func PutTime(b []byte, t time.Time) { putTime(b, t) }

// ReadTime decodes a timestamp written by PutTime.
func ReadTime(b []byte) time.Time { return readTime(b) }

// writer appends fixed-width fields; the first error sticks.
type writer struct {
	buf []byte
	off int
	err error
}

func (w *writer) next(n int) []byte {
	b := w.buf[w.off : w.off+n]
	w.off += n
	return b
}

func (w *writer) u8(v uint8) { w.next(1)[0] = v }
func (w *writer) u16(v uint16) { binary.BigEndian.PutUint16(w.next(2), v) }
func (w *writer) u32(v uint32) { binary.BigEndian.PutUint32(w.next(4), v) }
func (w *writer) u64(v uint64) { binary.BigEndian.PutUint64(w.next(8), v) }
func (w *writer) i64(v int64) { w.u64(uint64(v)) }
func (w *writer) f64(v float64) { w.u64(math.Float64bits(v)) }
func (w *writer) time(t time.Time) { putTime(w.next(8), t) }
func (w *writer) bytes(b []byte) { copy(w.next(len(b)), b) }

func (w *writer) str(s string, n int) {
	b := w.next(n)
	if len(s) > n {
		w.fail(fmt.Errorf("%w: %q longer than %d bytes", ErrFieldTooLong, s, n))
		return
	}
	copy(b, s)
}

func (w *writer) decimal(d decimal.Decimal) {
	if err := PutDecimal(w.next(DecimalSize), d); err != nil {
		w.fail(err)
	}
}

func (w *writer) sample(s PriceSample, registry []SourceStats) {
	w.decimal(s.Price)
	w.f64(s.Confidence)
	w.u16(s.SampleCount)
	mask, err := maskForNames(registry, s.Sources)
	if err != nil {
		w.fail(err)
	}
	w.u16(mask)
	w.time(s.Timestamp)
	w.i64(s.Sequence)
}

func (w *writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

// reader consumes fixed-width fields. Callers size-check the buffer first.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) next(n int) []byte {
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) skip(n int) { r.off += n }
func (r *reader) u8() uint8 { return r.next(1)[0] }
func (r *reader) u16() uint16 { return binary.BigEndian.Uint16(r.next(2)) }
func (r *reader) u32() uint32 { return binary.BigEndian.Uint32(r.next(4)) }
func (r *reader) u64() uint64 { return binary.BigEndian.Uint64(r.next(8)) }
func (r *reader) i64() int64 { return int64(r.u64()) }
func (r *reader) f64() float64 { return math.Float64frombits(r.u64()) }
func (r *reader) time() time.Time { return readTime(r.next(8)) }
func (r *reader) bytes(n int) []byte { return append([]byte(nil), r.next(n)...) }
func (r *reader) decimal() decimal.Decimal { return ReadDecimal(r.next(DecimalSize)) }

func (r *reader) str(n int) string {
	b := r.next(n)
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end])
}

func (r *reader) sample(registry []SourceStats) PriceSample {
	s := PriceSample{
		Price:       r.decimal(),
		Confidence:  r.f64(),
		SampleCount: r.u16(),
	}
	mask := r.u16()
	if mask>>uint(len(registry)) != 0 {
		if r.err == nil {
			r.err = fmt.Errorf("%w: source mask %#x exceeds registry of %d", ErrInvalidLayout, mask, len(registry))
		}
	}
	s.Sources = namesForMask(registry, mask)
	s.Timestamp = r.time()
	s.Sequence = r.i64()
	return s
}
