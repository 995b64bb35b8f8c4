package feed

import (
	"math"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testAuthority = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testProgram   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	testPair      = TradingPair{ID: "BTC/USD", Base: "BTC", Quote: "USD", BaseDecimals: 8, QuoteDecimals: 6}
	t0            = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

func newTestAccount(t *testing.T, params Params) *Account {
	t.Helper()
	a := NewAccount()
	require.NoError(t, a.Initialize(testPair, testAuthority, testProgram, params, t0))
	return a
}

func sample(price string, seq int64, ts time.Time, sources ...string) PriceSample {
	return PriceSample{
		Price:       decimal.RequireFromString(price),
		Confidence:  0.9,
		Sources:     sources,
		SampleCount: uint16(len(sources)),
		Timestamp:   ts,
		Sequence:    seq,
	}
}

func TestInitialize(t *testing.T) {
	a := newTestAccount(t, Params{})

	assert.True(t, a.Initialized)
	assert.Equal(t, testAuthority, a.Authority)
	assert.Equal(t, t0, a.CreatedAt)
	assert.Equal(t, t0, a.LastUpdated)
	assert.Equal(t, DefaultHistoryCapacity, a.History.Cap())

	err := a.Initialize(testPair, common.HexToAddress("0x01"), testProgram, Params{}, t0.Add(time.Hour))
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
	assert.Equal(t, testAuthority, a.Authority, "authority must not change")
}

func TestInitialize_RejectsBadInput(t *testing.T) {
	a := NewAccount()
	assert.ErrorIs(t, a.Initialize(TradingPair{ID: "X"}, testAuthority, testProgram, Params{}, t0), ErrInvalidPair)
	assert.ErrorIs(t, a.Initialize(testPair, testAuthority, testProgram, Params{HistoryCapacity: -1}, t0), ErrInvalidParams)
	assert.False(t, a.Initialized)
}

func TestUninitializedAccountRejectsOperations(t *testing.T) {
	a := NewAccount()

	assert.ErrorIs(t, a.ApplyUpdate(sample("1", 1, t0, "okx"), t0), ErrNotInitialized)
	_, err := a.CurrentPrice(t0)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = a.RecentHistory(10)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = a.RecordError(t0)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Contains(t, a.Validate(t0), ViolationNotInitialized)
}

func TestApplyUpdate(t *testing.T) {
	a := newTestAccount(t, Params{})
	now := t0.Add(time.Minute)

	require.NoError(t, a.ApplyUpdate(sample("64000.5", 1, now, "okx", "binance"), now))

	cp, err := a.CurrentPrice(now.Add(10 * time.Second))
	require.NoError(t, err)
	assert.True(t, cp.Price.Equal(decimal.RequireFromString("64000.5")))
	assert.Equal(t, []string{"okx", "binance"}, cp.Sources)
	assert.Equal(t, 10*time.Second, cp.Age)
	assert.False(t, cp.IsStale)
	assert.Equal(t, now, a.LastUpdated)
	assert.Equal(t, uint64(1), a.Stats.TotalUpdates)
	assert.Empty(t, a.Validate(now))

	rel := a.Reliability()
	assert.Equal(t, 1.0, rel["okx"])
}

func TestApplyUpdate_NonPositivePriceLeavesStateUnchanged(t *testing.T) {
	a := newTestAccount(t, Params{HistoryCapacity: 4})
	require.NoError(t, a.ApplyUpdate(sample("10", 1, t0, "okx"), t0))

	before, err := a.Serialize()
	require.NoError(t, err)

	for _, p := range []string{"0", "-1", "-0.0001"} {
		err := a.ApplyUpdate(sample(p, 2, t0.Add(time.Second), "okx", "kraken"), t0.Add(time.Second))
		assert.ErrorIs(t, err, ErrNonPositivePrice, p)
	}

	after, err := a.Serialize()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestApplyUpdate_ConfidenceOutOfRange(t *testing.T) {
	a := newTestAccount(t, Params{})
	s := sample("1", 1, t0, "okx")
	s.Confidence = 1.5
	assert.ErrorIs(t, a.ApplyUpdate(s, t0), ErrConfidenceOutOfRange)
	s.Confidence = -0.1
	assert.ErrorIs(t, a.ApplyUpdate(s, t0), ErrConfidenceOutOfRange)
	s.Confidence = math.NaN()
	assert.ErrorIs(t, a.ApplyUpdate(s, t0), ErrConfidenceOutOfRange)
	assert.Equal(t, uint64(0), a.Stats.TotalUpdates)
	assert.Zero(t, a.History.Len())
}

func TestParams_RejectsNaNMinConfidence(t *testing.T) {
	p := DefaultParams()
	p.MinConfidence = math.NaN()
	assert.ErrorIs(t, p.Validate(), ErrInvalidParams)

	a := NewAccount()
	assert.ErrorIs(t, a.Initialize(testPair, testAuthority, testProgram, p, t0), ErrInvalidParams)
	assert.False(t, a.Initialized)
}

func TestApplyUpdate_OlderSampleLeavesStateUnchanged(t *testing.T) {
	a := newTestAccount(t, Params{HistoryCapacity: 4})
	at := t0.Add(time.Minute)
	require.NoError(t, a.ApplyUpdate(sample("10", 1, at, "okx"), at))

	before, err := a.Serialize()
	require.NoError(t, err)

	err = a.ApplyUpdate(sample("11", 2, at.Add(-time.Second), "okx", "kraken"), at.Add(time.Second))
	assert.ErrorIs(t, err, ErrOutOfOrder)

	after, err := a.Serialize()
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// Equal timestamps are accepted and history stays newest first.
	require.NoError(t, a.ApplyUpdate(sample("12", 2, at, "okx"), at.Add(time.Second)))
	h, err := a.RecentHistory(4)
	require.NoError(t, err)
	require.Len(t, h, 2)
	assert.Equal(t, int64(2), h[0].Sequence)
	assert.False(t, h[0].Timestamp.Before(h[1].Timestamp))
}

func TestApplyUpdate_SourceRegistryFull(t *testing.T) {
	a := newTestAccount(t, Params{})
	names := make([]string, 0, MaxSources)
	for i := 0; i < MaxSources; i++ {
		names = append(names, string(rune('a'+i)))
	}
	require.NoError(t, a.ApplyUpdate(sample("1", 1, t0, names...), t0))

	err := a.ApplyUpdate(sample("2", 2, t0, "newcomer"), t0)
	assert.ErrorIs(t, err, ErrSourceRegistryFull)
	assert.True(t, a.Current.Price.Equal(decimal.NewFromInt(1)))
}

func TestHistory_OverCapacityKeepsNewest(t *testing.T) {
	const capacity = 5
	a := newTestAccount(t, Params{HistoryCapacity: capacity})

	for i := 1; i <= capacity+3; i++ {
		ts := t0.Add(time.Duration(i) * time.Second)
		require.NoError(t, a.ApplyUpdate(sample(decimal.NewFromInt(int64(100+i)).String(), int64(i), ts, "okx"), ts))
	}

	h, err := a.RecentHistory(capacity)
	require.NoError(t, err)
	require.Len(t, h, capacity)
	for i, s := range h {
		assert.Equal(t, int64(capacity+3-i), s.Sequence)
	}
	for i := 1; i < len(h); i++ {
		assert.True(t, h[i-1].Timestamp.After(h[i].Timestamp), "history must be newest first")
	}

	h, err = a.RecentHistory(2)
	require.NoError(t, err)
	assert.Len(t, h, 2)
	h, err = a.RecentHistory(100)
	require.NoError(t, err)
	assert.Len(t, h, capacity)
}

func TestStatistics(t *testing.T) {
	a := newTestAccount(t, Params{})
	base := t0

	// Eight days ago, outside both the 24h and the 7d window of the last sample.
	require.NoError(t, a.ApplyUpdate(sample("50", 1, base, "okx"), base))
	// Two days before the last sample: inside 7d, outside 24h.
	d6 := base.Add(6 * 24 * time.Hour)
	require.NoError(t, a.ApplyUpdate(sample("200", 2, d6, "okx"), d6))
	d8a := base.Add(8*24*time.Hour - time.Hour)
	require.NoError(t, a.ApplyUpdate(sample("100", 3, d8a, "okx", "binance"), d8a))
	d8 := base.Add(8 * 24 * time.Hour)
	require.NoError(t, a.ApplyUpdate(sample("110", 4, d8, "okx"), d8))

	s := a.Stats
	assert.True(t, s.Day.High.Equal(decimal.NewFromInt(110)))
	assert.True(t, s.Day.Low.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, uint32(2), s.Day.Updates)
	assert.True(t, s.Day.Volume.Equal(decimal.NewFromInt(3)))
	assert.True(t, s.Day.Change.Equal(decimal.RequireFromString("0.1")), s.Day.Change.String())

	assert.True(t, s.Week.High.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, uint32(3), s.Week.Updates)

	assert.True(t, s.AllTimeHigh.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, d6, s.AllTimeHighAt)
	assert.True(t, s.AllTimeLow.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, uint64(4), s.TotalUpdates)
}

func TestStatistics_AllTimeExtremesAreMonotone(t *testing.T) {
	a := newTestAccount(t, Params{HistoryCapacity: 2})
	prices := []string{"10", "12", "8", "11", "9", "13", "7.5"}
	prevHigh, prevLow := decimal.Zero, decimal.Zero

	for i, p := range prices {
		ts := t0.Add(time.Duration(i) * time.Minute)
		require.NoError(t, a.ApplyUpdate(sample(p, int64(i+1), ts, "okx"), ts))
		if i > 0 {
			assert.True(t, a.Stats.AllTimeHigh.GreaterThanOrEqual(prevHigh))
			assert.True(t, a.Stats.AllTimeLow.LessThanOrEqual(prevLow))
		}
		prevHigh, prevLow = a.Stats.AllTimeHigh, a.Stats.AllTimeLow
	}
	assert.True(t, a.Stats.AllTimeHigh.Equal(decimal.NewFromInt(13)))
	assert.True(t, a.Stats.AllTimeLow.Equal(decimal.RequireFromString("7.5")))
}

func TestValidate_CollectsAllViolations(t *testing.T) {
	a := newTestAccount(t, Params{MaxAge: time.Minute, MinConfidence: 0.8})
	s := sample("5", 1, t0, "okx")
	s.Confidence = 0.4
	require.NoError(t, a.ApplyUpdate(s, t0))

	v := a.Validate(t0.Add(2 * time.Minute))
	assert.ElementsMatch(t, []Violation{ViolationLowConfidence, ViolationStale}, v)

	fresh := newTestAccount(t, Params{MaxAge: time.Minute})
	v = fresh.Validate(t0)
	assert.Contains(t, v, ViolationNonPositivePrice)
	assert.Contains(t, v, ViolationLowConfidence)
	assert.NotContains(t, v, ViolationStale)
}

func TestCurrentPrice_Staleness(t *testing.T) {
	a := newTestAccount(t, Params{MaxAge: 30 * time.Second})
	require.NoError(t, a.ApplyUpdate(sample("5", 1, t0, "okx"), t0))

	cp, err := a.CurrentPrice(t0.Add(30 * time.Second))
	require.NoError(t, err)
	assert.False(t, cp.IsStale)

	cp, err = a.CurrentPrice(t0.Add(31 * time.Second))
	require.NoError(t, err)
	assert.True(t, cp.IsStale)
}

func TestSnapshot_IsIndependent(t *testing.T) {
	a := newTestAccount(t, Params{HistoryCapacity: 3})
	require.NoError(t, a.ApplyUpdate(sample("1", 1, t0, "okx"), t0))

	snap := a.Snapshot()
	require.NoError(t, a.ApplyUpdate(sample("2", 2, t0.Add(time.Second), "binance"), t0.Add(time.Second)))

	assert.Equal(t, 1, snap.History.Len())
	assert.Len(t, snap.Sources, 1)
	assert.True(t, snap.Current.Price.Equal(decimal.NewFromInt(1)))
}

func TestDeriveAddress(t *testing.T) {
	a := DeriveAddress(testProgram, "BTC/USD")
	b := DeriveAddress(testProgram, "ETH/USD")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, DeriveAddress(testProgram, "BTC/USD"))
	assert.Equal(t, a, newTestAccount(t, Params{}).Address())
}
