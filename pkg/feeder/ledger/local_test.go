package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Magicwander/OKX-submission-complete/pkg/feed"
	"github.com/Magicwander/OKX-submission-complete/pkg/feeder/keystore"
	"github.com/Magicwander/OKX-submission-complete/pkg/feeder/protocol"
	"github.com/Magicwander/OKX-submission-complete/pkg/logging"
)

var (
	program = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	btcUSD  = feed.TradingPair{ID: "BTC/USD", Base: "BTC", Quote: "USD", BaseDecimals: 8, QuoteDecimals: 6}
	t0      = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

func newLedger(t *testing.T) *LocalLedger {
	t.Helper()
	l, err := OpenLocal(LocalConfig{InMemory: true}, logging.NewNoopLogger())
	require.NoError(t, err)
	l.SetClock(func() time.Time { return t0 })
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func newSigner(t *testing.T) keystore.Signer {
	t.Helper()
	s, err := keystore.Generate()
	require.NoError(t, err)
	return s
}

func encode(t *testing.T, cmd protocol.Command) []byte {
	t.Helper()
	b, err := protocol.Encode(cmd)
	require.NoError(t, err)
	return b
}

func initFeed(t *testing.T, l *LocalLedger, signer keystore.Signer, params feed.Params) common.Address {
	t.Helper()
	cmd := protocol.NewInitializeCommand(program, btcUSD, params)
	_, err := l.Submit(context.Background(), encode(t, cmd), signer)
	require.NoError(t, err)
	return cmd.Account
}

func updateCmd(addr common.Address, price string, seq int64) *protocol.UpdateCommand {
	return &protocol.UpdateCommand{
		Account:    addr,
		Price:      decimal.RequireFromString(price),
		Confidence: 0.95,
		Sequence:   seq,
		Timestamp:  t0,
		Sources:    []string{"okx", "binance"},
	}
}

func TestLocalLedger_InitializeAndUpdate(t *testing.T) {
	l := newLedger(t)
	signer := newSigner(t)
	ctx := context.Background()

	_, err := l.GetAccount(ctx, feed.DeriveAddress(program, btcUSD.ID))
	assert.ErrorIs(t, err, ErrAccountNotFound)

	addr := initFeed(t, l, signer, feed.Params{})
	exists, err := Exists(ctx, l, addr)
	require.NoError(t, err)
	assert.True(t, exists)

	receipt, err := l.Submit(ctx, encode(t, updateCmd(addr, "64000.5", 1)), signer)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), receipt.Slot)
	assert.Equal(t, addr, receipt.Account)
	assert.Equal(t, protocol.OpUpdatePrice, receipt.Opcode)

	acct, err := FetchAccount(ctx, l, addr)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), acct.Authority)
	assert.True(t, acct.Current.Price.Equal(decimal.RequireFromString("64000.5")))
	assert.Equal(t, uint64(1), acct.Stats.TotalUpdates)

	slot, err := l.Slot()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), slot)
}

func TestLocalLedger_SecondInitializeRejected(t *testing.T) {
	l := newLedger(t)
	signer := newSigner(t)
	initFeed(t, l, signer, feed.Params{})

	other := newSigner(t)
	_, err := l.Submit(context.Background(), encode(t, protocol.NewInitializeCommand(program, btcUSD, feed.Params{})), other)
	assert.Equal(t, protocol.KindAlreadyInitialized, protocol.KindOf(err))

	acct, err := FetchAccount(context.Background(), l, feed.DeriveAddress(program, btcUSD.ID))
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), acct.Authority)
}

func TestLocalLedger_UnauthorizedSignerLeavesAccountUnchanged(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	addr := initFeed(t, l, newSigner(t), feed.Params{ErrorThreshold: 1})

	before, err := l.GetAccount(ctx, addr)
	require.NoError(t, err)

	_, err = l.Submit(ctx, encode(t, updateCmd(addr, "1", 1)), newSigner(t))
	assert.ErrorIs(t, err, protocol.ErrUnauthorized)
	assert.Equal(t, protocol.CategoryAuthorization, protocol.CategoryOf(err))

	after, err := l.GetAccount(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestLocalLedger_MissingAccount(t *testing.T) {
	l := newLedger(t)
	_, err := l.Submit(context.Background(), encode(t, updateCmd(common.HexToAddress("0xdead"), "1", 1)), newSigner(t))
	assert.ErrorIs(t, err, protocol.ErrMissingAccount)
}

func TestLocalLedger_BreakerOpensAfterAuthorizedRejections(t *testing.T) {
	l := newLedger(t)
	signer := newSigner(t)
	ctx := context.Background()
	addr := initFeed(t, l, signer, feed.Params{ErrorThreshold: 2, TimeWindow: time.Minute, RecoveryTime: time.Minute})

	for i := 0; i < 2; i++ {
		_, err := l.Submit(ctx, encode(t, updateCmd(addr, "0", 1)), signer)
		assert.ErrorIs(t, err, protocol.ErrNonPositivePrice)
	}

	_, err := l.Submit(ctx, encode(t, updateCmd(addr, "10", 1)), signer)
	assert.Equal(t, protocol.KindCircuitOpen, protocol.KindOf(err))

	acct, err := FetchAccount(ctx, l, addr)
	require.NoError(t, err)
	assert.True(t, acct.Breaker.Broken)
	assert.Equal(t, uint64(2), acct.Breaker.TotalErrors, "open-breaker rejections are not counted")

	later := t0.Add(2 * time.Minute)
	l.SetClock(func() time.Time { return later })
	cmd := updateCmd(addr, "10", 2)
	cmd.Timestamp = later
	_, err = l.Submit(ctx, encode(t, cmd), signer)
	require.NoError(t, err)
}

func TestLocalLedger_Execute_RejectsBadSignatureAndGarbage(t *testing.T) {
	l := newLedger(t)
	encoded := encode(t, updateCmd(common.HexToAddress("0x01"), "1", 1))

	_, err := l.Execute(encoded, []byte{1, 2, 3})
	assert.ErrorIs(t, err, protocol.ErrUnauthorized)

	signer := newSigner(t)
	garbage := []byte{0x7f, protocol.WireVersion}
	sig, err := Sign(garbage, signer)
	require.NoError(t, err)
	_, err = l.Execute(garbage, sig)
	assert.Equal(t, protocol.CategoryValidation, protocol.CategoryOf(err))
}

func TestLocalLedger_SubmitBatchIsIndependent(t *testing.T) {
	l := newLedger(t)
	signer := newSigner(t)
	addr := initFeed(t, l, signer, feed.Params{})

	batch := [][]byte{
		encode(t, updateCmd(addr, "100", 1)),
		encode(t, updateCmd(addr, "-1", 2)),
		encode(t, updateCmd(addr, "101", 3)),
	}
	results := l.SubmitBatch(context.Background(), batch, signer)
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, protocol.ErrNonPositivePrice)
	assert.NoError(t, results[2].Err)
	assert.Less(t, results[0].Receipt.Slot, results[2].Receipt.Slot)

	acct, err := FetchAccount(context.Background(), l, addr)
	require.NoError(t, err)
	assert.True(t, acct.Current.Price.Equal(decimal.NewFromInt(101)))
	assert.Equal(t, int64(3), acct.Current.Sequence)
}

func TestLocalLedger_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	l, err := OpenLocal(LocalConfig{Path: dir}, nil)
	require.NoError(t, err)
	l.SetClock(func() time.Time { return t0 })
	signer := newSigner(t)
	addr := initFeed(t, l, signer, feed.Params{})
	require.NoError(t, l.Close())

	l, err = OpenLocal(LocalConfig{Path: dir}, nil)
	require.NoError(t, err)
	defer l.Close()

	acct, err := FetchAccount(context.Background(), l, addr)
	require.NoError(t, err)
	assert.Equal(t, btcUSD.ID, acct.Pair.ID)
	slot, err := l.Slot()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), slot)
}
