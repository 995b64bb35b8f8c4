package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ethereum/go-ethereum/common"

	"github.com/Magicwander/OKX-submission-complete/pkg/feed"
	"github.com/Magicwander/OKX-submission-complete/pkg/feeder/keystore"
	"github.com/Magicwander/OKX-submission-complete/pkg/feeder/protocol"
	"github.com/Magicwander/OKX-submission-complete/pkg/logging"
)

var slotKey = []byte("meta/slot")

func accountKey(addr common.Address) []byte {
	return append([]byte("feed/"), addr.Bytes()...)
}

// LocalConfig configures the embedded ledger store.
type LocalConfig struct {
	Path     string
	InMemory bool
}

// LocalLedger stores feed accounts in badger and executes signed commands
// against them. Commands are applied one at a time.
type LocalLedger struct {
	db     *badger.DB
	logger *logging.Logger
	mu     sync.Mutex
	now    func() time.Time
}

var (
	_ Client   = (*LocalLedger)(nil)
	_ Executor = (*LocalLedger)(nil)
)

// OpenLocal opens (or creates) the store described by cfg.
func OpenLocal(cfg LocalConfig, logger *logging.Logger) (*LocalLedger, error) {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	logger = logger.With("component", "ledger")

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory || cfg.Path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(badgerLogger{logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open ledger store: %w", err)
	}
	logger.Info("Ledger store opened", "path", cfg.Path, "in_memory", opts.InMemory)
	return &LocalLedger{db: db, logger: logger, now: time.Now}, nil
}

// SetClock replaces the time source used to execute commands.
func (l *LocalLedger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Close closes the store.
func (l *LocalLedger) Close() error {
	return l.db.Close()
}

// Submit signs encoded with signer and executes it.
func (l *LocalLedger) Submit(ctx context.Context, encoded []byte, signer keystore.Signer) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, protocol.Transport(err)
	}
	sig, err := Sign(encoded, signer)
	if err != nil {
		return Receipt{}, err
	}
	return l.Execute(encoded, sig)
}

// Execute verifies sig over encoded and applies the command. Rejected
// updates signed by the feed authority are counted against the feed's
// circuit breaker, except rejections caused by the open breaker itself.
func (l *LocalLedger) Execute(encoded, sig []byte) (Receipt, error) {
	digest := protocol.Digest(encoded)
	signer, err := keystore.Recover(digest, sig)
	if err != nil {
		return Receipt{}, protocol.NewError(protocol.KindUnauthorized, "%v", err)
	}
	cmd, err := protocol.Decode(encoded)
	if err != nil {
		return Receipt{}, protocol.Wrap(err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()

	receipt := Receipt{Account: cmd.Target(), Opcode: cmd.Opcode(), Digest: common.BytesToHash(digest)}
	var cmdErr error
	err = l.db.Update(func(txn *badger.Txn) error {
		acct, err := loadAccount(txn, cmd.Target())
		if err != nil && !errors.Is(err, ErrAccountNotFound) {
			return err
		}

		switch c := cmd.(type) {
		case *protocol.InitializeCommand:
			if acct == nil {
				acct = feed.NewAccount()
			}
			if cmdErr = protocol.ApplyInitialize(c, acct, signer, now); cmdErr != nil {
				return cmdErr
			}
		case *protocol.UpdateCommand:
			if cmdErr = protocol.Apply(c, acct, signer, now); cmdErr != nil {
				if !countsAgainstBreaker(acct, signer, cmdErr) {
					return cmdErr
				}
				opened, _ := acct.RecordError(now)
				if opened {
					l.logger.Warn("Circuit breaker opened", "pair", acct.Pair.ID, "errors", acct.Breaker.ErrorCount)
				}
				// Persist the breaker state but still report the failure.
				return storeAccount(txn, cmd.Target(), acct)
			}
		default:
			cmdErr = protocol.NewError(protocol.KindMalformed, "unsupported command %T", cmd)
			return cmdErr
		}

		slot, err := nextSlot(txn)
		if err != nil {
			return err
		}
		receipt.Slot = slot
		return storeAccount(txn, cmd.Target(), acct)
	})
	if cmdErr != nil {
		l.logger.Debug("Command rejected", "account", receipt.Account.Hex(), "opcode", receipt.Opcode.String(), "error", cmdErr)
		return Receipt{}, cmdErr
	}
	if err != nil {
		return Receipt{}, protocol.Transport(fmt.Errorf("ledger store: %w", err))
	}
	return receipt, nil
}

func countsAgainstBreaker(acct *feed.Account, signer common.Address, err error) bool {
	if acct == nil || !acct.Initialized || signer != acct.Authority {
		return false
	}
	return protocol.KindOf(err) != protocol.KindCircuitOpen
}

// SubmitBatch submits every command independently.
func (l *LocalLedger) SubmitBatch(ctx context.Context, encoded [][]byte, signer keystore.Signer) []BatchResult {
	return SubmitBatch(ctx, l, encoded, signer)
}

// GetAccount returns the serialized account at addr.
func (l *LocalLedger) GetAccount(ctx context.Context, addr common.Address) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(accountKey(addr))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrAccountNotFound, addr.Hex())
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	return out, err
}

// Slot returns the number of commands accepted so far.
func (l *LocalLedger) Slot() (uint64, error) {
	var slot uint64
	err := l.db.View(func(txn *badger.Txn) error {
		var err error
		slot, err = readSlot(txn)
		return err
	})
	return slot, err
}

func loadAccount(txn *badger.Txn, addr common.Address) (*feed.Account, error) {
	item, err := txn.Get(accountKey(addr))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	var acct *feed.Account
	err = item.Value(func(val []byte) error {
		acct, err = feed.Deserialize(val)
		return err
	})
	return acct, err
}

func storeAccount(txn *badger.Txn, addr common.Address, acct *feed.Account) error {
	b, err := acct.Serialize()
	if err != nil {
		return err
	}
	return txn.Set(accountKey(addr), b)
}

func readSlot(txn *badger.Txn) (uint64, error) {
	item, err := txn.Get(slotKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var slot uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("slot counter has %d bytes", len(val))
		}
		slot = binary.BigEndian.Uint64(val)
		return nil
	})
	return slot, err
}

func nextSlot(txn *badger.Txn) (uint64, error) {
	slot, err := readSlot(txn)
	if err != nil {
		return 0, err
	}
	slot++
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], slot)
	return slot, txn.Set(slotKey, b[:])
}

// badgerLogger routes badger's printf-style logging into the keeper logger.
type badgerLogger struct {
	l *logging.Logger
}

func (b badgerLogger) Errorf(format string, args ...interface{}) {
	b.l.Error(fmt.Sprintf(format, args...))
}

func (b badgerLogger) Warningf(format string, args ...interface{}) {
	b.l.Warn(fmt.Sprintf(format, args...))
}

func (b badgerLogger) Infof(format string, args ...interface{}) {
	b.l.Debug(fmt.Sprintf(format, args...))
}

func (b badgerLogger) Debugf(format string, args ...interface{}) {
	b.l.Debug(fmt.Sprintf(format, args...))
}
