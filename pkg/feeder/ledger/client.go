package ledger

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Magicwander/OKX-submission-complete/pkg/feed"
	"github.com/Magicwander/OKX-submission-complete/pkg/feeder/keystore"
	"github.com/Magicwander/OKX-submission-complete/pkg/feeder/protocol"
)

// Receipt confirms an accepted command.
type Receipt struct {
	Slot    uint64          `json:"slot"`
	Account common.Address  `json:"account"`
	Opcode  protocol.Opcode `json:"opcode"`
	Digest  common.Hash     `json:"digest"`
}

// AccountReader reads serialized feed accounts.
type AccountReader interface {
	GetAccount(ctx context.Context, addr common.Address) ([]byte, error)
}

// Client submits encoded commands and reads serialized accounts.
// Submit failures are *protocol.Error values so callers can classify them.
type Client interface {
	AccountReader
	Submit(ctx context.Context, encoded []byte, signer keystore.Signer) (Receipt, error)
}

// Executor applies a command that was already signed.
type Executor interface {
	Execute(encoded, sig []byte) (Receipt, error)
}

// BatchResult is the outcome of one command of SubmitBatch.
type BatchResult struct {
	Receipt Receipt
	Err     error
}

// Sign returns the signature of signer over encoded.
func Sign(encoded []byte, signer keystore.Signer) ([]byte, error) {
	if signer == nil {
		return nil, protocol.NewError(protocol.KindUnauthorized, "no signer")
	}
	sig, err := signer.Sign(protocol.Digest(encoded))
	if err != nil {
		return nil, protocol.NewError(protocol.KindUnauthorized, "sign: %v", err)
	}
	return sig, nil
}

// SubmitBatch submits every command independently, in order. A failed
// command never prevents the ones after it.
func SubmitBatch(ctx context.Context, c Client, encoded [][]byte, signer keystore.Signer) []BatchResult {
	out := make([]BatchResult, len(encoded))
	for i, b := range encoded {
		if err := ctx.Err(); err != nil {
			out[i].Err = protocol.Transport(err)
			continue
		}
		out[i].Receipt, out[i].Err = c.Submit(ctx, b, signer)
	}
	return out
}

// FetchAccount reads and deserializes the account at addr.
func FetchAccount(ctx context.Context, c AccountReader, addr common.Address) (*feed.Account, error) {
	b, err := c.GetAccount(ctx, addr)
	if err != nil {
		return nil, err
	}
	return feed.Deserialize(b)
}

// Exists reports whether an initialized account is stored at addr.
func Exists(ctx context.Context, c AccountReader, addr common.Address) (bool, error) {
	acct, err := FetchAccount(ctx, c, addr)
	switch {
	case errors.Is(err, ErrAccountNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return acct.Initialized, nil
}
