package protocol

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Magicwander/OKX-submission-complete/pkg/feed"
)

// Validate checks an update against the target account, failing fast in
// this order: missing account, unauthorized signer, non-positive price,
// confidence out of range, non-positive sequence, stale timestamp,
// insufficient sources. It never modifies acct.
func Validate(cmd *UpdateCommand, acct *feed.Account, signer common.Address, now time.Time) error {
	switch {
	case cmd == nil || cmd.Account == (common.Address{}):
		return NewError(KindMissingAccount, "command has no target account")
	case acct == nil || !acct.Initialized:
		return NewError(KindMissingAccount, "%s is not an initialized feed", cmd.Account.Hex())
	case acct.Address() != cmd.Account:
		return NewError(KindMissingAccount, "%s does not match feed %s", cmd.Account.Hex(), acct.Pair.ID)
	case signer != acct.Authority:
		return NewError(KindUnauthorized, "%s is not authority of %s", signer.Hex(), acct.Pair.ID)
	case !cmd.Price.IsPositive():
		return NewError(KindNonPositivePrice, "%s", cmd.Price)
	case !feed.ValidConfidence(cmd.Confidence):
		return NewError(KindConfidenceOutOfRange, "%v not in [%v, %v]", cmd.Confidence, feed.MinConfidence, feed.MaxConfidence)
	case cmd.Sequence <= 0:
		return NewError(KindNonPositiveSequence, "%d", cmd.Sequence)
	case now.Sub(cmd.Timestamp) > acct.Params.MaxAge:
		return NewError(KindStaleTimestamp, "%s old, max %s", now.Sub(cmd.Timestamp).Truncate(time.Millisecond), acct.Params.MaxAge)
	case cmd.Timestamp.Before(acct.Current.Timestamp):
		return NewError(KindStaleTimestamp, "%s is before current price at %s",
			cmd.Timestamp.Format(time.RFC3339), acct.Current.Timestamp.Format(time.RFC3339))
	}
	if n := distinctSources(cmd.Sources); n < acct.Params.MinimumSources {
		return NewError(KindInsufficientSources, "%d of %d", n, acct.Params.MinimumSources)
	}
	return nil
}

func distinctSources(names []string) int {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n != "" {
			seen[n] = struct{}{}
		}
	}
	return len(seen)
}

// Apply validates cmd and records it as one atomic transition. On any
// failure acct is unchanged.
func Apply(cmd *UpdateCommand, acct *feed.Account, signer common.Address, now time.Time) error {
	if err := Validate(cmd, acct, signer, now); err != nil {
		return err
	}
	return Wrap(acct.ApplyUpdate(cmd.Sample(), now))
}

// ApplyInitialize initializes acct with signer as authority. The command
// must target the address derived from its program and pair.
func ApplyInitialize(cmd *InitializeCommand, acct *feed.Account, signer common.Address, now time.Time) error {
	if cmd == nil || acct == nil || cmd.Account == (common.Address{}) {
		return NewError(KindMissingAccount, "initialize has no target account")
	}
	if want := feed.DeriveAddress(cmd.Program, cmd.Pair.ID); want != cmd.Account {
		return NewError(KindMalformed, "account %s is not derived from %s/%s", cmd.Account.Hex(), cmd.Program.Hex(), cmd.Pair.ID)
	}
	return Wrap(acct.Initialize(cmd.Pair, signer, cmd.Program, cmd.Params, now))
}

// Result is the outcome of one command in a batch.
type Result struct {
	Index   int            `json:"index"`
	Account common.Address `json:"account"`
	Err     error          `json:"-"`
}

// OK reports whether the command succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// ApplyBatch applies every command independently and returns one result per
// command in input order. A failure never prevents the others; commands
// whose account is not in accounts fail with KindMissingAccount.
func ApplyBatch(cmds []*UpdateCommand, accounts map[common.Address]*feed.Account, signer common.Address, now time.Time) []Result {
	results := make([]Result, len(cmds))
	for i, cmd := range cmds {
		results[i] = Result{Index: i}
		if cmd != nil {
			results[i].Account = cmd.Account
			results[i].Err = Apply(cmd, accounts[cmd.Account], signer, now)
			continue
		}
		results[i].Err = NewError(KindMissingAccount, "nil command")
	}
	return results
}

// BuildBatch encodes every command. encoded[i] is nil exactly when errs[i]
// is not.
func BuildBatch(cmds []Command) (encoded [][]byte, errs []error) {
	encoded = make([][]byte, len(cmds))
	errs = make([]error, len(cmds))
	for i, cmd := range cmds {
		encoded[i], errs[i] = Encode(cmd)
	}
	return encoded, errs
}
