package protocol

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/Magicwander/OKX-submission-complete/pkg/feed"
)

// WireVersion is the only command encoding this package reads and writes.
const WireVersion uint8 = 1

// Opcode discriminates command types on the wire.
type Opcode uint8

const (
	// OpInitialize binds a feed account to a pair and its authority.
	OpInitialize Opcode = 0x01
	// OpUpdatePrice records a new price sample.
	OpUpdatePrice Opcode = 0x02
)

func (o Opcode) String() string {
	switch o {
	case OpInitialize:
		return "initialize"
	case OpUpdatePrice:
		return "update_price"
	default:
		return "unknown"
	}
}

// Command is a decoded protocol command.
type Command interface {
	Opcode() Opcode
	Target() common.Address
}

// UpdateCommand requests that a sample be recorded on Account.
type UpdateCommand struct {
	Account    common.Address  `json:"account"`
	Price      decimal.Decimal `json:"price"`
	Confidence float64         `json:"confidence"`
	Sequence   int64           `json:"sequence"`
	Timestamp  time.Time       `json:"timestamp"`
	Sources    []string        `json:"sources"`
}

// Opcode implements Command.
func (c *UpdateCommand) Opcode() Opcode { return OpUpdatePrice }

// Target implements Command.
func (c *UpdateCommand) Target() common.Address { return c.Account }

// Sample converts the command into the sample the account records.
func (c *UpdateCommand) Sample() feed.PriceSample {
	return feed.PriceSample{
		Price:       c.Price,
		Confidence:  c.Confidence,
		Sources:     append([]string(nil), c.Sources...),
		SampleCount: uint16(len(c.Sources)),
		Timestamp:   c.Timestamp,
		Sequence:    c.Sequence,
	}
}

// InitializeCommand creates the feed account for Pair under Program. The
// signer of the command becomes the authority.
type InitializeCommand struct {
	Account common.Address   `json:"account"`
	Program common.Address   `json:"program"`
	Pair    feed.TradingPair `json:"pair"`
	Params  feed.Params      `json:"params"`
}

// Opcode implements Command.
func (c *InitializeCommand) Opcode() Opcode { return OpInitialize }

// Target implements Command.
func (c *InitializeCommand) Target() common.Address { return c.Account }

// NewInitializeCommand targets the address derived from program and pair.
func NewInitializeCommand(program common.Address, pair feed.TradingPair, params feed.Params) *InitializeCommand {
	return &InitializeCommand{
		Account: feed.DeriveAddress(program, pair.ID),
		Program: program,
		Pair:    pair,
		Params:  params,
	}
}

// Digest is the 32-byte hash a signer signs for an encoded command.
func Digest(encoded []byte) []byte {
	return crypto.Keccak256([]byte("feed-command"), encoded)
}
