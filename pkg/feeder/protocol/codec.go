package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Magicwander/OKX-submission-complete/pkg/feed"
)

// headerSize covers opcode, wire version and account.
const headerSize = 1 + 1 + common.AddressLength

// Encode serializes cmd. Layout (big-endian):
//
//	header:      opcode u8 | version u8 | account [20]
//	UpdatePrice: price coefficient [16] | exponent i32 | confidence f64 |
//	             sequence i64 | timestamp i64 | count u8 | (len u8 | name)*
//	Initialize:  program [20] | pairID, base, quote (len u8 | bytes) |
//	             baseDecimals u8 | quoteDecimals u8 | capacity u32 |
//	             maxAge i64 | minConfidence f64 | minimumSources u16 |
//	             errorThreshold u16 | timeWindow i64 | recoveryTime i64
func Encode(cmd Command) ([]byte, error) {
	switch c := cmd.(type) {
	case *UpdateCommand:
		if c != nil {
			return encodeUpdate(c)
		}
	case *InitializeCommand:
		if c != nil {
			return encodeInitialize(c)
		}
	}
	return nil, NewError(KindMalformed, "cannot encode %T", cmd)
}

func encodeUpdate(c *UpdateCommand) ([]byte, error) {
	if len(c.Sources) > feed.MaxSources {
		return nil, NewError(KindMalformed, "%d sources, at most %d", len(c.Sources), feed.MaxSources)
	}
	b := header(OpUpdatePrice, c.Account)

	price := make([]byte, feed.DecimalSize)
	if err := feed.PutDecimal(price, c.Price); err != nil {
		return nil, Wrap(err)
	}
	b = append(b, price...)
	b = binary.BigEndian.AppendUint64(b, math.Float64bits(c.Confidence))
	b = binary.BigEndian.AppendUint64(b, uint64(c.Sequence))
	b = appendTime(b, c.Timestamp)
	b = append(b, uint8(len(c.Sources)))
	for _, s := range c.Sources {
		var err error
		if b, err = appendString(b, s, feed.MaxSourceNameLen); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func encodeInitialize(c *InitializeCommand) ([]byte, error) {
	p := c.Params
	if p.HistoryCapacity < 0 || p.MinimumSources < 0 || p.MinimumSources > math.MaxUint16 ||
		p.ErrorThreshold < 0 || p.ErrorThreshold > math.MaxUint16 {
		return nil, NewError(KindMalformed, "params out of encodable range")
	}

	b := header(OpInitialize, c.Account)
	b = append(b, c.Program.Bytes()...)
	var err error
	if b, err = appendString(b, c.Pair.ID, feed.MaxPairIDLen); err != nil {
		return nil, err
	}
	if b, err = appendString(b, c.Pair.Base, feed.MaxSymbolLen); err != nil {
		return nil, err
	}
	if b, err = appendString(b, c.Pair.Quote, feed.MaxSymbolLen); err != nil {
		return nil, err
	}
	b = append(b, c.Pair.BaseDecimals, c.Pair.QuoteDecimals)
	b = binary.BigEndian.AppendUint32(b, uint32(p.HistoryCapacity))
	b = binary.BigEndian.AppendUint64(b, uint64(p.MaxAge))
	b = binary.BigEndian.AppendUint64(b, math.Float64bits(p.MinConfidence))
	b = binary.BigEndian.AppendUint16(b, uint16(p.MinimumSources))
	b = binary.BigEndian.AppendUint16(b, uint16(p.ErrorThreshold))
	b = binary.BigEndian.AppendUint64(b, uint64(p.TimeWindow))
	b = binary.BigEndian.AppendUint64(b, uint64(p.RecoveryTime))
	return b, nil
}

func header(op Opcode, account common.Address) []byte {
	b := make([]byte, 0, 128)
	b = append(b, uint8(op), WireVersion)
	return append(b, account.Bytes()...)
}

func appendTime(b []byte, t time.Time) []byte {
	buf := make([]byte, 8)
	feed.PutTime(buf, t)
	return append(b, buf...)
}

func appendString(b []byte, s string, max int) ([]byte, error) {
	if len(s) > max {
		return nil, NewError(KindMalformed, "%q longer than %d bytes", s, max)
	}
	b = append(b, uint8(len(s)))
	return append(b, s...), nil
}

// Decode parses an encoded command. Opcode and version are checked before
// anything else; trailing bytes are rejected.
func Decode(b []byte) (Command, error) {
	if len(b) < headerSize {
		return nil, NewError(KindMalformed, "%d bytes, header needs %d", len(b), headerSize)
	}
	op := Opcode(b[0])
	if op != OpInitialize && op != OpUpdatePrice {
		return nil, &Error{Kind: KindMalformed, Msg: fmt.Sprintf("opcode %#02x", b[0]), cause: ErrUnknownOpcode}
	}
	if b[1] != WireVersion {
		return nil, &Error{Kind: KindMalformed, Msg: fmt.Sprintf("version %d", b[1]), cause: ErrUnsupportedWireVersion}
	}

	d := &decoder{buf: b, off: 2}
	account := common.BytesToAddress(d.next(common.AddressLength))

	var cmd Command
	switch op {
	case OpUpdatePrice:
		cmd = d.update(account)
	case OpInitialize:
		cmd = d.initialize(account)
	}
	if d.err != nil {
		return nil, d.err
	}
	if d.off != len(b) {
		return nil, NewError(KindMalformed, "%d trailing bytes", len(b)-d.off)
	}
	return cmd, nil
}

// decoder reads fields in order; the first short read sticks.
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) next(n int) []byte {
	if d.err != nil || d.off+n > len(d.buf) {
		if d.err == nil {
			d.err = NewError(KindMalformed, "truncated at byte %d", d.off)
		}
		return make([]byte, n)
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) u8() uint8 { return d.next(1)[0] }
func (d *decoder) u16() uint16 { return binary.BigEndian.Uint16(d.next(2)) }
func (d *decoder) u32() uint32 { return binary.BigEndian.Uint32(d.next(4)) }
func (d *decoder) i64() int64 { return int64(binary.BigEndian.Uint64(d.next(8))) }
func (d *decoder) f64() float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(d.next(8)))
}

func (d *decoder) str(max int) string {
	n := int(d.u8())
	if n > max && d.err == nil {
		d.err = NewError(KindMalformed, "string of %d bytes, at most %d", n, max)
	}
	return string(d.next(n))
}

func (d *decoder) update(account common.Address) *UpdateCommand {
	c := &UpdateCommand{Account: account}
	c.Price = feed.ReadDecimal(d.next(feed.DecimalSize))
	c.Confidence = d.f64()
	c.Sequence = d.i64()
	c.Timestamp = feed.ReadTime(d.next(8))
	n := int(d.u8())
	if n > feed.MaxSources && d.err == nil {
		d.err = NewError(KindMalformed, "%d sources, at most %d", n, feed.MaxSources)
		return c
	}
	for i := 0; i < n; i++ {
		c.Sources = append(c.Sources, d.str(feed.MaxSourceNameLen))
	}
	return c
}

func (d *decoder) initialize(account common.Address) *InitializeCommand {
	c := &InitializeCommand{Account: account}
	c.Program = common.BytesToAddress(d.next(common.AddressLength))
	c.Pair.ID = d.str(feed.MaxPairIDLen)
	c.Pair.Base = d.str(feed.MaxSymbolLen)
	c.Pair.Quote = d.str(feed.MaxSymbolLen)
	c.Pair.BaseDecimals = d.u8()
	c.Pair.QuoteDecimals = d.u8()
	c.Params.HistoryCapacity = int(d.u32())
	c.Params.MaxAge = time.Duration(d.i64())
	c.Params.MinConfidence = d.f64()
	c.Params.MinimumSources = int(d.u16())
	c.Params.ErrorThreshold = int(d.u16())
	c.Params.TimeWindow = time.Duration(d.i64())
	c.Params.RecoveryTime = time.Duration(d.i64())
	return c
}
