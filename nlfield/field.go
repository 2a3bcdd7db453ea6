// Package nlfield decodes and encodes the fixed-width field blocks that
// make up a Netlink message header or data section, driven by a compact
// format-string grammar borrowed from Python's struct module (the
// language the codec this package ports was originally written in).
package nlfield

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"math"
	"unicode/utf8"

	"github.com/m-lab/netlink-codec/nlbuf"
)

// Kind is the decoded shape of one field.
type Kind int

// The field kinds the grammar recognizes.
const (
	KindU8 Kind = iota
	KindU16
	KindU32
	KindU64
	KindBytes      // 's' -- consume remaining payload verbatim
	KindCString    // 'z' -- consume remaining payload, drop one trailing NUL
	KindFixedBytes // 'Ns' -- consume exactly N bytes verbatim
)

// ErrPackedVariableWidth is returned when a pack=struct block tries to
// use an 's' or 'z' token; variable-width fields can't be bound
// positionally alongside fixed-width ones.
var ErrPackedVariableWidth = errors.New("nlfield: s/z token not allowed in a packed struct block")

// ErrUnknownFormat is returned for a format token this grammar doesn't
// recognize.
var ErrUnknownFormat = errors.New("nlfield: unrecognized format token")

// Descriptor is one (name, format) field in a block. format is a single
// grammar token: an optional leading byte-order modifier (! > big-endian;
// < @ = little/native endian; absent means native) followed by one of
// B H I Q s z, or a count-prefixed "Ns" fixed-width byte string.
type Descriptor struct {
	Name   string
	Format string
}

// Block is an ordered field list. Descriptors are bound to values in
// declaration order.
type Block []Descriptor

// Values is a decoded or to-be-encoded field-name -> value map. Integer
// kinds decode to the matching unsigned Go integer type; KindBytes
// decodes to []byte; KindCString decodes to string when the bytes are
// valid UTF-8, else []byte.
type Values map[string]interface{}

// token is the parsed form of one format letter.
type token struct {
	kind      Kind
	bigEndian bool
	count     int // only meaningful for KindFixedBytes
}

func parseToken(format string) (token, error) {
	if format == "" {
		return token{}, ErrUnknownFormat
	}
	big := false
	rest := format
	switch format[0] {
	case '!', '>':
		big = true
		rest = format[1:]
	case '<', '@', '=':
		big = false
		rest = format[1:]
	}
	digits := 0
	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		digits = digits*10 + int(rest[i]-'0')
		i++
	}
	letter := rest[i:]
	if i > 0 {
		// A digit prefix is only meaningful ahead of 's': a fixed-count
		// byte string, matching Python struct's "Ns" convention.
		if letter != "s" {
			return token{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
		}
		return token{kind: KindFixedBytes, count: digits}, nil
	}
	if len(letter) != 1 {
		return token{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	switch letter[0] {
	case 'B':
		return token{kind: KindU8, bigEndian: big}, nil
	case 'H':
		return token{kind: KindU16, bigEndian: big}, nil
	case 'I':
		return token{kind: KindU32, bigEndian: big}, nil
	case 'Q':
		return token{kind: KindU64, bigEndian: big}, nil
	case 's':
		return token{kind: KindBytes}, nil
	case 'z':
		return token{kind: KindCString}, nil
	default:
		return token{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func fixedSize(k Kind) int {
	switch k {
	case KindU8:
		return 1
	case KindU16:
		return 2
	case KindU32:
		return 4
	case KindU64:
		return 8
	default:
		return 0
	}
}

// SizeOf returns the byte count of the fixed-width portion of block. 's'
// and 'z' tokens contribute zero; their size is resolved at decode/encode
// time from the enclosing node's remaining length.
func SizeOf(block Block) int {
	size := 0
	for _, d := range block {
		tok, err := parseToken(d.Format)
		if err != nil {
			continue
		}
		if tok.kind == KindFixedBytes {
			size += tok.count
			continue
		}
		size += fixedSize(tok.kind)
	}
	return size
}

// Reserve advances c past the fixed-width portion of block, for the
// "reserve header space now, back-patch later" encode pattern.
func Reserve(c *nlbuf.Cursor, block Block) error {
	return c.Seek(SizeOf(block), nlbuf.SeekRelative)
}

func byteOrder(big bool) binary.ByteOrder {
	if big {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Decode reads block from c into a Values map. remaining is the number
// of bytes left in the enclosing node's payload (header.length minus
// header.size); it is the length basis for 's'/'z' tokens. A short read
// for one descriptor does not abort the block: per the codec's
// "silently preserve partial state" contract, that descriptor is simply
// left unset and decoding continues with the next one.
func Decode(c *nlbuf.Cursor, block Block, remaining int) (Values, error) {
	values := make(Values, len(block))
	for _, d := range block {
		tok, err := parseToken(d.Format)
		if err != nil {
			return values, err
		}
		switch tok.kind {
		case KindBytes, KindCString:
			raw, err := c.Read(remaining)
			if err != nil && len(raw) == 0 {
				continue
			}
			if tok.kind == KindCString {
				if len(raw) > 0 && raw[len(raw)-1] == 0 {
					raw = raw[:len(raw)-1]
				}
				values[d.Name] = decodeCString(raw)
			} else {
				values[d.Name] = append([]byte(nil), raw...)
			}
		case KindFixedBytes:
			raw, err := c.Read(tok.count)
			if err != nil || len(raw) != tok.count {
				continue
			}
			values[d.Name] = append([]byte(nil), raw...)
		default:
			size := fixedSize(tok.kind)
			raw, err := c.Read(size)
			if err != nil || len(raw) != size {
				// Short read: silently preserve the partial state (this
				// descriptor is left unset) and keep decoding the rest of
				// the block. Only an unrecognized format token aborts
				// the block outright.
				continue
			}
			values[d.Name] = unpackUint(byteOrder(tok.bigEndian), tok.kind, raw)
		}
	}
	return values, nil
}

// DecodeStruct implements pack=struct mode: every descriptor's format is
// concatenated into one tuple and the whole block is read as a single
// fixed-size record, then the elements are bound back to field names
// positionally. 's'/'z' tokens are rejected here because their width
// isn't known until they're the sole remaining consumer of the node's
// payload, which conflicts with binding several fields positionally in
// one read.
func DecodeStruct(c *nlbuf.Cursor, block Block) (Values, error) {
	values := make(Values, len(block))
	for _, d := range block {
		tok, err := parseToken(d.Format)
		if err != nil {
			return values, err
		}
		if tok.kind == KindBytes || tok.kind == KindCString {
			return values, ErrPackedVariableWidth
		}
		if tok.kind == KindFixedBytes {
			raw, err := c.Read(tok.count)
			if err != nil || len(raw) != tok.count {
				return values, err
			}
			values[d.Name] = append([]byte(nil), raw...)
			continue
		}
		size := fixedSize(tok.kind)
		raw, err := c.Read(size)
		if err != nil || len(raw) != size {
			return values, err
		}
		values[d.Name] = unpackUint(byteOrder(tok.bigEndian), tok.kind, raw)
	}
	return values, nil
}

func unpackUint(order binary.ByteOrder, kind Kind, raw []byte) interface{} {
	switch kind {
	case KindU8:
		return raw[0]
	case KindU16:
		return order.Uint16(raw)
	case KindU32:
		return order.Uint32(raw)
	case KindU64:
		return order.Uint64(raw)
	}
	return nil
}

func decodeCString(raw []byte) interface{} {
	if utf8.Valid(raw) {
		return string(raw)
	}
	return append([]byte(nil), raw...)
}

// Encode writes block's values from v onto c. Per the engine's runtime
// coercions: a string value for an integer-typed field is rejected
// (programmer error), a string for a Bytes/CString field is coerced to
// UTF-8 bytes, and a float value for an integer field is truncated to
// int, matching the original struct-pack coercions.
func Encode(c *nlbuf.Cursor, block Block, v Values) error {
	for _, d := range block {
		tok, err := parseToken(d.Format)
		if err != nil {
			log.Printf("nlfield: encode %q: %v", d.Name, err)
			return err
		}
		val := v[d.Name]
		switch tok.kind {
		case KindBytes:
			b := toBytes(val)
			if _, err := c.Write(b); err != nil {
				return err
			}
		case KindCString:
			b := toBytes(val)
			b = append(append([]byte(nil), b...), 0)
			if _, err := c.Write(b); err != nil {
				return err
			}
		case KindFixedBytes:
			b := toBytes(val)
			padded := make([]byte, tok.count)
			copy(padded, b)
			if _, err := c.Write(padded); err != nil {
				return err
			}
		default:
			if s, isStr := val.(string); isStr {
				err := fmt.Errorf("nlfield: encode %q: string %q for an integer field", d.Name, s)
				log.Print(err)
				return err
			}
			n := toUint64(val)
			raw := make([]byte, fixedSize(tok.kind))
			order := byteOrder(tok.bigEndian)
			switch tok.kind {
			case KindU8:
				raw[0] = byte(n)
			case KindU16:
				order.PutUint16(raw, uint16(n))
			case KindU32:
				order.PutUint32(raw, uint32(n))
			case KindU64:
				order.PutUint64(raw, n)
			}
			if _, err := c.Write(raw); err != nil {
				return err
			}
		}
	}
	return nil
}

func toBytes(val interface{}) []byte {
	switch x := val.(type) {
	case []byte:
		return x
	case string:
		return []byte(x)
	case nil:
		return nil
	default:
		return []byte(fmt.Sprint(x))
	}
}

func toUint64(val interface{}) uint64 {
	switch x := val.(type) {
	case uint64:
		return x
	case uint32:
		return uint64(x)
	case uint16:
		return uint64(x)
	case uint8:
		return uint64(x)
	case int:
		return uint64(x)
	case float64:
		return uint64(math.Trunc(x))
	case float32:
		return uint64(math.Trunc(float64(x)))
	case nil:
		return 0
	default:
		return 0
	}
}
