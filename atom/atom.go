// Package atom provides the small set of leaf node schemas every family
// attribute map is built from: the scalar types (none, integers, raw and
// presentation byte strings) that terminate the attribute tree (§4.1's
// "atom" kind, mirroring the original's nlmsg_atoms collection).
package atom

import (
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/m-lab/netlink-codec/nla"
	"github.com/m-lab/netlink-codec/nlfield"
	"github.com/m-lab/netlink-codec/nlmsg"
	"golang.org/x/sys/unix"
)

var headerBlock = nlfield.Block{
	{Name: "length", Format: "H"},
	{Name: "type", Format: "H"},
}

func newChild(block nlfield.Block, parent nla.Node, opts ...func(*nlmsg.Schema)) *nlmsg.Node {
	schema := &nlmsg.Schema{HeaderBlock: headerBlock, FieldBlock: block}
	for _, opt := range opts {
		opt(schema)
	}
	var p *nlmsg.Node
	if parent != nil {
		p, _ = parent.(*nlmsg.Node)
	}
	return nlmsg.NewChild(schema, p)
}

// None decodes to a null value, ignoring its payload entirely. Used for
// attributes whose presence alone is the signal (flags) or that a
// family wants to skip decoding without dropping from the chain.
func None(parent nla.Node) nla.Node {
	n := newChild(nil, parent, func(s *nlmsg.Schema) {
		s.PostDecode = func(n *nlmsg.Node) error {
			n.SetValue(nil)
			return nil
		}
	})
	n.SetValue(nil)
	return n
}

// Uint8 decodes a single unsigned byte.
func Uint8(parent nla.Node) nla.Node {
	return newChild(nlfield.Block{{Name: "value", Format: "B"}}, parent)
}

// Uint16 decodes a native-endian uint16.
func Uint16(parent nla.Node) nla.Node {
	return newChild(nlfield.Block{{Name: "value", Format: "H"}}, parent)
}

// Uint32 decodes a native-endian uint32.
func Uint32(parent nla.Node) nla.Node {
	return newChild(nlfield.Block{{Name: "value", Format: "I"}}, parent)
}

// Uint64 decodes a native-endian uint64.
func Uint64(parent nla.Node) nla.Node {
	return newChild(nlfield.Block{{Name: "value", Format: "Q"}}, parent)
}

// BigEndianUint16 decodes a network-byte-order uint16 (e.g. a TCP port
// carried in a diag attribute).
func BigEndianUint16(parent nla.Node) nla.Node {
	return newChild(nlfield.Block{{Name: "value", Format: "!H"}}, parent)
}

// CData decodes to the raw, unconverted attribute payload as []byte.
func CData(parent nla.Node) nla.Node {
	return newChild(nlfield.Block{{Name: "value", Format: "s"}}, parent)
}

// Asciiz decodes a NUL-terminated string. The generic z-token handling
// in nlfield already does the trailing-NUL bookkeeping, so this atom
// needs no decode/encode hooks of its own.
func Asciiz(parent nla.Node) nla.Node {
	return newChild(nlfield.Block{{Name: "value", Format: "z"}}, parent)
}

// Hex decodes the raw attribute payload to a colon-separated hex dump
// string, for attributes a caller wants to see but the codec has no
// richer type for.
func Hex(parent nla.Node) nla.Node {
	return newChild(nlfield.Block{{Name: "value", Format: "s"}}, parent,
		func(s *nlmsg.Schema) {
			s.PostDecode = func(n *nlmsg.Node) error {
				raw, _ := n.Fields["value"].([]byte)
				n.SetValue(hexdump(raw))
				return nil
			}
			s.PreEncode = func(n *nlmsg.Node) error {
				s, _ := n.Value.(string)
				raw, err := hexParse(s)
				if err != nil {
					return fmt.Errorf("atom: hex: %w", err)
				}
				if n.Fields == nil {
					n.Fields = nlfield.Values{}
				}
				n.Fields["value"] = raw
				return nil
			}
		})
}

func hexdump(b []byte) string {
	parts := make([]string, len(b))
	for i, x := range b {
		parts[i] = hex.EncodeToString([]byte{x})
	}
	return strings.Join(parts, ":")
}

func hexParse(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ":")
	out := make([]byte, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return nil, err
		}
		out[i] = byte(v)
	}
	return out, nil
}

// L2Addr decodes a fixed 6-byte hardware address into its colon-hex
// presentation form.
func L2Addr(parent nla.Node) nla.Node {
	return newChild(nlfield.Block{{Name: "value", Format: "s"}}, parent,
		func(s *nlmsg.Schema) {
			s.PostDecode = func(n *nlmsg.Node) error {
				raw, _ := n.Fields["value"].([]byte)
				n.SetValue(net.HardwareAddr(raw).String())
				return nil
			}
			s.PreEncode = func(n *nlmsg.Node) error {
				str, _ := n.Value.(string)
				hw, err := net.ParseMAC(str)
				if err != nil {
					return fmt.Errorf("atom: l2addr: %w", err)
				}
				if n.Fields == nil {
					n.Fields = nlfield.Values{}
				}
				n.Fields["value"] = []byte(hw)
				return nil
			}
		})
}

// IPAddr decodes a variable-length address (4 bytes for AF_INET, 16 for
// AF_INET6) into its presentation string, reading the address family
// from a sibling "family" field on the parent node (§4.5's "thunk"
// pattern: the concrete decode depends on already-decoded state).
func IPAddr(parent nla.Node) nla.Node {
	return newChild(nlfield.Block{{Name: "value", Format: "s"}}, parent,
		func(s *nlmsg.Schema) {
			s.PostDecode = func(n *nlmsg.Node) error {
				raw, _ := n.Fields["value"].([]byte)
				family, ok := parentFamily(n)
				if !ok {
					return &nlmsg.DataDecodeError{Cause: fmt.Errorf("atom: ipaddr: no family field on parent")}
				}
				var ip net.IP
				if family == unix.AF_INET {
					ip = net.IP(raw).To4()
				} else {
					ip = net.IP(raw).To16()
				}
				if ip == nil {
					return &nlmsg.DataDecodeError{Cause: fmt.Errorf("atom: ipaddr: address %v does not match family %d", raw, family)}
				}
				n.SetValue(ip.String())
				return nil
			}
			s.PreEncode = func(n *nlmsg.Node) error {
				str, _ := n.Value.(string)
				family, ok := parentFamily(n)
				if !ok {
					return fmt.Errorf("atom: ipaddr: no family field on parent")
				}
				ip := net.ParseIP(str)
				if ip == nil {
					return fmt.Errorf("atom: ipaddr: invalid address %q", str)
				}
				var raw []byte
				if family == unix.AF_INET {
					raw = ip.To4()
				} else {
					raw = ip.To16()
				}
				if raw == nil {
					return fmt.Errorf("atom: ipaddr: address %q does not match family %d", str, family)
				}
				if n.Fields == nil {
					n.Fields = nlfield.Values{}
				}
				n.Fields["value"] = raw
				return nil
			}
		})
}

func parentFamily(n *nlmsg.Node) (int, bool) {
	// Walk up the Parent chain and use the nearest ancestor that carries
	// a "family" field; for an attribute decoded by nla.DecodeLoop the
	// immediate parent is the message itself.
	for p := n.Parent; p != nil; p = p.Parent {
		if v, ok := p.FieldValue("family"); ok {
			switch x := v.(type) {
			case uint8:
				return int(x), true
			case uint16:
				return int(x), true
			case int:
				return x, true
			}
		}
	}
	return 0, false
}
