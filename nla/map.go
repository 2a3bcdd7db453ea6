// Package nla implements the per-family attribute map and the generic
// attribute-chain decode/encode loop: the polymorphic dispatch from a
// numeric attribute type to a typed child node (§4.4 step 4, §4.5).
package nla

import (
	"encoding/hex"
	"fmt"
	"log"
	"strings"

	"github.com/m-lab/netlink-codec/metrics"
	"github.com/m-lab/netlink-codec/nlbuf"
)

// Node is the minimal surface a message-tree node (nlmsg.Node, or any
// atom built on top of it) must expose to participate in attribute
// dispatch. nlmsg.Node implements this; this package never imports
// nlmsg, which is what lets nlmsg.Schema hold a *nla.Map field without a
// import cycle.
type Node interface {
	Decode(c *nlbuf.Cursor) error
	Encode(c *nlbuf.Cursor) error
	GetValue() interface{}
	SetValue(v interface{})
	SetHeaderType(t uint16)
	// FieldValue looks up a decoded field or header value by name on
	// this node. Leaf atoms (ipaddr) use it to read a sibling field
	// (e.g. "family"); ok is false if the name is unset.
	FieldValue(name string) (interface{}, bool)
	// ParentNode returns the enclosing node, or nil at the root.
	ParentNode() Node
}

// DecoderFunc constructs a fresh, not-yet-decoded child node for one NLA
// map entry. It receives the parent so it can act as the "thunk" variant
// of §4.5: a family whose attribute shape depends on an already-decoded
// sibling field can inspect parent before deciding which concrete node
// to hand back.
type DecoderFunc func(parent Node) Node

// Entry is one row of a family's NLA map: the position in the row list
// is the entry's numeric attribute type.
type Entry struct {
	Name    string
	Decoder DecoderFunc
}

// Attr is one decoded or to-be-encoded attribute-chain entry, preserving
// wire order; duplicates (two attrs with the same Name) are allowed.
type Attr struct {
	Name  string
	Value interface{}
	// Encoded is populated only when the owning schema decodes in debug
	// mode (§4.5 step 5's "(type, length, offset)" annotation); it holds
	// the still-alive child node so a caller can inspect its Header.
	Encoded Node
}

// Map is a per-family, ordered attribute vocabulary. The by-type and
// by-name tables are derived once at construction and are read-only
// thereafter (§5: concurrent readers need no synchronization).
type Map struct {
	entries []Entry
	byType  map[uint16]Entry
	byName  map[string]Entry
}

// NewMap builds a Map from entries in declaration order; position i
// becomes numeric attribute type i, mirroring the original's implied
// enumeration from nla_map. It panics on a duplicate name, since the
// by-type/by-name tables must be bijective (§3) and a duplicate can only
// be a schema-authoring mistake, not a runtime condition to recover
// from.
func NewMap(entries ...Entry) *Map {
	m := &Map{
		entries: entries,
		byType:  make(map[uint16]Entry, len(entries)),
		byName:  make(map[string]Entry, len(entries)),
	}
	for i, e := range entries {
		t := uint16(i)
		if _, dup := m.byName[e.Name]; dup {
			panic(fmt.Sprintf("nla: duplicate attribute name %q in map", e.Name))
		}
		m.byType[t] = e
		m.byName[e.Name] = e
	}
	return m
}

// ByType looks up an entry by its numeric wire type.
func (m *Map) ByType(t uint16) (Entry, bool) {
	e, ok := m.byType[t]
	return e, ok
}

// ByName looks up an entry by its canonical name.
func (m *Map) ByName(name string) (Entry, bool) {
	e, ok := m.byName[name]
	return e, ok
}

// TypeOf returns the numeric wire type registered for name.
func (m *Map) TypeOf(name string) (uint16, bool) {
	for i, e := range m.entries {
		if e.Name == name {
			return uint16(i), true
		}
	}
	return 0, false
}

// CanonicalName builds a family's canonical upper-snake attribute name
// (e.g. "CTRL_ATTR_FAMILY_ID") from its short lower-case form
// ("family_id") and the family's prefix ("CTRL_ATTR_"), per §6's
// attribute-name convention.
func CanonicalName(short, prefix string) string {
	return prefix + strings.ToUpper(short)
}

// ShortName strips prefix from canonical and lower-cases the result,
// the inverse of CanonicalName. A canonical name that doesn't carry
// prefix is returned lower-cased and unmodified otherwise -- callers
// that mix attributes from several families should pass the right
// prefix for the name at hand.
func ShortName(canonical, prefix string) string {
	return strings.ToLower(strings.TrimPrefix(canonical, prefix))
}

func align4(x int) int {
	return (x + 3) &^ 3
}

// DecodeLoop implements §4.5: it consumes attribute records from c until
// the owning node's end (offset+length, passed as nodeEnd), dispatching
// each to the Map-registered decoder and recovering locally from a
// per-attribute fault by recording a hex blob instead of aborting the
// whole chain. family labels the metrics this loop reports (empty is
// fine; it just produces an empty-string label).
func DecodeLoop(c *nlbuf.Cursor, nodeEnd int, m *Map, parent Node, debug bool, family string) ([]Attr, error) {
	var attrs []Attr
	for c.Tell() < nodeEnd {
		init := c.Tell()
		hdr, err := c.Read(4)
		if err != nil && len(hdr) < 4 {
			return attrs, fmt.Errorf("nla: truncated attribute header at offset %d: %w", init, err)
		}
		length := int(hdr[0]) | int(hdr[1])<<8
		wireType := uint16(hdr[2]) | uint16(hdr[3])<<8
		if err := c.Seek(init, nlbuf.SeekAbsolute); err != nil {
			return attrs, err
		}

		remaining := nodeEnd - init
		if length < 4 {
			length = 4
		}
		if length > remaining {
			length = remaining
		}

		entry, known := m.ByType(wireType)
		if !known {
			// Unknown attribute type: skip cleanly, bytes still consumed
			// via the clamped length (§4.5 step 3, §7).
			log.Printf("nla: skipping unmapped attribute type %d at offset %d", wireType, init)
			metrics.UnknownAttributeTotal.WithLabelValues(family).Inc()
			c.Seek(init+align4(length), nlbuf.SeekAbsolute)
			continue
		}

		child := entry.Decoder(parent)
		sub := nlbuf.NewCursor(c.Bytes()[:init+length])
		sub.Seek(init, nlbuf.SeekAbsolute)
		decodeErr := child.Decode(sub)
		if decodeErr != nil {
			raw, _ := c.Read(length)
			attrs = append(attrs, Attr{Name: entry.Name, Value: hex.EncodeToString(raw)})
			metrics.RecoveredAttributeTotal.WithLabelValues(family).Inc()
		} else {
			a := Attr{Name: entry.Name, Value: child.GetValue()}
			if debug {
				a.Encoded = child
			}
			attrs = append(attrs, a)
			metrics.AttributesDecodedTotal.Inc()
		}
		c.Seek(init+align4(length), nlbuf.SeekAbsolute)
	}
	return attrs, nil
}

// EncodeAttrs implements the encode half of §4.4 step 4: each attr is
// looked up by name, spawned as a child node over the same cursor with
// its header's type field set to the resolved numeric code, and
// recursively encoded.
func EncodeAttrs(c *nlbuf.Cursor, attrs []Attr, m *Map, parent Node) error {
	for _, a := range attrs {
		typ, ok := m.TypeOf(a.Name)
		if !ok {
			return fmt.Errorf("nla: %q is not a registered attribute for this family", a.Name)
		}
		entry, _ := m.ByName(a.Name)
		child := entry.Decoder(parent)
		child.SetHeaderType(typ)
		child.SetValue(a.Value)
		if err := child.Encode(c); err != nil {
			return err
		}
	}
	return nil
}
