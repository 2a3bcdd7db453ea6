// Package nlmsg implements the message tree node: the type that every
// Netlink message, nested attribute, and sub-structure decodes into
// (§3, §4.3, §4.4). A node's shape -- which header it carries, which
// fixed fields follow, and which attribute map (if any) governs its
// trailing TLV chain -- is declared once as a Schema and reused for
// every message of that kind.
package nlmsg

import (
	"github.com/m-lab/netlink-codec/nla"
	"github.com/m-lab/netlink-codec/nlbuf"
	"github.com/m-lab/netlink-codec/nlfield"
)

// PackMode selects how a Schema's FieldBlock is bound during decode.
type PackMode int

const (
	// PackSequential decodes each descriptor independently and tolerates
	// a short read on any one of them (§4.2's partial-state contract).
	PackSequential PackMode = iota
	// PackStruct decodes the whole FieldBlock as one fixed-size record
	// and binds elements back to names positionally; it rejects 's'/'z'
	// tokens (nlfield.DecodeStruct).
	PackStruct
)

// Schema is the fixed, reusable description of one node shape: a
// generic message, a family-specific message, or a leaf attribute atom.
// A Schema has no mutable state and is safe to share across concurrently
// decoded nodes.
type Schema struct {
	// Name identifies the schema for metrics labels and diagnostic
	// output (e.g. "ctrl", "mgmt", "rtlink.link"). Purely descriptive;
	// the codec never branches on it.
	Name string
	// HeaderBlock describes the node's fixed header, if it has one (a
	// top-level message's nlmsghdr, or an attribute's nla_header). Nil
	// for a header-less node (e.g. rtlink's ifinfomsg/ifaddrmsg
	// messages).
	HeaderBlock nlfield.Block
	// FieldBlock describes the fixed/variable fields that follow the
	// header (or open the node, if HeaderBlock is nil).
	FieldBlock nlfield.Block
	Pack       PackMode
	// NLAMap governs the trailing attribute-chain, if this node carries
	// one. Nil for a node whose payload is pure fields (an atom).
	NLAMap *nla.Map
	// Debug, when set, makes DecodeLoop retain each attribute's encoded
	// child node for inspection (§4.5 step 5).
	Debug bool
	// PostDecode runs after the generic header/field/attr decode and
	// lets an atom (ipaddr, l2addr, hex) transform the raw field bytes
	// into its presentation value.
	PostDecode func(n *Node) error
	// PreEncode runs before the generic field encode and lets an atom
	// transform its presentation value back into raw field bytes.
	PreEncode func(n *Node) error
}

// Node is one instance of a message, sub-structure, or attribute in the
// tree. Its exported fields mirror the original's dict-like message
// object: Header and Fields are the decoded scalar portions, Attrs is
// the decoded attribute chain, and Value/valueSet capture an explicit
// scalar override (set via SetValue) the way an atom collapses to a
// single typed value instead of a field map.
type Node struct {
	Schema *Schema

	Header nlfield.Values
	Fields nlfield.Values
	Attrs  []nla.Attr

	Value    interface{}
	valueSet bool

	// Raw holds the verbatim header+payload bytes captured right after
	// the header decoded, before any attribute recursion -- used by
	// callers that want to re-emit an unparsed record (§4.3 step 2).
	Raw []byte

	Offset int // byte offset of this node's header in the enclosing cursor
	Length int // header.length, or the remaining buffer length if header-less

	Parent *Node
	depth  int
}

// NewRoot builds a top-level node (a whole message) with no parent.
func NewRoot(schema *Schema) *Node {
	return &Node{Schema: schema}
}

// NewChild builds a node nested under parent, inheriting its depth
// count for the nesting-limit guard (ErrTooDeep).
func NewChild(schema *Schema, parent *Node) *Node {
	n := &Node{Schema: schema, Parent: parent}
	if parent != nil {
		n.depth = parent.depth + 1
	}
	return n
}

// GetValue implements the engine-wide value resolution rule (§3): an
// explicit scalar set via SetValue wins; failing that, a field literally
// named "value" is returned bare (the common case for every numeric and
// string atom); failing that, the node itself stands in as its own
// value (a composite node has no single scalar to collapse to).
func (n *Node) GetValue() interface{} {
	if n.valueSet {
		return n.Value
	}
	if v, ok := n.Fields["value"]; ok {
		return v
	}
	return n
}

// SetValue implements the engine-wide value assignment rule (§3): a map
// value is merged into Fields (used by composite sub-structures like
// mgmt's KEY attribute, whose "value" at encode time is a set of named fields,
// not a scalar); anything else becomes the explicit scalar override.
func (n *Node) SetValue(v interface{}) {
	switch x := v.(type) {
	case nlfield.Values:
		if n.Fields == nil {
			n.Fields = nlfield.Values{}
		}
		for k, val := range x {
			n.Fields[k] = val
		}
	case map[string]interface{}:
		if n.Fields == nil {
			n.Fields = nlfield.Values{}
		}
		for k, val := range x {
			n.Fields[k] = val
		}
	default:
		n.Value = v
		n.valueSet = true
	}
}

// SetHeaderType sets this node's header "type" field -- used by
// nla.EncodeAttrs to stamp an attribute's numeric wire type just before
// encoding it.
func (n *Node) SetHeaderType(t uint16) {
	if n.Header == nil {
		n.Header = nlfield.Values{}
	}
	n.Header["type"] = t
}

// FieldValue looks up a header or field value by name on this node only
// (no parent walk -- callers that need a sibling's field, like ipaddr
// reading "family", walk ParentNode themselves).
func (n *Node) FieldValue(name string) (interface{}, bool) {
	if v, ok := n.Header[name]; ok {
		return v, true
	}
	if v, ok := n.Fields[name]; ok {
		return v, true
	}
	return nil, false
}

// ParentNode returns the enclosing node as an nla.Node, or the true nil
// interface value at the root (never a non-nil interface wrapping a nil
// *Node).
func (n *Node) ParentNode() nla.Node {
	if n.Parent == nil {
		return nil
	}
	return n.Parent
}

func align4(x int) int {
	return (x + 3) &^ 3
}

func toUint(v interface{}) (uint64, bool) {
	switch x := v.(type) {
	case uint64:
		return x, true
	case uint32:
		return uint64(x), true
	case uint16:
		return uint64(x), true
	case uint8:
		return uint64(x), true
	case int:
		return uint64(x), true
	default:
		return 0, false
	}
}

// Decode implements §4.3: record the node's starting offset, decode the
// header (if any) and snapshot Raw, decode the field block against the
// bytes remaining in the node, align to 4, then run the attribute-chain
// loop if this schema carries one.
func (n *Node) Decode(c *nlbuf.Cursor) error {
	n.Offset = c.Tell()
	headerSize := 0

	if n.Schema.HeaderBlock != nil {
		headerSize = nlfield.SizeOf(n.Schema.HeaderBlock)
		hv, err := nlfield.Decode(c, n.Schema.HeaderBlock, 0)
		if err != nil {
			return &HeaderDecodeError{Cause: err}
		}
		if len(hv) < len(n.Schema.HeaderBlock) {
			// A header that could not be read in full is fatal for this
			// node, unlike a short read inside the field block.
			return &HeaderDecodeError{Cause: nlbuf.ErrShortRead}
		}
		n.Header = hv

		length := headerSize
		if lv, ok := hv["length"]; ok {
			if u, ok := toUint(lv); ok {
				length = int(u)
			}
		}
		if length < 4 {
			length = 4
		}
		n.Length = length

		save := c.Tell()
		if err := c.Seek(n.Offset, nlbuf.SeekAbsolute); err == nil {
			raw, _ := c.Read(length)
			n.Raw = append([]byte(nil), raw...)
		}
		if err := c.Seek(save, nlbuf.SeekAbsolute); err != nil {
			return &HeaderDecodeError{Cause: err}
		}
	} else {
		n.Length = c.Len() - n.Offset
	}

	fieldsRemaining := n.Length - headerSize - nlfield.SizeOf(n.Schema.FieldBlock)
	if fieldsRemaining < 0 {
		fieldsRemaining = 0
	}

	var fv nlfield.Values
	var err error
	if n.Schema.Pack == PackStruct {
		fv, err = nlfield.DecodeStruct(c, n.Schema.FieldBlock)
	} else {
		fv, err = nlfield.Decode(c, n.Schema.FieldBlock, fieldsRemaining)
	}
	if err != nil {
		return &DataDecodeError{Cause: err}
	}
	n.Fields = fv

	if err := c.Seek(align4(c.Tell()), nlbuf.SeekAbsolute); err != nil {
		return &NLADecodeError{Cause: err}
	}

	if n.Schema.NLAMap != nil {
		if n.depth >= maxNestingDepth {
			return &NLADecodeError{Cause: ErrTooDeep}
		}
		attrs, err := nla.DecodeLoop(c, n.Offset+n.Length, n.Schema.NLAMap, n, n.Schema.Debug, n.Schema.Name)
		if err != nil {
			return &NLADecodeError{Cause: err}
		}
		n.Attrs = attrs
	}

	if n.Schema.PostDecode != nil {
		if err := n.Schema.PostDecode(n); err != nil {
			return err
		}
	}
	return nil
}

// Encode implements §4.4: reserve header space, let an atom transform
// its scalar back into field bytes (PreEncode), encode the field block
// padded to 4 bytes, encode the attribute chain if any, then back-patch
// the header's length now that the whole node's size is known.
func (n *Node) Encode(c *nlbuf.Cursor) error {
	start := c.Tell()

	if n.Schema.HeaderBlock != nil {
		if err := nlfield.Reserve(c, n.Schema.HeaderBlock); err != nil {
			return err
		}
	}

	if n.Schema.PreEncode != nil {
		if err := n.Schema.PreEncode(n); err != nil {
			return err
		}
	}

	// A scalar atom that never touched Fields (every numeric/string
	// atom without a PostDecode/PreEncode hook) mirrors its explicit
	// value into the "value" field so the generic field encode below
	// has something to write.
	if n.valueSet && n.Value != nil {
		if _, ok := n.Fields["value"]; !ok {
			if n.Fields == nil {
				n.Fields = nlfield.Values{}
			}
			n.Fields["value"] = n.Value
		}
	}

	// The "none" atom explicitly sets its value to nil (via
	// PostDecode/SetValue) to mean "ignore payload, decode to null";
	// mirror that on encode by skipping the field block entirely.
	skipFields := n.valueSet && n.Value == nil && len(n.Schema.FieldBlock) > 0

	diff := 0
	if !skipFields {
		if err := nlfield.Encode(c, n.Schema.FieldBlock, n.Fields); err != nil {
			return err
		}
		pos := c.Tell()
		diff = align4(pos) - pos
		if diff > 0 {
			if _, err := c.Write(make([]byte, diff)); err != nil {
				return err
			}
		}
	}

	if n.Schema.NLAMap != nil {
		if len(n.Attrs) > 0 {
			// The field-block pad is only trailing when nothing follows
			// it; once attributes are written it lies inside the node.
			diff = 0
		}
		if err := nla.EncodeAttrs(c, n.Attrs, n.Schema.NLAMap, n); err != nil {
			return err
		}
	}

	if n.Schema.HeaderBlock != nil {
		n.updateLength(c, start, diff)
	}
	return nil
}

// updateLength back-patches this node's header "length" field with the
// now-known total size (header + fields + attribute chain), excluding
// the field block's 4-byte alignment pad when that pad is trailing
// (diff is 0 once attributes follow it).
func (n *Node) updateLength(c *nlbuf.Cursor, start, diff int) {
	end := c.Tell()
	length := end - start - diff
	if n.Header == nil {
		n.Header = nlfield.Values{}
	}
	n.Header["length"] = uint32(length)

	if err := c.Seek(start, nlbuf.SeekAbsolute); err != nil {
		return
	}
	if err := nlfield.Encode(c, n.Schema.HeaderBlock, n.Header); err != nil {
		return
	}
	c.Seek(end, nlbuf.SeekAbsolute)
}
