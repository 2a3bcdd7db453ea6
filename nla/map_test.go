package nla_test

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/m-lab/netlink-codec/metrics"
	"github.com/m-lab/netlink-codec/nla"
	"github.com/m-lab/netlink-codec/nlbuf"
	"github.com/m-lab/netlink-codec/nlfield"
)

// fakeNode is a minimal nla.Node for exercising Map/DecodeLoop in
// isolation from nlmsg, proving the two packages really don't need each
// other's concrete types.
type fakeNode struct {
	block  nlfield.Block
	fields nlfield.Values
	value  interface{}
	set    bool
}

func newFake(block nlfield.Block) *fakeNode { return &fakeNode{block: block} }

func (n *fakeNode) Decode(c *nlbuf.Cursor) error {
	c.Seek(4, nlbuf.SeekRelative) // skip the 4-byte nla header
	v, err := nlfield.Decode(c, n.block, c.Len()-c.Tell())
	n.fields = v
	return err
}

func (n *fakeNode) Encode(c *nlbuf.Cursor) error {
	start := c.Tell()
	c.Write([]byte{0, 0, 0, 0})
	if n.set {
		if n.fields == nil {
			n.fields = nlfield.Values{}
		}
		n.fields["value"] = n.value
	}
	if err := nlfield.Encode(c, n.block, n.fields); err != nil {
		return err
	}
	end := c.Tell()
	length := end - start
	c.Seek(start, nlbuf.SeekAbsolute)
	c.Write([]byte{byte(length), byte(length >> 8), 0, 0})
	c.Seek(end, nlbuf.SeekAbsolute)
	return nil
}

func (n *fakeNode) GetValue() interface{} {
	if n.set {
		return n.value
	}
	if v, ok := n.fields["value"]; ok {
		return v
	}
	return n
}
func (n *fakeNode) SetValue(v interface{}) { n.value = v; n.set = true }
func (n *fakeNode) SetHeaderType(t uint16) {}
func (n *fakeNode) FieldValue(name string) (interface{}, bool) {
	v, ok := n.fields[name]
	return v, ok
}
func (n *fakeNode) ParentNode() nla.Node { return nil }

func uint32Decoder(parent nla.Node) nla.Node {
	return newFake(nlfield.Block{{Name: "value", Format: "I"}})
}

// faultyNode always fails to decode, standing in for a malformed
// attribute whose per-attribute recovery should fall back to a hex blob
// rather than aborting the whole chain.
type faultyNode struct{ *fakeNode }

func faultyDecoder(parent nla.Node) nla.Node {
	return &faultyNode{newFake(nlfield.Block{{Name: "value", Format: "I"}})}
}

func (n *faultyNode) Decode(c *nlbuf.Cursor) error {
	return fmt.Errorf("nla: deliberate decode fault")
}

func TestNewMapDuplicateNamePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("NewMap() did not panic on duplicate name")
		}
	}()
	nla.NewMap(
		nla.Entry{Name: "x", Decoder: uint32Decoder},
		nla.Entry{Name: "x", Decoder: uint32Decoder},
	)
}

func TestByTypeByNameTypeOf(t *testing.T) {
	m := nla.NewMap(
		nla.Entry{Name: "a", Decoder: uint32Decoder},
		nla.Entry{Name: "b", Decoder: uint32Decoder},
	)
	if _, ok := m.ByType(0); !ok {
		t.Error("ByType(0) not found")
	}
	e, ok := m.ByName("b")
	if !ok || e.Name != "b" {
		t.Errorf("ByName(b) = %+v, %v", e, ok)
	}
	typ, ok := m.TypeOf("b")
	if !ok || typ != 1 {
		t.Errorf("TypeOf(b) = %d, %v, want 1", typ, ok)
	}
}

func TestDecodeLoopUnknownAttributeSkipped(t *testing.T) {
	m := nla.NewMap(nla.Entry{Name: "a", Decoder: uint32Decoder})

	c := nlbuf.NewCursor(nil)
	// Unknown type 9 with an 8-byte record.
	c.Write([]byte{8, 0, 9, 0, 1, 2, 3, 4})
	// Known type 0 ("a") with value 7.
	c.Write([]byte{8, 0, 0, 0})
	c.Write([]byte{7, 0, 0, 0})

	attrs, err := nla.DecodeLoop(nlbuf.NewCursor(c.Bytes()), c.Len(), m, nil, false, "test")
	if err != nil {
		t.Fatalf("DecodeLoop() error: %v", err)
	}
	if len(attrs) != 1 || attrs[0].Name != "a" || attrs[0].Value != uint32(7) {
		t.Errorf("attrs = %+v, want one entry {a, 7}", attrs)
	}
}

func TestEncodeAttrsRoundTrip(t *testing.T) {
	m := nla.NewMap(nla.Entry{Name: "a", Decoder: uint32Decoder})
	out := nlbuf.NewCursor(nil)
	if err := nla.EncodeAttrs(out, []nla.Attr{{Name: "a", Value: uint32(42)}}, m, nil); err != nil {
		t.Fatalf("EncodeAttrs() error: %v", err)
	}
	attrs, err := nla.DecodeLoop(nlbuf.NewCursor(out.Bytes()), out.Len(), m, nil, false, "test")
	if err != nil {
		t.Fatalf("DecodeLoop() error: %v", err)
	}
	if len(attrs) != 1 || attrs[0].Value != uint32(42) {
		t.Errorf("attrs = %+v, want one entry {a, 42}", attrs)
	}
}

// TestDecodeLoopClampsCorruptLength exercises §4.5's clamp-to-[4,
// remaining]: a declared length of 200 on a record with only 8 bytes
// left in the node must be clamped down to the 8 actually available,
// rather than reading past the node's end.
func TestDecodeLoopClampsCorruptLength(t *testing.T) {
	m := nla.NewMap(nla.Entry{Name: "a", Decoder: uint32Decoder})

	c := nlbuf.NewCursor(nil)
	c.Write([]byte{200, 0, 0, 0}) // length=200, type=0, but the node holds only 8 bytes
	c.Write([]byte{42, 0, 0, 0})

	attrs, err := nla.DecodeLoop(nlbuf.NewCursor(c.Bytes()), c.Len(), m, nil, false, "test")
	if err != nil {
		t.Fatalf("DecodeLoop() error: %v", err)
	}
	if len(attrs) != 1 || attrs[0].Name != "a" || attrs[0].Value != uint32(42) {
		t.Errorf("attrs = %+v, want one entry {a, 42} despite the oversized length", attrs)
	}
}

// TestDecodeLoopClampsZeroLength covers the other end of the clamp: a
// declared length below the 4-byte header minimum is raised to 4 rather
// than looping forever on a zero-size record.
func TestDecodeLoopClampsZeroLength(t *testing.T) {
	m := nla.NewMap(nla.Entry{Name: "a", Decoder: func(parent nla.Node) nla.Node {
		return newFake(nil)
	}})

	c := nlbuf.NewCursor(nil)
	c.Write([]byte{0, 0, 0, 0}) // declared length 0, clamps to 4

	attrs, err := nla.DecodeLoop(nlbuf.NewCursor(c.Bytes()), c.Len(), m, nil, false, "test")
	if err != nil {
		t.Fatalf("DecodeLoop() error: %v", err)
	}
	if len(attrs) != 1 || attrs[0].Name != "a" {
		t.Errorf("attrs = %+v, want one entry {a}", attrs)
	}
}

// TestDecodeLoopRecoversFaultyAttributeAsHex exercises the per-attribute
// local-recovery path: a registered attribute whose decode fails is
// recorded as a hex blob instead of aborting the chain, and the recovery
// is counted under RecoveredAttributeTotal.
func TestDecodeLoopRecoversFaultyAttributeAsHex(t *testing.T) {
	m := nla.NewMap(nla.Entry{Name: "bad", Decoder: faultyDecoder})

	c := nlbuf.NewCursor(nil)
	c.Write([]byte{8, 0, 0, 0})
	c.Write([]byte{0xAA, 0xBB, 0xCC, 0xDD})

	before := testutil.ToFloat64(metrics.RecoveredAttributeTotal.WithLabelValues("test"))
	attrs, err := nla.DecodeLoop(nlbuf.NewCursor(c.Bytes()), c.Len(), m, nil, false, "test")
	if err != nil {
		t.Fatalf("DecodeLoop() error: %v", err)
	}
	after := testutil.ToFloat64(metrics.RecoveredAttributeTotal.WithLabelValues("test"))

	if len(attrs) != 1 || attrs[0].Name != "bad" {
		t.Fatalf("attrs = %+v, want one entry named bad", attrs)
	}
	if attrs[0].Value != "08000000aabbccdd" {
		t.Errorf("attrs[0].Value = %v, want hex blob of the whole record", attrs[0].Value)
	}
	if after != before+1 {
		t.Errorf("RecoveredAttributeTotal = %v, want %v", after, before+1)
	}
}

// TestDecodeLoopDebugRetainsEncodedNode covers §4.5 step 5's debug
// annotation: with debug set, a successfully decoded attribute's Encoded
// field holds the live child node rather than staying nil.
func TestDecodeLoopDebugRetainsEncodedNode(t *testing.T) {
	m := nla.NewMap(nla.Entry{Name: "a", Decoder: uint32Decoder})

	c := nlbuf.NewCursor(nil)
	c.Write([]byte{8, 0, 0, 0})
	c.Write([]byte{42, 0, 0, 0})

	attrs, err := nla.DecodeLoop(nlbuf.NewCursor(c.Bytes()), c.Len(), m, nil, true, "test")
	if err != nil {
		t.Fatalf("DecodeLoop() error: %v", err)
	}
	if len(attrs) != 1 || attrs[0].Encoded == nil {
		t.Fatalf("attrs = %+v, want Encoded populated in debug mode", attrs)
	}
	if attrs[0].Encoded.GetValue() != uint32(42) {
		t.Errorf("Encoded.GetValue() = %v, want 42", attrs[0].Encoded.GetValue())
	}

	attrsNoDebug, err := nla.DecodeLoop(nlbuf.NewCursor(c.Bytes()), c.Len(), m, nil, false, "test")
	if err != nil {
		t.Fatalf("DecodeLoop() error: %v", err)
	}
	if attrsNoDebug[0].Encoded != nil {
		t.Errorf("Encoded = %v, want nil outside debug mode", attrsNoDebug[0].Encoded)
	}
}

func TestCanonicalNameAndShortNameRoundTrip(t *testing.T) {
	const prefix = "CTRL_ATTR_"
	canonical := nla.CanonicalName("family_id", prefix)
	if canonical != "CTRL_ATTR_FAMILY_ID" {
		t.Errorf("CanonicalName() = %q, want CTRL_ATTR_FAMILY_ID", canonical)
	}
	if got := nla.ShortName(canonical, prefix); got != "family_id" {
		t.Errorf("ShortName() = %q, want family_id", got)
	}
}

func TestByNameAcceptsCanonicalName(t *testing.T) {
	const prefix = "CTRL_ATTR_"
	m := nla.NewMap(nla.Entry{Name: nla.CanonicalName("family_id", prefix), Decoder: uint32Decoder})
	if _, ok := m.ByName("CTRL_ATTR_FAMILY_ID"); !ok {
		t.Error("ByName(CTRL_ATTR_FAMILY_ID) not found")
	}
}
