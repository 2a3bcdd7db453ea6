package mgmt_test

import (
	"bytes"
	"testing"

	"github.com/m-lab/netlink-codec/family/mgmt"
	"github.com/m-lab/netlink-codec/nla"
	"github.com/m-lab/netlink-codec/nlbuf"
	"github.com/m-lab/netlink-codec/nlfield"
	"github.com/m-lab/netlink-codec/nlmsg"
)

func TestEnvelopeAndAttrsRoundTrip(t *testing.T) {
	schema := mgmt.NewMessage()

	enc := nlmsg.NewRoot(schema)
	enc.Fields = nlfield.Values{
		"dst": uint32(1), "dport": uint32(22), "src": uint32(2), "sport": uint32(5000),
		"ttl": uint16(64), "reserved": uint16(0), "id": bytes.Repeat([]byte{0xAB}, 16),
	}
	enc.Attrs = []nla.Attr{
		{Name: mgmt.AttrHost, Value: "storage1.example.net"},
		{Name: mgmt.AttrSource, Value: uint32(9)},
	}

	c := nlbuf.NewCursor(nil)
	if err := enc.Encode(c); err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	dec := nlmsg.NewRoot(schema)
	if err := dec.Decode(nlbuf.NewCursor(c.Bytes())); err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if dec.Fields["ttl"] != uint16(64) {
		t.Errorf("ttl = %v, want 64", dec.Fields["ttl"])
	}
	if !bytes.Equal(dec.Fields["id"].([]byte), bytes.Repeat([]byte{0xAB}, 16)) {
		t.Errorf("id = %v, want 16 bytes of 0xAB", dec.Fields["id"])
	}
	if dec.GetAttr(mgmt.AttrHost, nil) != "storage1.example.net" {
		t.Errorf("host attr = %v", dec.GetAttr(mgmt.AttrHost, nil))
	}
	if dec.GetAttr(mgmt.AttrSource, nil) != uint32(9) {
		t.Errorf("source attr = %v, want 9", dec.GetAttr(mgmt.AttrSource, nil))
	}
}

func TestNestedKeyAttribute(t *testing.T) {
	schema := mgmt.NewMessage()

	enc := nlmsg.NewRoot(schema)
	enc.Fields = nlfield.Values{
		"dst": uint32(0), "dport": uint32(0), "src": uint32(0), "sport": uint32(0),
		"ttl": uint16(0), "reserved": uint16(0), "id": make([]byte, 16),
	}
	enc.Attrs = []nla.Attr{
		{Name: mgmt.AttrKey, Value: nlfield.Values{"offset": uint32(1), "key": uint32(2), "mask": uint32(3)}},
	}

	c := nlbuf.NewCursor(nil)
	if err := enc.Encode(c); err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	dec := nlmsg.NewRoot(schema)
	if err := dec.Decode(nlbuf.NewCursor(c.Bytes())); err != nil {
		t.Fatalf("Decode() error: %v", err)
	}

	keyVal := dec.GetAttr(mgmt.AttrKey, nil)
	node, ok := keyVal.(*nlmsg.Node)
	if !ok {
		t.Fatalf("key attr = %T, want *nlmsg.Node", keyVal)
	}
	if node.Fields["offset"] != uint32(1) || node.Fields["key"] != uint32(2) || node.Fields["mask"] != uint32(3) {
		t.Errorf("key fields = %+v", node.Fields)
	}
}
