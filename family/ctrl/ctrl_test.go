package ctrl_test

import (
	"testing"

	"github.com/go-test/deep"
	"github.com/m-lab/netlink-codec/family/ctrl"
	"github.com/m-lab/netlink-codec/nla"
	"github.com/m-lab/netlink-codec/nlbuf"
	"github.com/m-lab/netlink-codec/nlfield"
	"github.com/m-lab/netlink-codec/nlmsg"
)

func TestGetFamilyRoundTrip(t *testing.T) {
	schema := ctrl.NewMessage()

	enc := nlmsg.NewRoot(schema)
	enc.Header = nlfield.Values{"type": uint16(16), "flags": uint16(0), "sequence_number": uint32(1), "pid": uint32(0)}
	enc.Fields = nlfield.Values{"cmd": uint8(3), "version": uint8(2), "reserved": uint16(0)}
	enc.Attrs = []nla.Attr{
		{Name: ctrl.AttrFamilyID, Value: uint16(1)},
		{Name: ctrl.AttrFamilyName, Value: "nlctrl"},
		{Name: ctrl.AttrVersion, Value: uint32(2)},
	}

	c := nlbuf.NewCursor(nil)
	if err := enc.Encode(c); err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	dec := nlmsg.NewRoot(schema)
	if err := dec.Decode(nlbuf.NewCursor(c.Bytes())); err != nil {
		t.Fatalf("Decode() error: %v", err)
	}

	if got := dec.GetAttr(ctrl.AttrFamilyID, nil); got != uint16(1) {
		t.Errorf("family_id = %v, want 1", got)
	}
	if got := dec.GetAttr(ctrl.AttrFamilyName, nil); got != "nlctrl" {
		t.Errorf("family_name = %v, want nlctrl", got)
	}
	wantFields := nlfield.Values{"cmd": uint8(3), "version": uint8(2), "reserved": uint16(0)}
	if diff := deep.Equal(dec.Fields, wantFields); diff != nil {
		t.Error(diff)
	}
}

func TestUnknownOpsAttrDecodesAsHex(t *testing.T) {
	schema := ctrl.NewMessage()
	enc := nlmsg.NewRoot(schema)
	enc.Fields = nlfield.Values{"cmd": uint8(3), "version": uint8(2), "reserved": uint16(0)}
	enc.Attrs = []nla.Attr{{Name: ctrl.AttrOps, Value: "01:02"}}

	c := nlbuf.NewCursor(nil)
	if err := enc.Encode(c); err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	dec := nlmsg.NewRoot(schema)
	if err := dec.Decode(nlbuf.NewCursor(c.Bytes())); err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got := dec.GetAttr(ctrl.AttrOps, nil); got != "01:02" {
		t.Errorf("ops = %v, want 01:02", got)
	}
}
