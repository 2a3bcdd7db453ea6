// Package header holds the fixed field blocks shared by every message
// family: the standard Netlink message header and the generic-netlink
// family header nested inside its payload (§6).
package header

import "github.com/m-lab/netlink-codec/nlfield"

// NlMsgHdr is the 16-byte struct nlmsghdr layout every top-level message
// starts with, grounded on the teacher's syscall.NlMsghdr/netlink.go
// byte layout.
var NlMsgHdr = nlfield.Block{
	{Name: "length", Format: "I"},
	{Name: "type", Format: "H"},
	{Name: "flags", Format: "H"},
	{Name: "sequence_number", Format: "I"},
	{Name: "pid", Format: "I"},
}

// GenHeader is the 4-byte generic-netlink family header that opens the
// payload of any genlmsg-derived message (struct genlmsghdr).
var GenHeader = nlfield.Block{
	{Name: "cmd", Format: "B"},
	{Name: "version", Format: "B"},
	{Name: "reserved", Format: "H"},
}
