// Package generic provides the genlmsg base every concrete
// generic-netlink family (ctrl, mgmt) builds on: the standard message
// header plus the 4-byte command/version sub-header, with no attribute
// map of its own.
package generic

import (
	"github.com/m-lab/netlink-codec/family/header"
	"github.com/m-lab/netlink-codec/nlmsg"
)

// NewMessage returns a schema carrying the standard Netlink header and
// the generic-netlink command header, but no NLA map -- a concrete
// family wraps this with its own map.
func NewMessage() *nlmsg.Schema {
	return &nlmsg.Schema{
		HeaderBlock: header.NlMsgHdr,
		FieldBlock:  header.GenHeader,
	}
}
