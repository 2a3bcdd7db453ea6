// Package rtlink supplements the three families spec.md names with an
// illustrative interface-info family (struct ifinfomsg/ifaddrmsg), the
// original pyroute2 project's other canonical example and the only one
// that exercises the ipaddr/l2addr atoms' "look at a sibling field"
// behavior end to end.
package rtlink

import (
	"github.com/m-lab/netlink-codec/atom"
	"github.com/m-lab/netlink-codec/nla"
	"github.com/m-lab/netlink-codec/nlfield"
	"github.com/m-lab/netlink-codec/nlmsg"
)

// LinkPrefix is the link-message family's canonical attribute-name
// prefix (§6).
const LinkPrefix = "IFLA_"

// Link-message attribute names, canonical upper-snake form (IFLA_*),
// built from each attribute's short lower-case form via
// nla.CanonicalName.
var (
	AttrUnspec    = nla.CanonicalName("unspec", LinkPrefix)
	AttrAddress   = nla.CanonicalName("address", LinkPrefix)
	AttrBroadcast = nla.CanonicalName("broadcast", LinkPrefix)
	AttrIfName    = nla.CanonicalName("ifname", LinkPrefix)
	AttrMTU       = nla.CanonicalName("mtu", LinkPrefix)
	AttrLink      = nla.CanonicalName("link", LinkPrefix)
	AttrOperState = nla.CanonicalName("operstate", LinkPrefix)
)

// AddrPrefix is the address-message family's canonical attribute-name
// prefix (§6).
const AddrPrefix = "IFA_"

// Address-message attribute names, canonical upper-snake form (IFA_*),
// built the same way as the link attributes above.
var (
	AddrAttrAddress   = nla.CanonicalName("address", AddrPrefix)
	AddrAttrLocal     = nla.CanonicalName("local", AddrPrefix)
	AddrAttrLabel     = nla.CanonicalName("label", AddrPrefix)
	AddrAttrBroadcast = nla.CanonicalName("broadcast", AddrPrefix)
)

// linkFields is struct ifinfomsg: family and pad are single bytes, the
// remaining four fields are native-endian ints, all bound positionally
// in one fixed-size read (pack=struct) since ifinfomsg has no
// variable-width member to derive remaining-length from. This schema is
// header-less (no length/type envelope of its own) -- it is ifinfomsg
// itself, the same role a standard Netlink header's payload plays for
// ctrl/mgmt, assembled here as a standalone node for testing in
// isolation from an outer nlmsghdr wrapper.
var linkFields = nlfield.Block{
	{Name: "family", Format: "B"},
	{Name: "pad", Format: "B"},
	{Name: "type", Format: "H"},
	{Name: "index", Format: "I"},
	{Name: "flags", Format: "I"},
	{Name: "change", Format: "I"},
}

// NewLinkMap builds the IFLA_* attribute map for a link message.
func NewLinkMap() *nla.Map {
	return nla.NewMap(
		nla.Entry{Name: AttrUnspec, Decoder: atom.None},
		nla.Entry{Name: AttrAddress, Decoder: atom.L2Addr},
		nla.Entry{Name: AttrBroadcast, Decoder: atom.L2Addr},
		nla.Entry{Name: AttrIfName, Decoder: atom.Asciiz},
		nla.Entry{Name: AttrMTU, Decoder: atom.Uint32},
		nla.Entry{Name: AttrLink, Decoder: atom.Uint32},
		nla.Entry{Name: AttrOperState, Decoder: atom.Uint8},
	)
}

// NewLinkMessage returns the schema for an RTM_*LINK message.
func NewLinkMessage() *nlmsg.Schema {
	return &nlmsg.Schema{
		Name:       "rtlink.link",
		FieldBlock: linkFields,
		Pack:       nlmsg.PackStruct,
		NLAMap:     NewLinkMap(),
	}
}

// addrFields is struct ifaddrmsg: four single-byte fields followed by
// the owning interface index. Header-less, for the same reason as
// linkFields above.
var addrFields = nlfield.Block{
	{Name: "family", Format: "B"},
	{Name: "prefixlen", Format: "B"},
	{Name: "flags", Format: "B"},
	{Name: "scope", Format: "B"},
	{Name: "index", Format: "I"},
}

// NewAddrMap builds the IFA_* attribute map for an address message. Its
// ipaddr entries are where the "read the address family from a sibling
// field" rule is actually exercised: ADDRESS/LOCAL/BROADCAST all look up
// this schema's own "family" field via their parent link.
func NewAddrMap() *nla.Map {
	return nla.NewMap(
		nla.Entry{Name: AddrAttrAddress, Decoder: atom.IPAddr},
		nla.Entry{Name: AddrAttrLocal, Decoder: atom.IPAddr},
		nla.Entry{Name: AddrAttrLabel, Decoder: atom.Asciiz},
		nla.Entry{Name: AddrAttrBroadcast, Decoder: atom.IPAddr},
	)
}

// NewAddrMessage returns the schema for an RTM_*ADDR message.
func NewAddrMessage() *nlmsg.Schema {
	return &nlmsg.Schema{
		Name:       "rtlink.addr",
		FieldBlock: addrFields,
		Pack:       nlmsg.PackStruct,
		NLAMap:     NewAddrMap(),
	}
}
