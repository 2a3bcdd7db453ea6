// Package ctrl implements the generic-netlink control family: the
// CTRL_ATTR_* attribute vocabulary used to query family IDs and
// capabilities from the kernel's generic-netlink controller (§4.8,
// grounded on the original's ctrlmsg/genlmsg).
package ctrl

import (
	"github.com/m-lab/netlink-codec/atom"
	"github.com/m-lab/netlink-codec/family/generic"
	"github.com/m-lab/netlink-codec/nla"
	"github.com/m-lab/netlink-codec/nlmsg"
)

// Prefix is this family's canonical attribute-name prefix (§6).
const Prefix = "CTRL_ATTR_"

// Attribute names, canonical upper-snake form, in CTRL_ATTR_* wire-type
// order (§6's attribute-name convention). Built from each attribute's
// short lower-case form via nla.CanonicalName rather than spelled out by
// hand, so the short and canonical spellings can never drift apart.
var (
	AttrUnspec      = nla.CanonicalName("unspec", Prefix)
	AttrFamilyID    = nla.CanonicalName("family_id", Prefix)
	AttrFamilyName  = nla.CanonicalName("family_name", Prefix)
	AttrVersion     = nla.CanonicalName("version", Prefix)
	AttrHdrSize     = nla.CanonicalName("hdrsize", Prefix)
	AttrMaxAttr     = nla.CanonicalName("maxattr", Prefix)
	AttrOps         = nla.CanonicalName("ops", Prefix)
	AttrMcastGroups = nla.CanonicalName("mcast_groups", Prefix)
)

// NewMap builds the CTRL_ATTR_* attribute map. FAMILY_ID/VERSION/
// HDRSIZE/MAXATTR decode as real scalar atoms rather than the original's
// placeholder hex dump, since nothing in §9's Non-goals forbids giving a
// textbook integer field its obvious codec.
func NewMap() *nla.Map {
	return nla.NewMap(
		nla.Entry{Name: AttrUnspec, Decoder: atom.None},
		nla.Entry{Name: AttrFamilyID, Decoder: atom.Uint16},
		nla.Entry{Name: AttrFamilyName, Decoder: atom.Asciiz},
		nla.Entry{Name: AttrVersion, Decoder: atom.Uint32},
		nla.Entry{Name: AttrHdrSize, Decoder: atom.Uint32},
		nla.Entry{Name: AttrMaxAttr, Decoder: atom.Uint32},
		nla.Entry{Name: AttrOps, Decoder: atom.Hex},
		nla.Entry{Name: AttrMcastGroups, Decoder: atom.Hex},
	)
}

// NewMessage returns the schema for a full CTRL_CMD_* message: the
// generic-netlink header plus the CTRL_ATTR_* map.
func NewMessage() *nlmsg.Schema {
	s := generic.NewMessage()
	s.Name = "ctrl"
	s.NLAMap = NewMap()
	return s
}
