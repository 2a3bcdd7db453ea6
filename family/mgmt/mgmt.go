// Package mgmt implements an illustrative "routing-like envelope plus
// opaque payloads" messaging family (§4.8), merging the original
// envmsg's routing fields with the combined envmsg/mgmtmsg attribute
// vocabulary into a single schema.
package mgmt

import (
	"github.com/m-lab/netlink-codec/atom"
	"github.com/m-lab/netlink-codec/family/header"
	"github.com/m-lab/netlink-codec/nla"
	"github.com/m-lab/netlink-codec/nlfield"
	"github.com/m-lab/netlink-codec/nlmsg"
)

// Prefix is this family's canonical attribute-name prefix (§6),
// matching the original's IPR_ATTR_* vocabulary from envmsg/mgmtmsg.
const Prefix = "IPR_ATTR_"

// Attribute names, canonical upper-snake form, merging the original's
// IPR_ATTR_* vocabulary from envmsg and mgmtmsg into one table. Built
// from each attribute's short lower-case form via nla.CanonicalName.
var (
	AttrSecret  = nla.CanonicalName("secret", Prefix)
	AttrHost    = nla.CanonicalName("host", Prefix)
	AttrSSLKey  = nla.CanonicalName("ssl_key", Prefix)
	AttrSSLCert = nla.CanonicalName("ssl_cert", Prefix)
	AttrSSLCA   = nla.CanonicalName("ssl_ca", Prefix)
	AttrAddr    = nla.CanonicalName("addr", Prefix)
	AttrError   = nla.CanonicalName("error", Prefix)
	AttrCID     = nla.CanonicalName("cid", Prefix)
	AttrKey     = nla.CanonicalName("key", Prefix)
	AttrUUID    = nla.CanonicalName("uuid", Prefix)
	AttrSource  = nla.CanonicalName("source", Prefix)
	AttrCData   = nla.CanonicalName("cdata", Prefix)
	AttrCName   = nla.CanonicalName("cname", Prefix)
)

// FieldBlock is the routing-like envelope every message of this family
// carries ahead of its attribute chain: source/destination host and
// port, a hop-count-style ttl, and a 16-byte opaque correlation id.
var FieldBlock = nlfield.Block{
	{Name: "dst", Format: "I"},
	{Name: "dport", Format: "I"},
	{Name: "src", Format: "I"},
	{Name: "sport", Format: "I"},
	{Name: "ttl", Format: "H"},
	{Name: "reserved", Format: "H"},
	{Name: "id", Format: "16s"},
}

// u32KeyFields is the nested sub-schema for the KEY attribute, mirroring
// the original's u32key(nla): a plain field triple with no attribute
// chain of its own.
var u32KeyFields = nlfield.Block{
	{Name: "offset", Format: "I"},
	{Name: "key", Format: "I"},
	{Name: "mask", Format: "I"},
}

func key(parent nla.Node) nla.Node {
	schema := &nlmsg.Schema{
		HeaderBlock: nlfield.Block{{Name: "length", Format: "H"}, {Name: "type", Format: "H"}},
		FieldBlock:  u32KeyFields,
	}
	var p *nlmsg.Node
	if parent != nil {
		p, _ = parent.(*nlmsg.Node)
	}
	return nlmsg.NewChild(schema, p)
}

// NewMap builds the merged attribute vocabulary.
func NewMap() *nla.Map {
	return nla.NewMap(
		nla.Entry{Name: AttrSecret, Decoder: atom.Asciiz},
		nla.Entry{Name: AttrHost, Decoder: atom.Asciiz},
		nla.Entry{Name: AttrSSLKey, Decoder: atom.Asciiz},
		nla.Entry{Name: AttrSSLCert, Decoder: atom.Asciiz},
		nla.Entry{Name: AttrSSLCA, Decoder: atom.Asciiz},
		nla.Entry{Name: AttrAddr, Decoder: atom.Uint32},
		nla.Entry{Name: AttrError, Decoder: atom.Asciiz},
		nla.Entry{Name: AttrCID, Decoder: atom.Uint32},
		nla.Entry{Name: AttrKey, Decoder: key},
		nla.Entry{Name: AttrUUID, Decoder: atom.Asciiz},
		nla.Entry{Name: AttrSource, Decoder: atom.Uint32},
		nla.Entry{Name: AttrCData, Decoder: atom.CData},
		nla.Entry{Name: AttrCName, Decoder: atom.Asciiz},
	)
}

// NewMessage returns the schema for a full message of this family: the
// standard Netlink header, the routing envelope, and the merged
// attribute map -- there is no generic-netlink command/version
// sub-header here, matching the original envmsg deriving from nlmsg
// rather than genlmsg.
func NewMessage() *nlmsg.Schema {
	return &nlmsg.Schema{
		Name:        "mgmt",
		HeaderBlock: header.NlMsgHdr,
		FieldBlock:  FieldBlock,
		NLAMap:      NewMap(),
	}
}
