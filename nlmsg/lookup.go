package nlmsg

import (
	"reflect"

	"github.com/m-lab/netlink-codec/nla"
	"github.com/m-lab/netlink-codec/nlfield"
)

// GetAttr returns the value of the first attribute named name, or def if
// none is present (§4.6).
func (n *Node) GetAttr(name string, def interface{}) interface{} {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value
		}
	}
	return def
}

// GetAttrs returns the values of every attribute named name, in wire
// order. Several Netlink families (e.g. repeated route nexthops) encode
// the same attribute type more than once in a chain.
func (n *Node) GetAttrs(name string) []interface{} {
	var out []interface{}
	for _, a := range n.Attrs {
		if a.Name == name {
			out = append(out, a.Value)
		}
	}
	return out
}

// Strip removes every attribute whose name is in names and returns n for
// chaining.
func (n *Node) Strip(names ...string) *Node {
	if len(names) == 0 || len(n.Attrs) == 0 {
		return n
	}
	drop := make(map[string]bool, len(names))
	for _, name := range names {
		drop[name] = true
	}
	kept := n.Attrs[:0:0]
	for _, a := range n.Attrs {
		if !drop[a.Name] {
			kept = append(kept, a)
		}
	}
	n.Attrs = kept
	return n
}

// Equal reports whether n and other carry the same fields and the same
// attribute chain (same names, same order, same values, with nested
// nodes compared recursively). Header and any explicit scalar Value are
// not part of the comparison: two decodes of the same logical message
// can legitimately disagree on header.length padding while still being
// the same message.
func (n *Node) Equal(other *Node) bool {
	if other == nil {
		return false
	}
	if !reflect.DeepEqual(n.Fields, other.Fields) {
		return false
	}
	if len(n.Attrs) != len(other.Attrs) {
		return false
	}
	for i, a := range n.Attrs {
		b := other.Attrs[i]
		if a.Name != b.Name {
			return false
		}
		an, aIsNode := a.Value.(*Node)
		bn, bIsNode := b.Value.(*Node)
		if aIsNode != bIsNode {
			return false
		}
		if aIsNode {
			if !an.Equal(bn) {
				return false
			}
			continue
		}
		if !reflect.DeepEqual(a.Value, b.Value) {
			return false
		}
	}
	return true
}

// Difference returns a node holding only the fields and attributes of n
// that differ from other's (missing from other, or present with a
// different value). Nested attribute nodes are diffed recursively. A nil
// result means n and other carry no differences. Mirrors the original's
// "__sub__" operator (§3), renamed per Go's no-operator-overload idiom.
func (n *Node) Difference(other *Node) *Node {
	return n.algebra(other, false)
}

// Intersect returns a node holding only the fields and attributes n and
// other agree on. Mirrors the original's "__and__" operator (§3).
func (n *Node) Intersect(other *Node) *Node {
	return n.algebra(other, true)
}

func (n *Node) algebra(other *Node, intersect bool) *Node {
	if other == nil {
		other = &Node{}
	}
	res := &Node{Schema: n.Schema}

	var fields nlfield.Values
	for k, v := range n.Fields {
		ov, ok := other.Fields[k]
		switch {
		case intersect && ok && reflect.DeepEqual(v, ov):
			if fields == nil {
				fields = nlfield.Values{}
			}
			fields[k] = v
		case !intersect && (!ok || !reflect.DeepEqual(v, ov)):
			if fields == nil {
				fields = nlfield.Values{}
			}
			fields[k] = v
		}
	}
	if fields != nil {
		res.Fields = fields
	}

	var attrs []nla.Attr
	for _, a := range n.Attrs {
		ov := other.GetAttr(a.Name, nil)
		childNode, isNode := a.Value.(*Node)
		if isNode {
			otherChild, _ := ov.(*Node)
			var diff *Node
			switch {
			case otherChild != nil:
				if intersect {
					diff = childNode.Intersect(otherChild)
				} else {
					diff = childNode.Difference(otherChild)
				}
			case !intersect:
				diff = childNode
			}
			if diff != nil {
				attrs = append(attrs, nla.Attr{Name: a.Name, Value: diff})
			}
			continue
		}
		switch {
		case intersect && ov != nil && reflect.DeepEqual(a.Value, ov):
			attrs = append(attrs, nla.Attr{Name: a.Name, Value: a.Value})
		case !intersect && !reflect.DeepEqual(a.Value, ov):
			attrs = append(attrs, nla.Attr{Name: a.Name, Value: a.Value})
		}
	}
	if attrs != nil {
		res.Attrs = attrs
	}

	if res.Fields == nil && res.Attrs == nil {
		return nil
	}
	return res
}
