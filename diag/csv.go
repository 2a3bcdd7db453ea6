// Package diag dumps a decoded message tree into flat, inspectable
// forms for debugging and offline analysis -- the role the original's
// csvtool played for tcp_info snapshots, generalized to any family's
// node tree.
package diag

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"github.com/m-lab/netlink-codec/nlmsg"
)

// Row is one flattened attribute, suitable for gocsv marshaling. A
// composite attribute (its Value is itself a *nlmsg.Node) contributes
// one row for its own presence plus one row per descendant, with Path
// recording the dotted name trail down to it.
type Row struct {
	Schema string `csv:"schema"`
	Path   string `csv:"path"`
	Name   string `csv:"name"`
	Type   string `csv:"type"`
	Offset int    `csv:"offset"`
	Length int    `csv:"length"`
	Value  string `csv:"value"`
}

// Flatten walks n's attribute chain (recursing into composite
// attributes) and returns one Row per leaf and composite attribute.
func Flatten(n *nlmsg.Node) []Row {
	var rows []Row
	schemaName := ""
	if n.Schema != nil {
		schemaName = n.Schema.Name
	}
	flattenInto(&rows, n, schemaName, "")
	return rows
}

func flattenInto(rows *[]Row, n *nlmsg.Node, schemaName, prefix string) {
	for _, a := range n.Attrs {
		path := a.Name
		if prefix != "" {
			path = prefix + "." + a.Name
		}
		child, isNode := a.Value.(*nlmsg.Node)
		row := Row{
			Schema: schemaName,
			Path:   path,
			Name:   a.Name,
			Type:   valueType(a.Value),
			Value:  valueString(a.Value),
		}
		if isNode {
			row.Offset = child.Offset
			row.Length = child.Length
			*rows = append(*rows, row)
			flattenInto(rows, child, schemaName, path)
			continue
		}
		*rows = append(*rows, row)
	}
}

func valueType(v interface{}) string {
	switch v.(type) {
	case *nlmsg.Node:
		return "node"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func valueString(v interface{}) string {
	if n, ok := v.(*nlmsg.Node); ok {
		return fmt.Sprintf("<%d attrs>", len(n.Attrs))
	}
	return fmt.Sprintf("%v", v)
}

// DumpCSV flattens every node in nodes and marshals the combined row
// set to w via gocsv, one node's attribute chain after another.
func DumpCSV(nodes []*nlmsg.Node, w io.Writer) error {
	var rows []Row
	for _, n := range nodes {
		rows = append(rows, Flatten(n)...)
	}
	if rows == nil {
		rows = []Row{}
	}
	return gocsv.Marshal(rows, w)
}
