// Package replay saves and replays raw Netlink message captures for
// offline decode testing, the role the teacher's zstd/loader pair
// played for tcp_info snapshot archives, generalized to framed raw
// records instead of one fixed message shape.
package replay

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/m-lab/go/rtx"

	"github.com/m-lab/netlink-codec/metrics"
	"github.com/m-lab/netlink-codec/nlbuf"
	"github.com/m-lab/netlink-codec/nlmsg"
)

// FixturePath is the flag a debug/test entry point uses to name the
// capture file to replay, mirroring the teacher's main.go/csvtool
// pattern of taking its input as a bare flag rather than a full CLI.
var FixturePath = flag.String("replay.fixture", "", "path to a captured raw-message fixture file")

// Save writes records to path, each framed by a 4-byte little-endian
// length prefix so a later Load does not need to understand any
// particular family's header shape to find record boundaries.
func Save(path string, records [][]byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteAll(f, records)
}

// WriteAll writes records to w in the same framed format Save uses,
// letting a caller build a fixture in memory (e.g. over a
// bytes.Buffer in a test) without touching the filesystem.
func WriteAll(w io.Writer, records [][]byte) error {
	for _, r := range records {
		var prefix [4]byte
		binary.LittleEndian.PutUint32(prefix[:], uint32(len(r)))
		if _, err := w.Write(prefix[:]); err != nil {
			return err
		}
		if _, err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// Load reads every length-prefixed record from path.
func Load(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadAll(f)
}

// ReadAll reads every length-prefixed record from r until EOF,
// mirroring the teacher's loader.LoadNetlinkMessage's "read header,
// read exactly that many data bytes" loop.
func ReadAll(r io.Reader) ([][]byte, error) {
	var records [][]byte
	for {
		var prefix [4]byte
		_, err := io.ReadFull(r, prefix[:])
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, fmt.Errorf("replay: truncated record prefix: %w", err)
		}
		length := binary.LittleEndian.Uint32(prefix[:])
		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			return records, fmt.Errorf("replay: truncated record body: %w", err)
		}
		records = append(records, data)
	}
}

// DecodeFixture loads every record from path and decodes each against
// schema, timing the decode through metrics.Observe exactly the way a
// live caller would -- a captured fixture exercises the same
// instrumentation path as a real message, just without a socket behind
// it. A per-record decode failure is recorded in the returned slice
// position as a nil node rather than aborting the whole fixture, since
// one corrupt capture entry should not hide the rest (§7's
// per-attribute recovery policy, applied one level up at the
// per-message granularity).
func DecodeFixture(path string, schema *nlmsg.Schema) ([]*nlmsg.Node, error) {
	records, err := Load(path)
	if err != nil {
		return nil, err
	}
	nodes := make([]*nlmsg.Node, len(records))
	for i, raw := range records {
		n := nlmsg.NewRoot(schema)
		decodeErr := metrics.Observe(schema.Name, func() error {
			return n.Decode(nlbuf.NewCursor(raw))
		})
		if decodeErr != nil {
			nodes[i] = nil
			continue
		}
		nodes[i] = n
	}
	return nodes, nil
}

// MustLoad loads path and fails the calling test immediately on error,
// matching the teacher test files' rtx.Must(err, ...) convention for
// fixture setup that should never fail in a working checkout.
func MustLoad(path string) [][]byte {
	records, err := Load(path)
	rtx.Must(err, "Could not load replay fixture %q", path)
	return records
}
