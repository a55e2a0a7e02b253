// File: internal/snapshot/hash.go
package snapshot

import (
	"encoding/binary"
	"hash/fnv"
	"strconv"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

// Seal computes the per-subtree content hash for every element reachable from
// the snapshot's roots. It is called exactly once, at capture time; the
// snapshot is immutable afterwards.
func Seal(snap *schemas.Snapshot) {
	for _, root := range snap.Roots {
		sealElement(root)
	}
}

// sealElement hashes an element's own content plus its children's hashes,
// bottom-up. Bounds participate so a pure move is a visible change; the
// volatile platform handle does not.
func sealElement(e *schemas.Element) uint64 {
	h := fnv.New64a()
	h.Write([]byte(e.Role))
	h.Write([]byte{0})
	h.Write([]byte(e.Label))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatBool(e.Flags.Enabled)))
	h.Write([]byte(strconv.FormatBool(e.Flags.Focused)))
	h.Write([]byte(strconv.FormatBool(e.Flags.Selected)))
	writeFloat(h, e.Bounds.X)
	writeFloat(h, e.Bounds.Y)
	writeFloat(h, e.Bounds.Width)
	writeFloat(h, e.Bounds.Height)

	var buf [8]byte
	for _, c := range e.Children {
		binary.LittleEndian.PutUint64(buf[:], sealElement(c))
		h.Write(buf[:])
	}

	e.Hash = h.Sum64()
	return e.Hash
}

func writeFloat(h interface{ Write([]byte) (int, error) }, f float64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(int64(f*100))) // centipixel precision
	h.Write(buf[:])
}
