package hnsw

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// MaxLevel bounds graph height so level arrays stay small and level
// generation terminates deterministically.
const MaxLevel = 15

// assignLevel computes the deterministic insertion level for a vector id:
// L = min(MaxLevel, floor(-ln(U(hash(id))) / ln(2))). Using a hash of the id
// rather than a PRNG means rebuilding from storage in any order reproduces
// the same graph topology.
func assignLevel(id uint64) int {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], id)
	h := xxhash.Sum64(buf[:])

	// Map to (0,1], excluding 0 so log never sees -Inf.
	u := float64(h>>11) / float64(1<<53)
	if u <= 0 {
		u = 1.0 / float64(1<<53)
	}

	level := int(math.Floor(-math.Log(u) / math.Ln2))
	if level > MaxLevel {
		level = MaxLevel
	}
	if level < 0 {
		level = 0
	}
	return level
}
