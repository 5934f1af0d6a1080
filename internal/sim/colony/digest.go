package colony

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
)

// stateDigest hashes agents, floor items and buildings so two runs of the same
// scenario can be compared tick by tick.
func (c *Colony) stateDigest() string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, c.tick)
	for _, a := range c.agents {
		h.Write([]byte(a.ID))
		digestWriteI64(h, &tmp, int64(a.Cell.X))
		digestWriteI64(h, &tmp, int64(a.Cell.Y))
		digestWriteU64(h, &tmp, math.Float64bits(a.Transit))
		if w := a.Work(); w != nil {
			digestWriteU64(h, &tmp, w.ID)
		} else {
			digestWriteU64(h, &tmp, 0)
		}
		if it := a.Carrying; it != nil {
			h.Write([]byte(it.Def.ID))
			digestWriteI64(h, &tmp, int64(it.Amount))
		}
	}
	for _, it := range c.World.Items() {
		digestWriteU64(h, &tmp, it.ID)
		h.Write([]byte(it.Def.ID))
		digestWriteI64(h, &tmp, int64(it.Pos.X))
		digestWriteI64(h, &tmp, int64(it.Pos.Y))
		digestWriteI64(h, &tmp, int64(it.Amount))
		digestWriteI64(h, &tmp, int64(it.Reserved))
	}
	for _, b := range c.World.Buildings() {
		digestWriteU64(h, &tmp, b.ID)
		h.Write([]byte(b.Def.ID))
		digestWriteI64(h, &tmp, int64(b.Bounds.Min.X))
		digestWriteI64(h, &tmp, int64(b.Bounds.Min.Y))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteU64(h hash.Hash, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hash.Hash, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}
