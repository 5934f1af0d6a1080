package grid

// Dir is one of the eight compass directions (or None).
type Dir int

const (
	None Dir = iota
	N
	NE
	E
	SE
	S
	SW
	W
	NW
)

var dirNames = [...]string{"NONE", "N", "NE", "E", "SE", "S", "SW", "W", "NW"}

func (d Dir) String() string {
	if d < 0 || int(d) >= len(dirNames) {
		return "NONE"
	}
	return dirNames[d]
}

// Neighbors8 is the fixed neighbor order used everywhere a search must be deterministic.
// Y grows southwards.
var Neighbors8 = [8]Vec2i{
	{X: 0, Y: -1},  // N
	{X: 1, Y: 0},   // E
	{X: 0, Y: 1},   // S
	{X: -1, Y: 0},  // W
	{X: 1, Y: -1},  // NE
	{X: 1, Y: 1},   // SE
	{X: -1, Y: 1},  // SW
	{X: -1, Y: -1}, // NW
}

// DirOf maps a step delta to its facing. Only the sign of each axis matters.
func DirOf(d Vec2i) Dir {
	sx, sy := sign(d.X), sign(d.Y)
	switch {
	case sx == 0 && sy < 0:
		return N
	case sx > 0 && sy < 0:
		return NE
	case sx > 0 && sy == 0:
		return E
	case sx > 0 && sy > 0:
		return SE
	case sx == 0 && sy > 0:
		return S
	case sx < 0 && sy > 0:
		return SW
	case sx < 0 && sy == 0:
		return W
	case sx < 0 && sy < 0:
		return NW
	}
	return None
}

// Diagonal reports whether the step d moves on both axes.
func Diagonal(d Vec2i) bool { return d.X != 0 && d.Y != 0 }

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
