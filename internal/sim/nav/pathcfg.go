package nav

import "colonysim/internal/sim/grid"

// PathCfg describes a path request: where the walk may end and how far a cell
// is estimated to be from any such place. The heuristic must never overestimate.
type PathCfg struct {
	Dst       func(grid.Vec2i) bool
	Heuristic func(grid.Vec2i) float64
}

func (c PathCfg) Satisfied(p grid.Vec2i) bool {
	return c.Dst != nil && c.Dst(p)
}

func (c PathCfg) estimate(p grid.Vec2i) float64 {
	if c.Heuristic == nil {
		return 0
	}
	return c.Heuristic(p)
}

// ToPoint ends exactly on p.
func ToPoint(p grid.Vec2i) PathCfg {
	return PathCfg{
		Dst:       func(q grid.Vec2i) bool { return q == p },
		Heuristic: func(q grid.Vec2i) float64 { return grid.Octile(q, p) },
	}
}

// InArea ends on any cell of r.
func InArea(r grid.Rect) PathCfg {
	return PathCfg{
		Dst:       r.Contains,
		Heuristic: func(q grid.Vec2i) float64 { return grid.DistToRect(q, r) },
	}
}

// Adjacent ends on a cell touching r (diagonals included) but not inside it.
func Adjacent(r grid.Rect) PathCfg {
	ring := r.Expand(1)
	return PathCfg{
		Dst: func(q grid.Vec2i) bool { return ring.Contains(q) && !r.Contains(q) },
		Heuristic: func(q grid.Vec2i) float64 {
			d := grid.DistToRect(q, ring)
			if r.Contains(q) {
				return 1
			}
			return d
		},
	}
}

// AdjacentPoint is Adjacent for a single cell.
func AdjacentPoint(p grid.Vec2i) PathCfg { return Adjacent(grid.Cell(p)) }

// Vacate ends on any cell outside r. The heuristic is zero, which turns the
// search into a uniform-cost flood towards the nearest exit.
func Vacate(r grid.Rect) PathCfg {
	return PathCfg{
		Dst:       func(q grid.Vec2i) bool { return !r.Contains(q) },
		Heuristic: func(grid.Vec2i) float64 { return 0 },
	}
}
