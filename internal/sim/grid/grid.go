package grid

import (
	"fmt"
	"math"
)

// Vec2i is a cell coordinate on the colony map.
type Vec2i struct{ X, Y int }

func (a Vec2i) Add(b Vec2i) Vec2i { return Vec2i{X: a.X + b.X, Y: a.Y + b.Y} }
func (a Vec2i) Sub(b Vec2i) Vec2i { return Vec2i{X: a.X - b.X, Y: a.Y - b.Y} }

func (a Vec2i) String() string { return fmt.Sprintf("(%d,%d)", a.X, a.Y) }

// Rect is a half-open cell rectangle: Min is inside, Max is not.
type Rect struct{ Min, Max Vec2i }

func RectAt(p Vec2i, w, h int) Rect {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return Rect{Min: p, Max: Vec2i{X: p.X + w, Y: p.Y + h}}
}

// Cell is the 1x1 rect at p.
func Cell(p Vec2i) Rect { return RectAt(p, 1, 1) }

func (r Rect) Empty() bool { return r.Max.X <= r.Min.X || r.Max.Y <= r.Min.Y }
func (r Rect) W() int      { return r.Max.X - r.Min.X }
func (r Rect) H() int      { return r.Max.Y - r.Min.Y }
func (r Rect) Area() int {
	if r.Empty() {
		return 0
	}
	return r.W() * r.H()
}

func (r Rect) Contains(p Vec2i) bool {
	return p.X >= r.Min.X && p.X < r.Max.X && p.Y >= r.Min.Y && p.Y < r.Max.Y
}

func (r Rect) Intersects(o Rect) bool {
	if r.Empty() || o.Empty() {
		return false
	}
	return r.Min.X < o.Max.X && o.Min.X < r.Max.X && r.Min.Y < o.Max.Y && o.Min.Y < r.Max.Y
}

func (r Rect) Expand(n int) Rect {
	return Rect{
		Min: Vec2i{X: r.Min.X - n, Y: r.Min.Y - n},
		Max: Vec2i{X: r.Max.X + n, Y: r.Max.Y + n},
	}
}

// Union returns the smallest rect covering both; empty rects are ignored.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	return Rect{
		Min: Vec2i{X: min(r.Min.X, o.Min.X), Y: min(r.Min.Y, o.Min.Y)},
		Max: Vec2i{X: max(r.Max.X, o.Max.X), Y: max(r.Max.Y, o.Max.Y)},
	}
}

// Each visits cells in row-major order.
func (r Rect) Each(fn func(Vec2i)) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			fn(Vec2i{X: x, Y: y})
		}
	}
}

func (r Rect) String() string { return fmt.Sprintf("[%v..%v)", r.Min, r.Max) }

func AbsInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func Chebyshev(a, b Vec2i) int {
	return max(AbsInt(a.X-b.X), AbsInt(a.Y-b.Y))
}

// Octile is the exact 8-connected grid distance with diagonal cost sqrt(2).
func Octile(a, b Vec2i) float64 {
	dx := AbsInt(a.X - b.X)
	dy := AbsInt(a.Y - b.Y)
	lo, hi := min(dx, dy), max(dx, dy)
	return float64(hi-lo) + math.Sqrt2*float64(lo)
}

// DistToRect is the octile distance from p to the nearest cell of r (0 inside).
func DistToRect(p Vec2i, r Rect) float64 {
	if r.Empty() {
		return 0
	}
	q := Vec2i{
		X: clamp(p.X, r.Min.X, r.Max.X-1),
		Y: clamp(p.Y, r.Min.Y, r.Max.Y-1),
	}
	return Octile(p, q)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
