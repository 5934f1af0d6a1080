package nav

import (
	"math"
	"math/rand"
	"strings"
	"testing"

	"colonysim/internal/sim/grid"
)

// parseMap reads '#' as wall, anything else as floor. 'S' and 'D' mark start and destination.
func parseMap(t *testing.T, rows ...string) (grid.Rect, map[grid.Vec2i]bool, grid.Vec2i, grid.Vec2i) {
	t.Helper()
	walls := map[grid.Vec2i]bool{}
	var s, d grid.Vec2i
	for y, row := range rows {
		for x, ch := range row {
			p := grid.Vec2i{X: x, Y: y}
			switch ch {
			case '#':
				walls[p] = true
			case 'S':
				s = p
			case 'D':
				d = p
			}
		}
	}
	return grid.RectAt(grid.Vec2i{}, len(rows[0]), len(rows)), walls, s, d
}

func checkPath(t *testing.T, path []grid.Vec2i, start grid.Vec2i, cfg PathCfg, passable Passable) {
	t.Helper()
	if len(path) == 0 {
		t.Fatalf("empty path")
	}
	if path[0] != start {
		t.Fatalf("path starts at %v, want %v", path[0], start)
	}
	if !cfg.Satisfied(path[len(path)-1]) {
		t.Fatalf("path ends at %v which does not satisfy destination", path[len(path)-1])
	}
	cost := 0.0
	for i := 1; i < len(path); i++ {
		d := path[i].Sub(path[i-1])
		if grid.Chebyshev(path[i], path[i-1]) != 1 {
			t.Fatalf("step %d not adjacent: %v -> %v", i, path[i-1], path[i])
		}
		if !passable(path[i]) {
			t.Fatalf("step %d onto impassable %v", i, path[i])
		}
		if grid.Diagonal(d) {
			if !passable(grid.Vec2i{X: path[i-1].X + d.X, Y: path[i-1].Y}) || !passable(grid.Vec2i{X: path[i-1].X, Y: path[i-1].Y + d.Y}) {
				t.Fatalf("step %d cuts a corner: %v -> %v", i, path[i-1], path[i])
			}
		}
		next := Cost(path[:i+1])
		if next < cost {
			t.Fatalf("accumulated cost decreased at step %d", i)
		}
		cost = next
	}
}

func TestFindPath_StraightAndDiagonal(t *testing.T) {
	bounds, walls, s, d := parseMap(t,
		"S....",
		".....",
		"....D",
	)
	pass := func(p grid.Vec2i) bool { return !walls[p] }
	c := NewCache(bounds)
	cfg := ToPoint(d)
	path, ok := c.FindPath(pass, s, cfg)
	if !ok {
		t.Fatalf("expected a path")
	}
	checkPath(t, path, s, cfg, pass)
	if got, want := Cost(path), 2+2*math.Sqrt2; math.Abs(got-want) > 1e-9 {
		t.Fatalf("cost=%v want optimal %v", got, want)
	}
}

func TestFindPath_NoCornerCutting(t *testing.T) {
	bounds, walls, s, d := parseMap(t,
		"S#",
		"#D",
	)
	pass := func(p grid.Vec2i) bool { return !walls[p] }
	if _, ok := NewCache(bounds).FindPath(pass, s, ToPoint(d)); ok {
		t.Fatalf("diagonal between two walls must be rejected")
	}

	bounds, walls, s, d = parseMap(t,
		"S#.",
		"..D",
	)
	pass = func(p grid.Vec2i) bool { return !walls[p] }
	path, ok := NewCache(bounds).FindPath(pass, s, ToPoint(d))
	if !ok {
		t.Fatalf("expected detour path")
	}
	checkPath(t, path, s, ToPoint(d), pass)
	if path[1] != (grid.Vec2i{X: 0, Y: 1}) {
		t.Fatalf("first step should go around the wall, got %v", path[1])
	}
}

func TestFindPath_NoPath(t *testing.T) {
	bounds, walls, s, d := parseMap(t,
		"S.#..",
		"..#..",
		"###.D",
	)
	pass := func(p grid.Vec2i) bool { return !walls[p] }
	if path, ok := NewCache(bounds).FindPath(pass, s, ToPoint(d)); ok {
		t.Fatalf("expected no path, got %v", path)
	}
}

func TestFindPath_StartSatisfiesAndStartInsideWall(t *testing.T) {
	bounds := grid.RectAt(grid.Vec2i{}, 4, 4)
	c := NewCache(bounds)
	p := grid.Vec2i{X: 1, Y: 1}
	path, ok := c.FindPath(func(grid.Vec2i) bool { return true }, p, ToPoint(p))
	if !ok || len(path) != 1 || path[0] != p {
		t.Fatalf("start on destination should yield single-cell path: %v %v", path, ok)
	}

	wall := grid.Cell(p)
	pass := func(q grid.Vec2i) bool { return !wall.Contains(q) }
	path, ok = c.FindPath(pass, p, Vacate(wall))
	if !ok || len(path) != 2 {
		t.Fatalf("expected one-step vacate path, got %v %v", path, ok)
	}
	checkPath(t, path, p, Vacate(wall), func(q grid.Vec2i) bool { return q == p || pass(q) })
}

func TestFindPath_AdjacentAndArea(t *testing.T) {
	bounds, walls, s, _ := parseMap(t,
		"S.....",
		"......",
		"...##.",
		"...##.",
	)
	pass := func(p grid.Vec2i) bool { return !walls[p] }
	rock := grid.RectAt(grid.Vec2i{X: 3, Y: 2}, 2, 2)
	c := NewCache(bounds)

	cfg := Adjacent(rock)
	path, ok := c.FindPath(pass, s, cfg)
	if !ok {
		t.Fatalf("expected adjacency path")
	}
	checkPath(t, path, s, cfg, pass)
	end := path[len(path)-1]
	if rock.Contains(end) || grid.DistToRect(end, rock) > math.Sqrt2 {
		t.Fatalf("adjacent end %v not touching %v", end, rock)
	}

	area := grid.RectAt(grid.Vec2i{X: 5, Y: 0}, 1, 4)
	cfg = InArea(area)
	path, ok = c.FindPath(pass, s, cfg)
	if !ok {
		t.Fatalf("expected area path")
	}
	checkPath(t, path, s, cfg, pass)
}

func TestFindPath_OutOfBoundsStart(t *testing.T) {
	c := NewCache(grid.RectAt(grid.Vec2i{}, 3, 3))
	if _, ok := c.FindPath(nil, grid.Vec2i{X: 9, Y: 9}, ToPoint(grid.Vec2i{})); ok {
		t.Fatalf("start outside bounds must fail")
	}
}

// bfsCost is a reference uniform-cost search used to check optimality.
func bfsCost(bounds grid.Rect, pass Passable, start, dst grid.Vec2i) (float64, bool) {
	dist := map[grid.Vec2i]float64{start: 0}
	done := map[grid.Vec2i]bool{}
	for {
		best, found := grid.Vec2i{}, false
		for p, d := range dist {
			if done[p] {
				continue
			}
			if !found || d < dist[best] || (d == dist[best] && (p.Y < best.Y || (p.Y == best.Y && p.X < best.X))) {
				best, found = p, true
			}
		}
		if !found {
			return 0, false
		}
		if best == dst {
			return dist[best], true
		}
		done[best] = true
		for _, d := range grid.Neighbors8 {
			np := best.Add(d)
			if !bounds.Contains(np) || !pass(np) {
				continue
			}
			step := 1.0
			if grid.Diagonal(d) {
				if !pass(grid.Vec2i{X: best.X + d.X, Y: best.Y}) || !pass(grid.Vec2i{X: best.X, Y: best.Y + d.Y}) {
					continue
				}
				step = math.Sqrt2
			}
			if old, ok := dist[np]; !ok || dist[best]+step < old {
				dist[np] = dist[best] + step
			}
		}
	}
}

func TestFindPath_RandomMapsMatchReference(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	bounds := grid.RectAt(grid.Vec2i{}, 12, 9)
	c := NewCache(bounds)
	for round := 0; round < 40; round++ {
		walls := map[grid.Vec2i]bool{}
		bounds.Each(func(p grid.Vec2i) {
			if rng.Intn(100) < 28 {
				walls[p] = true
			}
		})
		start := grid.Vec2i{X: rng.Intn(12), Y: rng.Intn(9)}
		dst := grid.Vec2i{X: rng.Intn(12), Y: rng.Intn(9)}
		delete(walls, start)
		delete(walls, dst)
		pass := func(p grid.Vec2i) bool { return !walls[p] }

		path, ok := c.FindPath(pass, start, ToPoint(dst))
		want, wantOK := bfsCost(bounds, pass, start, dst)
		if ok != wantOK {
			t.Fatalf("round %d: reachability mismatch astar=%v reference=%v\n%s", round, ok, wantOK, render(bounds, walls))
		}
		if !ok {
			continue
		}
		checkPath(t, path, start, ToPoint(dst), pass)
		if got := Cost(path); math.Abs(got-want) > 1e-9 {
			t.Fatalf("round %d: cost=%v want %v", round, got, want)
		}
	}
}

func TestCacheReuseIsDeterministic(t *testing.T) {
	bounds := grid.RectAt(grid.Vec2i{}, 8, 8)
	c := NewCache(bounds)
	pass := func(grid.Vec2i) bool { return true }
	a, _ := c.FindPath(pass, grid.Vec2i{}, ToPoint(grid.Vec2i{X: 7, Y: 3}))
	for i := 0; i < 5; i++ {
		_, _ = c.FindPath(pass, grid.Vec2i{X: 7, Y: 7}, ToPoint(grid.Vec2i{X: 1, Y: 0}))
	}
	b, _ := c.FindPath(pass, grid.Vec2i{}, ToPoint(grid.Vec2i{X: 7, Y: 3}))
	if len(a) != len(b) {
		t.Fatalf("path length changed across reuse: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("path changed across reuse at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func render(bounds grid.Rect, walls map[grid.Vec2i]bool) string {
	var sb strings.Builder
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if walls[grid.Vec2i{X: x, Y: y}] {
				sb.WriteByte('#')
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
