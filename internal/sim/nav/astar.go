package nav

import (
	"container/heap"
	"math"

	"colonysim/internal/sim/grid"
)

// Passable reports whether an agent may stand on a cell.
type Passable func(grid.Vec2i) bool

// Cache holds the per-map A* scratch state. One Cache serves every search on
// a map; node slots are stamped with a generation so nothing is cleared between
// calls and the open queue is allocated once at map size.
//
// A Cache is not safe for concurrent use.
type Cache struct {
	bounds grid.Rect
	nodes  []node
	gen    uint32
	open   openQueue
	seq    uint64
}

type node struct {
	gen    uint32
	g      float64
	f      float64
	parent int32
	index  int32 // position in the open queue, -1 when closed
	seq    uint64
}

func NewCache(bounds grid.Rect) *Cache {
	area := bounds.Area()
	return &Cache{
		bounds: bounds,
		nodes:  make([]node, area),
		open:   openQueue{items: make([]int32, 0, area)},
	}
}

func (c *Cache) Bounds() grid.Rect { return c.bounds }

func (c *Cache) idx(p grid.Vec2i) int32 {
	return int32((p.Y-c.bounds.Min.Y)*c.bounds.W() + (p.X - c.bounds.Min.X))
}

func (c *Cache) pos(i int32) grid.Vec2i {
	w := int32(c.bounds.W())
	return grid.Vec2i{X: int(i%w) + c.bounds.Min.X, Y: int(i/w) + c.bounds.Min.Y}
}

func (c *Cache) reset() {
	c.gen++
	if c.gen == 0 {
		// Stamp wrapped: old generations would alias the new one.
		for i := range c.nodes {
			c.nodes[i].gen = 0
		}
		c.gen = 1
	}
	c.open.items = c.open.items[:0]
	c.open.nodes = c.nodes
	c.seq = 0
}

// FindPath returns the cells from start (inclusive) to the first dequeued cell
// satisfying cfg.Dst. The start cell itself is not tested for passability so an
// agent caught inside a freshly placed wall can still walk out.
//
// Diagonal steps require both orthogonal cells they cut past to be passable.
func (c *Cache) FindPath(passable Passable, start grid.Vec2i, cfg PathCfg) ([]grid.Vec2i, bool) {
	if cfg.Dst == nil || !c.bounds.Contains(start) {
		return nil, false
	}
	if cfg.Dst(start) {
		return []grid.Vec2i{start}, true
	}
	walkable := func(p grid.Vec2i) bool {
		return c.bounds.Contains(p) && (passable == nil || passable(p))
	}

	c.reset()
	si := c.idx(start)
	c.touch(si, 0, cfg.estimate(start), -1)
	heap.Push(&c.open, si)

	for c.open.Len() > 0 {
		ci := heap.Pop(&c.open).(int32)
		cur := c.pos(ci)
		if cfg.Dst(cur) {
			return c.trace(ci), true
		}
		cg := c.nodes[ci].g

		for _, d := range grid.Neighbors8 {
			np := cur.Add(d)
			if !walkable(np) {
				continue
			}
			step := 1.0
			if grid.Diagonal(d) {
				if !walkable(grid.Vec2i{X: cur.X + d.X, Y: cur.Y}) || !walkable(grid.Vec2i{X: cur.X, Y: cur.Y + d.Y}) {
					continue
				}
				step = math.Sqrt2
			}
			ng := cg + step
			ni := c.idx(np)
			n := &c.nodes[ni]
			if n.gen == c.gen {
				if n.index < 0 || ng >= n.g {
					// Closed, or no improvement.
					continue
				}
				n.g = ng
				n.f = ng + cfg.estimate(np)
				n.parent = ci
				heap.Fix(&c.open, int(n.index))
				continue
			}
			c.touch(ni, ng, ng+cfg.estimate(np), ci)
			heap.Push(&c.open, ni)
		}
	}
	return nil, false
}

func (c *Cache) touch(i int32, g, f float64, parent int32) {
	c.seq++
	c.nodes[i] = node{gen: c.gen, g: g, f: f, parent: parent, index: -1, seq: c.seq}
}

func (c *Cache) trace(end int32) []grid.Vec2i {
	n := 0
	for i := end; i >= 0; i = c.nodes[i].parent {
		n++
	}
	path := make([]grid.Vec2i, n)
	for i := end; i >= 0; i = c.nodes[i].parent {
		n--
		path[n] = c.pos(i)
	}
	return path
}

// Cost sums step costs along a path (1 orthogonal, sqrt(2) diagonal).
func Cost(path []grid.Vec2i) float64 {
	total := 0.0
	for i := 1; i < len(path); i++ {
		if grid.Diagonal(path[i].Sub(path[i-1])) {
			total += math.Sqrt2
		} else {
			total++
		}
	}
	return total
}

// openQueue is a binary heap of node indices ordered by f, then by
// discovery order so equal-cost searches are reproducible.
type openQueue struct {
	items []int32
	nodes []node
}

func (q *openQueue) Len() int { return len(q.items) }

func (q *openQueue) Less(i, j int) bool {
	a, b := &q.nodes[q.items[i]], &q.nodes[q.items[j]]
	if a.f != b.f {
		return a.f < b.f
	}
	return a.seq < b.seq
}

func (q *openQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.nodes[q.items[i]].index = int32(i)
	q.nodes[q.items[j]].index = int32(j)
}

func (q *openQueue) Push(x any) {
	i := x.(int32)
	q.nodes[i].index = int32(len(q.items))
	q.items = append(q.items, i)
}

func (q *openQueue) Pop() any {
	n := len(q.items) - 1
	i := q.items[n]
	q.items = q.items[:n]
	q.nodes[i].index = -1
	return i
}
