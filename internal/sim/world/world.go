package world

import (
	"fmt"
	"sort"

	"colonysim/internal/sim/catalogs"
	"colonysim/internal/sim/grid"
	"colonysim/internal/sim/nav"
)

type Terrain uint8

const (
	TerrainGround Terrain = iota
	TerrainWater
)

// World is the map collaborator of the work engine: tiles, buildings and floor
// items, plus change notifications. It is single-threaded like the rest of the sim.
type World struct {
	cats   *catalogs.Catalogs
	bounds grid.Rect

	terrain []Terrain
	cells   []*Building

	buildings map[uint64]*Building
	items     map[uint64]*Item
	itemsAt   map[grid.Vec2i][]*Item
	nextID    uint64

	paths *nav.Cache

	subs    []*subscription
	nextSub int
}

type Config struct {
	Width  int
	Height int
}

func New(cfg Config, cats *catalogs.Catalogs) (*World, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("world: bad size %dx%d", cfg.Width, cfg.Height)
	}
	if cats == nil {
		return nil, fmt.Errorf("world: nil catalogs")
	}
	bounds := grid.RectAt(grid.Vec2i{}, cfg.Width, cfg.Height)
	return &World{
		cats:      cats,
		bounds:    bounds,
		terrain:   make([]Terrain, bounds.Area()),
		cells:     make([]*Building, bounds.Area()),
		buildings: map[uint64]*Building{},
		items:     map[uint64]*Item{},
		itemsAt:   map[grid.Vec2i][]*Item{},
		paths:     nav.NewCache(bounds),
	}, nil
}

func (w *World) Catalogs() *catalogs.Catalogs { return w.cats }
func (w *World) Bounds() grid.Rect            { return w.bounds }

func (w *World) idx(p grid.Vec2i) int { return p.Y*w.bounds.W() + p.X }

func (w *World) newID() uint64 {
	w.nextID++
	return w.nextID
}

// ValidTile reports whether p lies on the map.
func (w *World) ValidTile(p grid.Vec2i) bool { return w.bounds.Contains(p) }

// Passable reports whether an agent may stand on p.
func (w *World) Passable(p grid.Vec2i) bool {
	if !w.ValidTile(p) {
		return false
	}
	i := w.idx(p)
	if w.terrain[i] != TerrainGround {
		return false
	}
	if b := w.cells[i]; b != nil && !b.Def.Passable {
		return false
	}
	return true
}

func (w *World) TerrainAt(p grid.Vec2i) Terrain {
	if !w.ValidTile(p) {
		return TerrainWater
	}
	return w.terrain[w.idx(p)]
}

func (w *World) SetTerrain(p grid.Vec2i, t Terrain) {
	if !w.ValidTile(p) {
		return
	}
	i := w.idx(p)
	if w.terrain[i] == t {
		return
	}
	w.terrain[i] = t
	w.notifyPassability(grid.Cell(p))
}

// FindPath searches with the world's shared path cache.
func (w *World) FindPath(start grid.Vec2i, cfg nav.PathCfg) ([]grid.Vec2i, bool) {
	return w.paths.FindPath(w.Passable, start, cfg)
}

func (w *World) Reachable(start grid.Vec2i, cfg nav.PathCfg) bool {
	_, ok := w.FindPath(start, cfg)
	return ok
}

func sortedByID[T any](m map[uint64]T) []T {
	ids := make([]uint64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}
