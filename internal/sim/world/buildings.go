package world

import (
	"fmt"

	"colonysim/internal/sim/catalogs"
	"colonysim/internal/sim/grid"
)

type Building struct {
	ID     uint64
	Def    catalogs.BuildingDef
	Bounds grid.Rect

	removed bool
}

func (b *Building) Pos() grid.Vec2i { return b.Bounds.Min }
func (b *Building) Removed() bool   { return b == nil || b.removed }

func (b *Building) String() string {
	return fmt.Sprintf("%s#%d@%v", b.Def.ID, b.ID, b.Bounds.Min)
}

func (w *World) Building(id uint64) *Building { return w.buildings[id] }

func (w *World) BuildingAt(p grid.Vec2i) *Building {
	if !w.ValidTile(p) {
		return nil
	}
	return w.cells[w.idx(p)]
}

// Buildings lists live buildings in creation order.
func (w *World) Buildings() []*Building { return sortedByID(w.buildings) }

// Footprint is the rect a def would cover when placed at origin.
func Footprint(def catalogs.BuildingDef, origin grid.Vec2i) grid.Rect {
	fw, fh := def.Footprint()
	return grid.RectAt(origin, fw, fh)
}

// CanPlace reports whether every cell of r is ground with no building on it,
// ignoring the building `except` (for replacement).
func (w *World) CanPlace(r grid.Rect, except *Building) bool {
	if r.Empty() || r.Min.X < w.bounds.Min.X || r.Min.Y < w.bounds.Min.Y || r.Max.X > w.bounds.Max.X || r.Max.Y > w.bounds.Max.Y {
		return false
	}
	ok := true
	r.Each(func(p grid.Vec2i) {
		i := w.idx(p)
		if w.terrain[i] != TerrainGround {
			ok = false
		}
		if b := w.cells[i]; b != nil && b != except {
			ok = false
		}
	})
	return ok
}

func (w *World) PlaceBuilding(def catalogs.BuildingDef, origin grid.Vec2i) (*Building, error) {
	r := Footprint(def, origin)
	if !w.CanPlace(r, nil) {
		return nil, fmt.Errorf("world: cannot place %s at %v", def.ID, r)
	}
	b := &Building{ID: w.newID(), Def: def, Bounds: r}
	w.insertBuilding(b)
	return b, nil
}

func (w *World) insertBuilding(b *Building) {
	w.buildings[b.ID] = b
	b.Bounds.Each(func(p grid.Vec2i) { w.cells[w.idx(p)] = b })
	w.notifyBuildingAdded(b)
	if !b.Def.Passable {
		w.notifyPassability(b.Bounds)
	}
}

func (w *World) RemoveBuilding(b *Building) {
	if b.Removed() || w.buildings[b.ID] != b {
		return
	}
	delete(w.buildings, b.ID)
	b.Bounds.Each(func(p grid.Vec2i) {
		if w.cells[w.idx(p)] == b {
			w.cells[w.idx(p)] = nil
		}
	})
	b.removed = true
	w.notifyBuildingRemoved(b)
	if !b.Def.Passable {
		w.notifyPassability(b.Bounds)
	}
}

// ReplaceBuilding swaps old for a building of def at the same origin.
func (w *World) ReplaceBuilding(old *Building, def catalogs.BuildingDef) (*Building, error) {
	if old.Removed() {
		return nil, fmt.Errorf("world: replace of removed building %v", old)
	}
	r := Footprint(def, old.Pos())
	if !w.CanPlace(r, old) {
		return nil, fmt.Errorf("world: cannot replace %v with %s", old, def.ID)
	}
	w.RemoveBuilding(old)
	b := &Building{ID: w.newID(), Def: def, Bounds: r}
	w.insertBuilding(b)
	return b, nil
}
