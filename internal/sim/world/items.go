package world

import (
	"fmt"

	"colonysim/internal/sim/catalogs"
	"colonysim/internal/sim/grid"
)

// Item is a stack of one item def. On the floor it belongs to the world; once
// taken it is detached (carried or consumed) until put back.
type Item struct {
	ID     uint64
	Def    catalogs.ItemDef
	Pos    grid.Vec2i
	Amount int
	// Reserved units are promised to in-flight work and not claimable.
	Reserved int

	world *World
}

func (it *Item) Available() int {
	if it == nil || it.world == nil {
		return 0
	}
	if n := it.Amount - it.Reserved; n > 0 {
		return n
	}
	return 0
}

func (it *Item) OnFloor() bool { return it != nil && it.world != nil }

func (it *Item) String() string {
	return fmt.Sprintf("%s#%d x%d@%v", it.Def.ID, it.ID, it.Amount, it.Pos)
}

func (w *World) Item(id uint64) *Item { return w.items[id] }

// Items lists floor stacks in creation order.
func (w *World) Items() []*Item { return sortedByID(w.items) }

func (w *World) ItemsAt(p grid.Vec2i) []*Item {
	return append([]*Item(nil), w.itemsAt[p]...)
}

// DropItem creates new floor stacks of n units at p, splitting by max stack.
func (w *World) DropItem(id string, p grid.Vec2i, n int) ([]*Item, error) {
	def, ok := w.cats.Item(id)
	if !ok {
		return nil, fmt.Errorf("world: unknown item %s", id)
	}
	if !w.ValidTile(p) {
		return nil, fmt.Errorf("world: drop outside map at %v", p)
	}
	var out []*Item
	for n > 0 {
		take := n
		if def.MaxStack > 0 && take > def.MaxStack {
			take = def.MaxStack
		}
		it := &Item{ID: w.newID(), Def: def, Amount: take}
		w.PutItem(it, p)
		out = append(out, it)
		n -= take
	}
	return out, nil
}

// PutItem places a detached stack on the floor at p.
func (w *World) PutItem(it *Item, p grid.Vec2i) {
	if it == nil || it.Amount <= 0 || it.world != nil {
		return
	}
	if it.ID == 0 {
		it.ID = w.newID()
	}
	it.Pos = p
	it.Reserved = 0
	it.world = w
	w.items[it.ID] = it
	w.itemsAt[p] = append(w.itemsAt[p], it)
	w.notifyItemAdded(it)
}

// TakeItem removes up to n units from a floor stack and returns them as a
// detached stack. Taking the whole stack detaches the stack itself.
func (w *World) TakeItem(it *Item, n int) *Item {
	if !it.OnFloor() || it.world != w || n <= 0 {
		return nil
	}
	if n >= it.Amount {
		w.detach(it)
		return it
	}
	it.Amount -= n
	if it.Reserved > it.Amount {
		it.Reserved = it.Amount
	}
	w.notifyItemChanged(it)
	return &Item{ID: w.newID(), Def: it.Def, Pos: it.Pos, Amount: n}
}

// RemoveItem destroys a floor stack.
func (w *World) RemoveItem(it *Item) {
	if !it.OnFloor() || it.world != w {
		return
	}
	w.detach(it)
}

func (w *World) detach(it *Item) {
	delete(w.items, it.ID)
	at := w.itemsAt[it.Pos]
	for i, x := range at {
		if x == it {
			at = append(at[:i], at[i+1:]...)
			break
		}
	}
	if len(at) == 0 {
		delete(w.itemsAt, it.Pos)
	} else {
		w.itemsAt[it.Pos] = at
	}
	it.world = nil
	it.Reserved = 0
	w.notifyItemRemoved(it)
}

// Reserve marks n available units as promised. It fails without side effects
// when fewer than n are available.
func (it *Item) Reserve(n int) bool {
	if n <= 0 || !it.OnFloor() || it.Available() < n {
		return false
	}
	it.Reserved += n
	it.world.notifyItemChanged(it)
	return true
}

// Unreserve returns n promised units; stacks that left the floor are ignored.
func (it *Item) Unreserve(n int) {
	if n <= 0 || !it.OnFloor() {
		return
	}
	it.Reserved -= n
	if it.Reserved < 0 {
		it.Reserved = 0
	}
	it.world.notifyItemChanged(it)
}
