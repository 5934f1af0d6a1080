package world

import "colonysim/internal/sim/grid"

type ItemListener interface {
	ItemAdded(it *Item)
	ItemChanged(it *Item)
	ItemRemoved(it *Item)
}

type BuildingListener interface {
	BuildingAdded(b *Building)
	BuildingRemoved(b *Building)
}

// PassabilityListener receives the region whose passability may have changed.
type PassabilityListener func(region grid.Rect)

type subscription struct {
	id        int
	items     ItemListener
	buildings BuildingListener
	pass      PassabilityListener
	dead      bool
}

func (w *World) subscribe(s *subscription) func() {
	w.nextSub++
	s.id = w.nextSub
	w.subs = append(w.subs, s)
	return func() {
		for i, x := range w.subs {
			if x.id == s.id {
				s.dead = true
				w.subs = append(w.subs[:i:i], w.subs[i+1:]...)
				return
			}
		}
	}
}

// SubscribeItems registers l for floor item notifications and returns the unsubscribe func.
func (w *World) SubscribeItems(l ItemListener) func() {
	return w.subscribe(&subscription{items: l})
}

func (w *World) SubscribeBuildings(l BuildingListener) func() {
	return w.subscribe(&subscription{buildings: l})
}

func (w *World) SubscribePassability(l PassabilityListener) func() {
	return w.subscribe(&subscription{pass: l})
}

// snapshot lets listeners (un)subscribe while being notified.
func (w *World) snapshot() []*subscription {
	return append([]*subscription(nil), w.subs...)
}

func (w *World) notifyItemAdded(it *Item) {
	for _, s := range w.snapshot() {
		if !s.dead && s.items != nil {
			s.items.ItemAdded(it)
		}
	}
}

func (w *World) notifyItemChanged(it *Item) {
	for _, s := range w.snapshot() {
		if !s.dead && s.items != nil {
			s.items.ItemChanged(it)
		}
	}
}

func (w *World) notifyItemRemoved(it *Item) {
	for _, s := range w.snapshot() {
		if !s.dead && s.items != nil {
			s.items.ItemRemoved(it)
		}
	}
}

func (w *World) notifyBuildingAdded(b *Building) {
	for _, s := range w.snapshot() {
		if !s.dead && s.buildings != nil {
			s.buildings.BuildingAdded(b)
		}
	}
}

func (w *World) notifyBuildingRemoved(b *Building) {
	for _, s := range w.snapshot() {
		if !s.dead && s.buildings != nil {
			s.buildings.BuildingRemoved(b)
		}
	}
}

func (w *World) notifyPassability(r grid.Rect) {
	for _, s := range w.snapshot() {
		if !s.dead && s.pass != nil {
			s.pass(r)
		}
	}
}
