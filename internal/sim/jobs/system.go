package jobs

import (
	"log"

	"colonysim/internal/sim/grid"
	"colonysim/internal/sim/tuning"
	"colonysim/internal/sim/work"
	"colonysim/internal/sim/world"
)

// System is a keyed registry of jobs of one kind.
type System interface {
	Name() string
	// QueryWork offers each dispatchable Work for a, in job insertion order,
	// until yield returns false. It reports whether yield asked for more.
	QueryWork(a *work.Agent, yield func(w *work.Work) bool) bool
}

// Job is a long-lived declaration of labor.
type Job interface {
	work.Owner
	Name() string
	ActiveWork() *work.Work
	Closed() bool
	// Cancel ends the job: the active Work is canceled, anything the job
	// itself holds is returned and the job leaves its system.
	Cancel()
}

// Orders is the selection-facing view of a system: whether an order makes
// sense over a region, and placing it.
type Orders interface {
	Applicable(r grid.Rect) bool
	Order(r grid.Rect) bool
}

// Env is what job systems need from the colony.
type Env struct {
	World  *world.World
	Tuning tuning.Tuning
	// Occupants lists agents standing inside r.
	Occupants func(r grid.Rect) []*work.Agent
	Logger    *log.Logger
}

func (e *Env) occupants(r grid.Rect) []*work.Agent {
	if e.Occupants == nil {
		return nil
	}
	return e.Occupants(r)
}

// Registry keeps jobs by key in insertion order.
type Registry[K comparable, J any] struct {
	order []K
	byKey map[K]J
}

func NewRegistry[K comparable, J any]() *Registry[K, J] {
	return &Registry[K, J]{byKey: map[K]J{}}
}

func (r *Registry[K, J]) Add(k K, j J) bool {
	if _, ok := r.byKey[k]; ok {
		return false
	}
	r.byKey[k] = j
	r.order = append(r.order, k)
	return true
}

func (r *Registry[K, J]) Get(k K) (J, bool) {
	j, ok := r.byKey[k]
	return j, ok
}

func (r *Registry[K, J]) Remove(k K) bool {
	if _, ok := r.byKey[k]; !ok {
		return false
	}
	delete(r.byKey, k)
	for i, x := range r.order {
		if x == k {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *Registry[K, J]) Len() int { return len(r.order) }

// Each visits jobs in insertion order until fn returns false. Jobs removed
// during the walk are skipped.
func (r *Registry[K, J]) Each(fn func(k K, j J) bool) {
	for _, k := range append([]K(nil), r.order...) {
		j, ok := r.byKey[k]
		if !ok {
			continue
		}
		if !fn(k, j) {
			return
		}
	}
}

// Jobs lists jobs in insertion order.
func (r *Registry[K, J]) Jobs() []J {
	out := make([]J, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.byKey[k])
	}
	return out
}

// drop puts n units of item at p. Failures are logged; the units are lost.
func (e *Env) drop(item string, p grid.Vec2i, n int) {
	if n <= 0 {
		return
	}
	if _, err := e.World.DropItem(item, p, n); err != nil && e.Logger != nil {
		e.Logger.Printf("drop %s x%d at %v: %v", item, n, p, err)
	}
}

// dropNear puts n units of item on the first passable cell around r,
// falling back to r's origin.
func (e *Env) dropNear(r grid.Rect, item string, n int) {
	if n <= 0 {
		return
	}
	at := r.Min
	found := false
	r.Expand(1).Each(func(p grid.Vec2i) {
		if !found && !r.Contains(p) && e.World.Passable(p) {
			at, found = p, true
		}
	})
	e.drop(item, at, n)
}
