package haul

import (
	"colonysim/internal/sim/nav"
	"colonysim/internal/sim/tasks"
	"colonysim/internal/sim/tuning"
	"colonysim/internal/sim/work"
	"colonysim/internal/sim/world"
)

// Provider produces haul task sequences that fill one Stock from floor items
// and deliver them to Dest.
type Provider struct {
	World *world.World
	Stock *Stock
	Dest  nav.PathCfg
	Query *Query

	PickupSeconds  float64
	DropoffSeconds float64
}

func NewProvider(w *world.World, stock *Stock, dest nav.PathCfg, t tuning.HaulTuning) *Provider {
	item := stock.Item
	q := NewQuery(w,
		func(it *world.Item) bool { return it.Def.ID == item },
		dest.Heuristic,
		stock.Remaining(),
	)
	return &Provider{
		World:          w,
		Stock:          stock,
		Dest:           dest,
		Query:          q,
		PickupSeconds:  t.PickupSeconds,
		DropoffSeconds: t.DropoffSeconds,
	}
}

func (p *Provider) Close() { p.Query.Close() }

// reachableFrom accepts items the agent can walk to.
func (p *Provider) reachableFrom(a *work.Agent) func(it *world.Item) bool {
	return func(it *world.Item) bool {
		return p.World.Reachable(a.Cell, nav.ToPoint(it.Pos))
	}
}

// Ready reports whether a can start a haul right now: something is still
// needed and a reachable stack has units to claim.
func (p *Provider) Ready(a *work.Agent) bool {
	if p.Stock.Remaining() == 0 {
		return false
	}
	p.Query.SetRequested(p.Stock.Remaining())
	return p.Query.Best(p.reachableFrom(a)) != nil
}

// trip is the state one haul threads through its tasks.
type trip struct {
	p      *Provider
	item   *work.ItemClaim
	quota  *QuotaClaim
	carry  *work.LambdaClaim
	stored int
}

// Sequence returns the tasks of one haul. Later tasks are built from what the
// claim tasks found.
func (p *Provider) Sequence() work.Generator {
	h := &trip{p: p}
	return work.Steps(
		func() work.Task { return tasks.ClaimWith(h.claimItem) },
		func() work.Task { return tasks.ClaimWith(h.claimQuota) },
		func() work.Task { return tasks.GoTo(nav.ToPoint(h.item.Item.Pos)) },
		func() work.Task { return tasks.Wait(p.PickupSeconds) },
		func() work.Task { return tasks.Do(h.pickUp) },
		func() work.Task { return tasks.GoTo(p.Dest) },
		func() work.Task { return tasks.Wait(p.DropoffSeconds) },
		func() work.Task { return tasks.Do(h.dropOff) },
	)
}

func (h *trip) claimItem(w *work.Work) bool {
	want := h.p.Stock.Remaining()
	if want == 0 {
		return false
	}
	q := h.p.Query
	q.SetRequested(want)
	it := q.Best(h.p.reachableFrom(w.Agent()))
	if it == nil {
		return false
	}
	n := it.Available()
	if want < n {
		n = want
	}
	c, ok := w.ClaimItem(it, n)
	h.item = c
	return ok
}

func (h *trip) claimQuota(w *work.Work) bool {
	n := h.item.Amount
	if r := h.p.Stock.Remaining(); r < n {
		n = r
	}
	c, ok := h.p.Stock.ClaimQuota(w, n)
	h.quota = c
	return ok
}

func (h *trip) pickUp(w *work.Work) bool {
	a := w.Agent()
	it := h.item.Item
	if !it.OnFloor() {
		return false
	}
	n := h.item.Amount
	w.Unclaim(h.item)
	if h.quota.Amount < n {
		n = h.quota.Amount
	}
	if it.Amount < n {
		n = it.Amount
	}
	if a.Carrying != nil {
		a.Drop()
	}
	carried := h.p.World.TakeItem(it, n)
	if carried == nil {
		return false
	}
	a.Carrying = carried
	h.carry, _ = w.ClaimLambda("carry", nil, a.Drop)
	return true
}

// dropOff stores what the stock still needs; the rest goes back on the floor
// as its own stack.
func (h *trip) dropOff(w *work.Work) bool {
	a := w.Agent()
	c := a.Carrying
	if c == nil {
		return false
	}
	s := h.p.Stock
	n := c.Amount
	if h.quota.Amount < n {
		n = h.quota.Amount
	}
	if m := s.Missing(); m < n {
		n = m
	}
	s.Stored += n
	h.stored = n
	a.Carrying = nil
	if rest := c.Amount - n; rest > 0 {
		c.Amount = rest
		h.p.World.PutItem(c, a.Cell)
	}
	w.Unclaim(h.carry)
	w.Unclaim(h.quota.Claim)
	return true
}
