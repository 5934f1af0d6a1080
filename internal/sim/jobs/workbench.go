package jobs

import (
	"fmt"

	"colonysim/internal/sim/catalogs"
	"colonysim/internal/sim/grid"
	"colonysim/internal/sim/haul"
	"colonysim/internal/sim/nav"
	"colonysim/internal/sim/tasks"
	"colonysim/internal/sim/work"
	"colonysim/internal/sim/world"
)

// Workbench runs order queues on crafting benches, one job per bench.
type Workbench struct {
	env       *Env
	jobs      *Registry[uint64, *BenchJob]
	nextOrder uint64
	unsub     func()
}

func NewWorkbench(env *Env) *Workbench {
	s := &Workbench{env: env, jobs: NewRegistry[uint64, *BenchJob]()}
	s.unsub = env.World.SubscribeBuildings(s)
	return s
}

func (s *Workbench) Name() string { return "workbench" }

func (s *Workbench) Close() {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
	for _, j := range s.jobs.Jobs() {
		for _, o := range j.orders {
			o.closeProviders()
		}
	}
}

func (s *Workbench) Jobs() []*BenchJob { return s.jobs.Jobs() }

func (s *Workbench) Job(bench *world.Building) (*BenchJob, bool) { return s.jobs.Get(bench.ID) }

// AddOrder queues quantity runs of recipeID on bench.
func (s *Workbench) AddOrder(bench *world.Building, recipeID string, quantity int) (*CraftOrder, error) {
	if bench.Removed() || !bench.Def.Workbench {
		return nil, fmt.Errorf("workbench: %v is not a workbench", bench)
	}
	r, ok := s.env.World.Catalogs().Recipe(recipeID)
	if !ok {
		return nil, fmt.Errorf("workbench: unknown recipe %s", recipeID)
	}
	if r.Bench != bench.Def.ID {
		return nil, fmt.Errorf("workbench: %s is not made at %s", recipeID, bench.Def.ID)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("workbench: quantity must be > 0")
	}
	j, ok := s.jobs.Get(bench.ID)
	if !ok {
		j = &BenchJob{sys: s, Bench: bench}
		id := bench.ID
		j.init(fmt.Sprintf("bench %v", bench), func() { s.jobs.Remove(id) }, nil)
		s.jobs.Add(id, j)
	} else {
		// A Work that emptied the queue may still be winding down.
		j.done = false
	}
	s.nextOrder++
	o := &CraftOrder{ID: s.nextOrder, Recipe: r, Quantity: quantity, Progress: r.Work}
	dest := nav.Adjacent(bench.Bounds)
	for _, in := range r.Inputs {
		st := &haul.Stock{Item: in.Item, Need: in.Count}
		o.Stocks = append(o.Stocks, st)
		o.providers = append(o.providers, haul.NewProvider(s.env.World, st, dest, s.env.Tuning.Haul))
	}
	j.orders = append(j.orders, o)
	return o, nil
}

// CancelOrder drops an order, refunding its stored inputs beside the bench.
func (s *Workbench) CancelOrder(bench *world.Building, id uint64) bool {
	j, ok := s.jobs.Get(bench.ID)
	if !ok {
		return false
	}
	return j.CancelOrder(id)
}

// Orders is the order view for one recipe: any matching bench in the region
// gets quantity more runs.
func (s *Workbench) Orders(recipeID string, quantity int) Orders {
	return benchOrders{s: s, recipe: recipeID, quantity: quantity}
}

type benchOrders struct {
	s        *Workbench
	recipe   string
	quantity int
}

func (o benchOrders) benches(r grid.Rect) []*world.Building {
	rec, ok := o.s.env.World.Catalogs().Recipe(o.recipe)
	if !ok {
		return nil
	}
	var out []*world.Building
	for _, b := range o.s.env.World.Buildings() {
		if b.Def.Workbench && b.Def.ID == rec.Bench && b.Bounds.Intersects(r) {
			out = append(out, b)
		}
	}
	return out
}

func (o benchOrders) Applicable(r grid.Rect) bool { return len(o.benches(r)) > 0 }

func (o benchOrders) Order(r grid.Rect) bool {
	added := false
	for _, b := range o.benches(r) {
		if _, err := o.s.AddOrder(b, o.recipe, o.quantity); err == nil {
			added = true
		}
	}
	return added
}

func (s *Workbench) QueryWork(a *work.Agent, yield func(*work.Work) bool) bool {
	more := true
	s.jobs.Each(func(_ uint64, j *BenchJob) bool {
		if w := j.offer(a); w != nil {
			more = yield(w)
		}
		return more
	})
	return more
}

func (s *Workbench) BuildingAdded(*world.Building) {}

func (s *Workbench) BuildingRemoved(b *world.Building) {
	if j, ok := s.jobs.Get(b.ID); ok {
		j.Cancel()
	}
}

// CraftOrder is Quantity runs of one recipe. Progress is the work left on
// the current run; Stocks count the inputs of the current run.
type CraftOrder struct {
	ID       uint64
	Recipe   catalogs.RecipeDef
	Quantity int
	Crafted  int
	Progress float64

	Stocks    []*haul.Stock
	providers []*haul.Provider
}

func (o *CraftOrder) Stocked() bool {
	for _, st := range o.Stocks {
		if !st.Full() {
			return false
		}
	}
	return true
}

// Ready reports whether every input is stored, on its way or lying around
// to be hauled.
func (o *CraftOrder) Ready() bool {
	for i, st := range o.Stocks {
		if st.Stored+st.Claimed+o.providers[i].Query.TotalAvailable() < st.Need {
			return false
		}
	}
	return true
}

func (o *CraftOrder) closeProviders() {
	for _, p := range o.providers {
		p.Close()
	}
}

type BenchJob struct {
	Standard
	sys    *Workbench
	Bench  *world.Building
	orders []*CraftOrder
	// Order the active Work serves.
	serving *CraftOrder
}

func (j *BenchJob) Orders() []*CraftOrder { return append([]*CraftOrder(nil), j.orders...) }

// offer serves the first ready order only: a haul for its next missing
// input, or the crafting run once everything is stored.
func (j *BenchJob) offer(a *work.Agent) *work.Work {
	if j.Busy() {
		return nil
	}
	dest := nav.Adjacent(j.Bench.Bounds)
	if !j.sys.env.World.Reachable(a.Cell, dest) {
		return nil
	}
	for _, o := range j.orders {
		if !o.Ready() {
			continue
		}
		j.serving = o
		if !o.Stocked() {
			for _, p := range o.providers {
				if p.Stock.Remaining() > 0 && p.Ready(a) {
					return j.Standard.offer(j, fmt.Sprintf("haul %s for %s", p.Stock.Item, o.Recipe.ID), p.Sequence())
				}
			}
			return nil
		}
		return j.Standard.offer(j, fmt.Sprintf("craft %s at %v", o.Recipe.ID, j.Bench), work.Steps(
			func() work.Task { return tasks.GoTo(dest) },
			func() work.Task {
				return tasks.Labor(&o.Progress, j.Bench.Bounds, work.ToolSaw, func(*work.Work) { j.crafted(o) })
			},
		))
	}
	return nil
}

func (j *BenchJob) crafted(o *CraftOrder) {
	for _, st := range o.Stocks {
		st.Stored -= st.Need
		if st.Stored < 0 {
			st.Stored = 0
		}
	}
	for _, out := range o.Recipe.Outputs {
		j.sys.env.dropNear(j.Bench.Bounds, out.Item, out.Count)
	}
	o.Crafted++
	o.Progress = o.Recipe.Work
	if o.Crafted >= o.Quantity {
		j.removeOrder(o)
	}
}

func (j *BenchJob) removeOrder(o *CraftOrder) {
	for i, x := range j.orders {
		if x == o {
			j.orders = append(j.orders[:i:i], j.orders[i+1:]...)
			break
		}
	}
	o.closeProviders()
	if len(j.orders) > 0 {
		return
	}
	// An empty queue ends the job; a running Work closes it when it ends.
	if j.active != nil {
		j.finish()
	} else {
		j.close()
	}
}

// CancelOrder removes an order; a Work serving it is canceled first.
func (j *BenchJob) CancelOrder(id uint64) bool {
	for _, o := range j.orders {
		if o.ID != id {
			continue
		}
		if j.active != nil && j.serving == o {
			j.active.Cancel()
		}
		j.refund(o)
		j.removeOrder(o)
		return true
	}
	return false
}

func (j *BenchJob) refund(o *CraftOrder) {
	for _, st := range o.Stocks {
		j.sys.env.dropNear(j.Bench.Bounds, st.Item, st.Stored)
		st.Stored = 0
	}
}

func (j *BenchJob) WorkEnded(w *work.Work, o work.Outcome) { j.ended(w, o) }

// Cancel drops every order and refunds their inputs.
func (j *BenchJob) Cancel() {
	if j.Closed() {
		return
	}
	j.cancel()
	for _, o := range j.Orders() {
		j.refund(o)
		j.removeOrder(o)
	}
}
