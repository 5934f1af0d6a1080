package jobs

import (
	"fmt"
	"math"

	"colonysim/internal/sim/catalogs"
	"colonysim/internal/sim/grid"
	"colonysim/internal/sim/nav"
	"colonysim/internal/sim/tasks"
	"colonysim/internal/sim/work"
	"colonysim/internal/sim/world"
)

// Demolition removes designated buildings after a timed labor step. Mining
// and deconstruction are both demolitions; they differ in which buildings
// they accept, how much work a building takes and what it leaves behind.
type Demolition struct {
	name   string
	env    *Env
	tool   work.Tool
	target func(def catalogs.BuildingDef) bool
	amount func(def catalogs.BuildingDef) float64
	drops  func(def catalogs.BuildingDef) []catalogs.ItemCount

	jobs  *Registry[uint64, *DemolishJob]
	unsub func()
}

// NewMining designates minable natural buildings. Finished jobs drop the
// building's configured items on its tile.
func NewMining(env *Env) *Demolition {
	return newDemolition("mining", env, work.ToolPick,
		func(d catalogs.BuildingDef) bool { return d.Minable },
		func(d catalogs.BuildingDef) float64 { return d.MineAmount },
		func(d catalogs.BuildingDef) []catalogs.ItemCount { return d.Drops },
	)
}

// NewDeconstruct designates constructed buildings and refunds part of their
// materials.
func NewDeconstruct(env *Env) *Demolition {
	b := env.Tuning.Build
	return newDemolition("deconstruct", env, work.ToolHammer,
		func(d catalogs.BuildingDef) bool { return d.Buildable },
		func(d catalogs.BuildingDef) float64 { return d.BuildWork * b.DeconstructWorkScale },
		func(d catalogs.BuildingDef) []catalogs.ItemCount {
			out := make([]catalogs.ItemCount, 0, len(d.Materials))
			for _, m := range d.Materials {
				out = append(out, catalogs.ItemCount{Item: m.Item, Count: int(math.Floor(float64(m.Count) * b.RefundRatio))})
			}
			return out
		},
	)
}

func newDemolition(name string, env *Env, tool work.Tool, target func(catalogs.BuildingDef) bool, amount func(catalogs.BuildingDef) float64, drops func(catalogs.BuildingDef) []catalogs.ItemCount) *Demolition {
	s := &Demolition{
		name:   name,
		env:    env,
		tool:   tool,
		target: target,
		amount: amount,
		drops:  drops,
		jobs:   NewRegistry[uint64, *DemolishJob](),
	}
	s.unsub = env.World.SubscribeBuildings(s)
	return s
}

func (s *Demolition) Name() string { return s.name }

func (s *Demolition) Close() {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
}

func (s *Demolition) Jobs() []*DemolishJob { return s.jobs.Jobs() }

func (s *Demolition) Job(b *world.Building) (*DemolishJob, bool) {
	return s.jobs.Get(b.ID)
}

func (s *Demolition) candidates(r grid.Rect) []*world.Building {
	var out []*world.Building
	for _, b := range s.env.World.Buildings() {
		if !b.Bounds.Intersects(r) || !s.target(b.Def) {
			continue
		}
		if _, ok := s.jobs.Get(b.ID); ok {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Applicable reports whether r covers a building this system could take on.
func (s *Demolition) Applicable(r grid.Rect) bool { return len(s.candidates(r)) > 0 }

// Order designates every eligible building touching r.
func (s *Demolition) Order(r grid.Rect) bool {
	added := false
	for _, b := range s.candidates(r) {
		if _, err := s.Designate(b); err == nil {
			added = true
		}
	}
	return added
}

func (s *Demolition) Designate(b *world.Building) (*DemolishJob, error) {
	if b.Removed() {
		return nil, fmt.Errorf("%s: %v is gone", s.name, b)
	}
	if !s.target(b.Def) {
		return nil, fmt.Errorf("%s: %s cannot be designated", s.name, b.Def.ID)
	}
	if j, ok := s.jobs.Get(b.ID); ok {
		return j, fmt.Errorf("%s: %v already designated", s.name, b)
	}
	j := &DemolishJob{sys: s, Building: b, Remaining: s.amount(b.Def)}
	id := b.ID
	j.init(fmt.Sprintf("%s %v", s.name, b), func() { s.jobs.Remove(id) }, nil)
	s.jobs.Add(id, j)
	return j, nil
}

func (s *Demolition) QueryWork(a *work.Agent, yield func(*work.Work) bool) bool {
	more := true
	s.jobs.Each(func(_ uint64, j *DemolishJob) bool {
		if w := j.offer(a); w != nil {
			more = yield(w)
		}
		return more
	})
	return more
}

func (s *Demolition) BuildingAdded(*world.Building) {}

// BuildingRemoved cancels the job of a building that vanished under it.
func (s *Demolition) BuildingRemoved(b *world.Building) {
	if j, ok := s.jobs.Get(b.ID); ok && !j.Done() {
		j.Cancel()
	}
}

// DemolishJob works one building down; Remaining is shared by every attempt.
type DemolishJob struct {
	Standard
	sys       *Demolition
	Building  *world.Building
	Remaining float64
}

func (j *DemolishJob) offer(a *work.Agent) *work.Work {
	b := j.Building
	if j.Busy() || b.Removed() {
		return nil
	}
	cfg := nav.Adjacent(b.Bounds)
	if !j.sys.env.World.Reachable(a.Cell, cfg) {
		return nil
	}
	return j.Standard.offer(j, j.Name(), work.Steps(
		func() work.Task { return tasks.GoTo(cfg) },
		func() work.Task { return tasks.Labor(&j.Remaining, b.Bounds, j.sys.tool, j.demolish) },
	))
}

func (j *DemolishJob) demolish(*work.Work) {
	j.finish()
	b := j.Building
	w := j.sys.env.World
	w.RemoveBuilding(b)
	for _, d := range j.sys.drops(b.Def) {
		j.sys.env.drop(d.Item, b.Pos(), d.Count)
	}
}

func (j *DemolishJob) WorkEnded(w *work.Work, o work.Outcome) { j.ended(w, o) }

func (j *DemolishJob) Cancel() { j.cancel() }
