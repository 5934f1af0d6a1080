package jobs

import (
	"fmt"

	"colonysim/internal/protocol"
	"colonysim/internal/sim/catalogs"
	"colonysim/internal/sim/grid"
	"colonysim/internal/sim/haul"
	"colonysim/internal/sim/nav"
	"colonysim/internal/sim/tasks"
	"colonysim/internal/sim/work"
	"colonysim/internal/sim/world"
)

// Build places new buildings. Each job first hauls its materials to the site
// one trip at a time, then a single builder clears the footprint and does the
// construction work.
type Build struct {
	env    *Env
	vacate *Vacate
	jobs   *Registry[grid.Rect, *BuildJob]
	unsub  func()
}

func NewBuild(env *Env, vacate *Vacate) *Build {
	s := &Build{env: env, vacate: vacate, jobs: NewRegistry[grid.Rect, *BuildJob]()}
	s.unsub = env.World.SubscribeBuildings(s)
	return s
}

func (s *Build) Name() string { return "build" }

func (s *Build) Close() {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
	for _, j := range s.jobs.Jobs() {
		j.closeProviders()
	}
}

func (s *Build) Jobs() []*BuildJob { return s.jobs.Jobs() }

func (s *Build) Job(site grid.Rect) (*BuildJob, bool) { return s.jobs.Get(site) }

// site works out where def would go at origin and which passable building,
// if any, it would replace.
func (s *Build) site(def catalogs.BuildingDef, origin grid.Vec2i) (grid.Rect, *world.Building, error) {
	w := s.env.World
	r := world.Footprint(def, origin)
	if !def.Buildable {
		return r, nil, fmt.Errorf("build: %s is not buildable", def.ID)
	}
	for _, j := range s.jobs.Jobs() {
		if j.Site.Intersects(r) {
			return r, nil, fmt.Errorf("build: %v overlaps %s", r, j.Name())
		}
	}
	var replaces *world.Building
	if b := w.BuildingAt(origin); b != nil && b.Bounds == r && b.Def.Passable && b.Def.ID != def.ID {
		replaces = b
	}
	if !w.CanPlace(r, replaces) {
		return r, nil, fmt.Errorf("build: cannot place %s at %v", def.ID, r)
	}
	return r, replaces, nil
}

// Place orders def built with its origin at origin.
func (s *Build) Place(def catalogs.BuildingDef, origin grid.Vec2i) (*BuildJob, error) {
	r, replaces, err := s.site(def, origin)
	if err != nil {
		return nil, err
	}
	j := &BuildJob{sys: s, Def: def, Site: r, Replaces: replaces, Remaining: def.BuildWork}
	dest := nav.Adjacent(r)
	for _, m := range def.Materials {
		if m.Count <= 0 {
			continue
		}
		st := &haul.Stock{Item: m.Item, Need: m.Count}
		j.Stocks = append(j.Stocks, st)
		j.providers = append(j.providers, haul.NewProvider(s.env.World, st, dest, s.env.Tuning.Haul))
	}
	j.init(fmt.Sprintf("build %s@%v", def.ID, origin), func() { s.jobs.Remove(r) }, j.closeProviders)
	s.jobs.Add(r, j)
	return j, nil
}

// Orders is the order view for one building def.
func (s *Build) Orders(def catalogs.BuildingDef) Orders { return buildOrders{s: s, def: def} }

type buildOrders struct {
	s   *Build
	def catalogs.BuildingDef
}

func (o buildOrders) Applicable(r grid.Rect) bool {
	_, _, err := o.s.site(o.def, r.Min)
	return err == nil
}

func (o buildOrders) Order(r grid.Rect) bool {
	_, err := o.s.Place(o.def, r.Min)
	return err == nil
}

func (s *Build) QueryWork(a *work.Agent, yield func(*work.Work) bool) bool {
	more := true
	s.jobs.Each(func(_ grid.Rect, j *BuildJob) bool {
		if w := j.offer(a); w != nil {
			more = yield(w)
		}
		return more
	})
	return more
}

func (s *Build) BuildingAdded(*world.Building) {}

func (s *Build) BuildingRemoved(b *world.Building) {
	s.jobs.Each(func(_ grid.Rect, j *BuildJob) bool {
		if j.Replaces == b {
			j.Replaces = nil
		}
		return true
	})
}

type BuildJob struct {
	Standard
	sys      *Build
	Def      catalogs.BuildingDef
	Site     grid.Rect
	Replaces *world.Building

	Stocks    []*haul.Stock
	providers []*haul.Provider

	// Remaining construction work, shared by every builder attempt.
	Remaining float64
	builder   bool
	Built     *world.Building
}

// Stocked reports whether every material has arrived.
func (j *BuildJob) Stocked() bool {
	for _, st := range j.Stocks {
		if !st.Full() {
			return false
		}
	}
	return true
}

func (j *BuildJob) offer(a *work.Agent) *work.Work {
	if j.Busy() {
		return nil
	}
	w := j.sys.env.World
	dest := nav.Adjacent(j.Site)
	if !w.Reachable(a.Cell, dest) {
		return nil
	}
	if !j.Stocked() {
		for _, p := range j.providers {
			if p.Stock.Remaining() > 0 && p.Ready(a) {
				return j.Standard.offer(j, fmt.Sprintf("haul %s for %s", p.Stock.Item, j.Name()), p.Sequence())
			}
		}
		return nil
	}
	return j.Standard.offer(j, j.Name(), j.construct(dest))
}

func (j *BuildJob) construct(dest nav.PathCfg) work.Generator {
	var slot *work.LambdaClaim
	return work.Steps(
		func() work.Task {
			return tasks.ClaimWith(func(w *work.Work) bool {
				c, ok := w.ClaimLambda("builder:"+j.Site.String(),
					func() bool {
						if j.builder {
							return false
						}
						j.builder = true
						return true
					},
					func() { j.builder = false },
				)
				slot = c
				return ok
			})
		},
		func() work.Task { return tasks.GoTo(dest) },
		func() work.Task {
			if j.Def.Passable {
				return nil
			}
			return tasks.Until(j.siteClear, j.clearSite, j.sys.env.Tuning.Build.ClearTimeoutSeconds)
		},
		func() work.Task { return tasks.Labor(&j.Remaining, j.Site, work.ToolHammer, j.complete) },
		func() work.Task {
			return tasks.Do(func(w *work.Work) bool {
				w.Unclaim(slot)
				return true
			})
		},
	)
}

func (j *BuildJob) siteClear() bool { return len(j.sys.env.occupants(j.Site)) == 0 }

// clearSite asks idle agents standing in the footprint to step out.
func (j *BuildJob) clearSite() {
	for _, a := range j.sys.env.occupants(j.Site) {
		if a.Idle() && j.sys.vacate != nil {
			j.sys.vacate.Request(a, j.Site)
		}
	}
}

func (j *BuildJob) complete(w *work.Work) {
	j.finish()
	wd := j.sys.env.World
	var b *world.Building
	var err error
	if j.Replaces != nil && !j.Replaces.Removed() {
		b, err = wd.ReplaceBuilding(j.Replaces, j.Def)
	} else {
		b, err = wd.PlaceBuilding(j.Def, j.Site.Min)
	}
	if err != nil {
		if a := w.Agent(); a != nil {
			a.AddEvent(protocol.Event{"type": protocol.EventTaskFail, "agent_id": a.ID, "work_id": w.ID, "task": "PLACE", "code": protocol.ErrBlocked, "message": err.Error()})
		}
		j.refund()
		return
	}
	j.Built = b
	for _, st := range j.Stocks {
		st.Stored = 0
	}
}

// refund drops every stored material beside the site.
func (j *BuildJob) refund() {
	for _, st := range j.Stocks {
		j.sys.env.dropNear(j.Site, st.Item, st.Stored)
		st.Stored = 0
	}
}

func (j *BuildJob) closeProviders() {
	for _, p := range j.providers {
		p.Close()
	}
}

func (j *BuildJob) WorkEnded(w *work.Work, o work.Outcome) { j.ended(w, o) }

// Cancel returns the hauled materials to the floor.
func (j *BuildJob) Cancel() {
	if j.Closed() {
		return
	}
	j.cancel()
	j.refund()
}
