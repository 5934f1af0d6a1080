package jobs

import (
	"fmt"

	"colonysim/internal/sim/grid"
	"colonysim/internal/sim/nav"
	"colonysim/internal/sim/tasks"
	"colonysim/internal/sim/work"
)

// Vacate moves idle agents out of an area someone needs cleared. Jobs are
// keyed by agent and only offered to that agent.
type Vacate struct {
	env  *Env
	jobs *Registry[string, *VacateJob]
}

func NewVacate(env *Env) *Vacate {
	return &Vacate{env: env, jobs: NewRegistry[string, *VacateJob]()}
}

func (s *Vacate) Name() string { return "vacate" }

func (s *Vacate) Jobs() []*VacateJob { return s.jobs.Jobs() }

// Request asks a to leave area. A pending request for a is widened to cover
// both areas.
func (s *Vacate) Request(a *work.Agent, area grid.Rect) *VacateJob {
	if j, ok := s.jobs.Get(a.ID); ok {
		if !j.Busy() {
			j.Area = j.Area.Union(area)
		}
		return j
	}
	j := &VacateJob{sys: s, Agent: a, Area: area}
	id := a.ID
	j.init(fmt.Sprintf("vacate %s", a.ID), func() { s.jobs.Remove(id) }, nil)
	s.jobs.Add(id, j)
	return j
}

func (s *Vacate) QueryWork(a *work.Agent, yield func(*work.Work) bool) bool {
	j, ok := s.jobs.Get(a.ID)
	if !ok {
		return true
	}
	if !j.Area.Contains(a.Cell) {
		j.Cancel()
		return true
	}
	if w := j.offer(); w != nil {
		return yield(w)
	}
	return true
}

type VacateJob struct {
	Standard
	sys   *Vacate
	Agent *work.Agent
	Area  grid.Rect
}

func (j *VacateJob) offer() *work.Work {
	if j.Busy() {
		return nil
	}
	cfg := nav.Vacate(j.Area)
	if !j.sys.env.World.Reachable(j.Agent.Cell, cfg) {
		return nil
	}
	return j.Standard.offer(j, j.Name(), work.Steps(
		func() work.Task { return tasks.GoTo(cfg) },
		func() work.Task {
			return tasks.Do(func(*work.Work) bool {
				j.finish()
				return true
			})
		},
	))
}

func (j *VacateJob) WorkEnded(w *work.Work, o work.Outcome) { j.ended(w, o) }

func (j *VacateJob) Cancel() { j.cancel() }
