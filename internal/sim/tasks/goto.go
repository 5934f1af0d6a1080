package tasks

import (
	"math"

	"colonysim/internal/protocol"
	"colonysim/internal/sim/grid"
	"colonysim/internal/sim/nav"
	"colonysim/internal/sim/work"
)

// GoToTask walks the agent along an A* path until cfg is satisfied.
type GoToTask struct {
	work.Base
	cfg nav.PathCfg

	agent *work.Agent
	// Remaining cells, not including the one the agent stands on.
	path []grid.Vec2i
	// Set when a reroute found no path; the task fails on its next tick.
	stranded bool
	plans    int
}

func GoTo(cfg nav.PathCfg) *GoToTask { return &GoToTask{cfg: cfg} }

func (t *GoToTask) Kind() string { return string(KindGoTo) }

// Path returns the cells still to walk.
func (t *GoToTask) Path() []grid.Vec2i { return append([]grid.Vec2i(nil), t.path...) }

// Plans counts path searches made so far.
func (t *GoToTask) Plans() int { return t.plans }

func (t *GoToTask) Begin(w *work.Work) work.Status {
	t.agent = w.Agent()
	if t.cfg.Satisfied(t.agent.Cell) {
		return work.Complete
	}
	if !t.plan() {
		return t.Failf(protocol.ErrUnreachable, "no path from %v", t.agent.Cell)
	}
	if t.agent.Carrying != nil {
		t.agent.Animate(work.AnimCarry)
	} else {
		t.agent.Animate(work.AnimWalk)
	}
	return work.Continue
}

func (t *GoToTask) plan() bool {
	t.plans++
	path, ok := t.agent.Map.FindPath(t.agent.Cell, t.cfg)
	if !ok {
		t.path = nil
		return false
	}
	t.path = path[1:]
	return true
}

func (t *GoToTask) Perform(dt float64) work.Status {
	a := t.agent
	if t.stranded {
		return t.Failf(protocol.ErrUnreachable, "route from %v blocked", a.Cell)
	}
	budget := a.MoveSpeed * dt
	for len(t.path) > 0 {
		next := t.path[0]
		d := next.Sub(a.Cell)
		a.Face(grid.DirOf(d))
		if !a.Map.Passable(next) {
			a.Transit = 0
			if !t.plan() {
				return t.Failf(protocol.ErrBlocked, "%v became impassable", next)
			}
			continue
		}
		step := 1.0
		if grid.Diagonal(d) {
			step = math.Sqrt2
		}
		if a.Transit+budget < step {
			a.Transit += budget
			return work.Continue
		}
		budget -= step - a.Transit
		a.Transit = 0
		a.Cell = next
		t.path = t.path[1:]
	}
	if t.cfg.Satisfied(a.Cell) {
		return work.Complete
	}
	return t.Failf(protocol.ErrUnreachable, "stopped at %v short of destination", a.Cell)
}

// Reroute replans when region touches the rest of the path. Without an
// alternative the agent stands still and the task fails on the next tick.
func (t *GoToTask) Reroute(region grid.Rect) bool {
	if t.agent == nil || t.stranded || !t.crosses(region) {
		return false
	}
	t.agent.Transit = 0
	if !t.plan() {
		t.stranded = true
	}
	return true
}

func (t *GoToTask) crosses(region grid.Rect) bool {
	for _, p := range t.path {
		if region.Contains(p) {
			return true
		}
	}
	return false
}

func (t *GoToTask) End(bool) {
	if t.agent != nil {
		t.agent.Transit = 0
		t.agent.Animate(work.AnimIdle)
	}
}
