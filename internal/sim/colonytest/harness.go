package colonytest

import (
	"testing"

	"colonysim/internal/protocol"
	"colonysim/internal/sim/catalogs"
	"colonysim/internal/sim/colony"
	"colonysim/internal/sim/jobs"
	"colonysim/internal/sim/scenario"
	"colonysim/internal/sim/tuning"
	"colonysim/internal/sim/work"
)

// Harness drives a scenario through exported APIs only and checks the
// engine-wide invariants after every tick:
//   - a job never has more than one active Work
//   - agents only ever stand on passable cells
//   - every Work that ended has released every claim it made, including
//     Work that was assigned and ended within a single tick
type Harness struct {
	T      *testing.T
	Cats   *catalogs.Catalogs
	Runner *scenario.Runner
	C      *colony.Colony

	Entries []colony.TickEntry

	works   map[*work.Work]bool
	settled int
}

func NewHarness(t *testing.T, sc scenario.Scenario) *Harness {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	r, err := scenario.Build(sc, cats, tuning.Defaults(), nil)
	if err != nil {
		t.Fatalf("scenario.Build: %v", err)
	}
	t.Cleanup(r.Close)
	h := &Harness{T: t, Cats: cats, Runner: r, C: r.Colony, works: map[*work.Work]bool{}}
	r.Colony.SetAssignHook(func(w *work.Work) { h.works[w] = true })
	return h
}

// LoadHarness builds a harness from a scenario file under configs/scenarios.
func LoadHarness(t *testing.T, name string) *Harness {
	t.Helper()
	sc, err := scenario.Load("../../../configs/scenarios/" + name + ".yaml")
	if err != nil {
		t.Fatalf("scenario.Load: %v", err)
	}
	return NewHarness(t, sc)
}

func (h *Harness) Step() colony.TickEntry {
	h.T.Helper()
	e := h.Runner.Step()
	h.Entries = append(h.Entries, e)
	h.check()
	return e
}

// StepUntil steps until cond holds, failing the test after maxTicks.
func (h *Harness) StepUntil(cond func() bool, maxTicks int) {
	h.T.Helper()
	for i := 0; i < maxTicks; i++ {
		if cond() {
			return
		}
		h.Step()
	}
	if !cond() {
		h.T.Fatalf("condition not reached after %d ticks (tick=%d)", maxTicks, h.C.Tick())
	}
}

// RunAll steps through the scenario's tick budget.
func (h *Harness) RunAll() {
	h.T.Helper()
	for !h.Runner.Done() {
		h.Step()
	}
}

func (h *Harness) check() {
	h.T.Helper()
	active := map[work.Owner]int{}
	for _, a := range h.C.Agents() {
		if !h.C.World.Passable(a.Cell) {
			h.T.Fatalf("tick %d: %s stands on impassable %v", h.C.Tick(), a.ID, a.Cell)
		}
		if w := a.Work(); w != nil {
			if o := w.Owner(); o != nil {
				active[o]++
			}
		}
	}
	for _, j := range h.C.Jobs() {
		if active[j] > 1 {
			h.T.Fatalf("tick %d: job %s has %d active works", h.C.Tick(), j.Name(), active[j])
		}
	}
	for w := range h.works {
		if w.State() == work.Active {
			continue
		}
		if w.Made() != w.Released() || len(w.Claims()) != 0 {
			h.T.Fatalf("%v ended %v with made=%d released=%d", w, w.State(), w.Made(), w.Released())
		}
		delete(h.works, w)
		h.settled++
	}
}

// Settled counts the Works that ended and passed the claim balance check.
func (h *Harness) Settled() int { return h.settled }

// Events returns every event of the given type seen so far.
func (h *Harness) Events(typ string) []protocol.Event {
	var out []protocol.Event
	for _, e := range h.Entries {
		for _, ev := range e.Events {
			if ev.Type() == typ {
				out = append(out, ev)
			}
		}
	}
	return out
}

// TaskFails counts TASK_FAIL events with the given code ("" counts all).
func (h *Harness) TaskFails(code string) int {
	n := 0
	for _, ev := range h.Events(protocol.EventTaskFail) {
		if c, _ := ev["code"].(string); code == "" || c == code {
			n++
		}
	}
	return n
}

func (h *Harness) ItemCount(id string) int {
	n := 0
	for _, it := range h.C.World.Items() {
		if it.Def.ID == id {
			n += it.Amount
		}
	}
	for _, a := range h.C.Agents() {
		if it := a.Carrying; it != nil && it.Def.ID == id {
			n += it.Amount
		}
	}
	return n
}

func (h *Harness) BuildingCount(id string) int {
	n := 0
	for _, b := range h.C.World.Buildings() {
		if b.Def.ID == id {
			n++
		}
	}
	return n
}

// Jobs returns the open jobs of a system, by name.
func (h *Harness) Jobs(system string) []jobs.Job {
	var out []jobs.Job
	for _, j := range h.C.Jobs() {
		if sys := systemOf(h.C, j); sys == system {
			out = append(out, j)
		}
	}
	return out
}

func systemOf(c *colony.Colony, j jobs.Job) string {
	switch j := j.(type) {
	case *jobs.DemolishJob:
		if mj, ok := c.Mining.Job(j.Building); ok && mj == j {
			return c.Mining.Name()
		}
		return c.Deconstruct.Name()
	case *jobs.BuildJob:
		return c.Build.Name()
	case *jobs.BenchJob:
		return c.Workbench.Name()
	case *jobs.VacateJob:
		return c.Vacate.Name()
	}
	return ""
}
