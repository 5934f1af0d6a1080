package colony

import (
	"fmt"
	"io"
	"log"

	"colonysim/internal/protocol"
	"colonysim/internal/sim/grid"
	"colonysim/internal/sim/jobs"
	"colonysim/internal/sim/tuning"
	"colonysim/internal/sim/work"
	"colonysim/internal/sim/world"
)

// Sink receives one entry per simulated tick (journal, index, observer hub).
type Sink interface {
	WriteTick(entry TickEntry) error
}

// Colony owns the agents and the job systems of one world and advances them
// tick by tick. Everything runs on the caller's goroutine.
type Colony struct {
	World  *world.World
	Tuning tuning.Tuning
	Env    *jobs.Env

	Vacate      *jobs.Vacate
	Mining      *jobs.Demolition
	Deconstruct *jobs.Demolition
	Build       *jobs.Build
	Workbench   *jobs.Workbench

	systems []jobs.System

	agents []*work.Agent
	byID   map[string]*work.Agent

	tick       uint64
	elapsed    float64
	nextWorkID uint64
	nextAgent  int
	reroutes   uint64

	// Events raised outside any agent (job cancellation) wait here for the next tick.
	pending []protocol.Event

	sinks  []Sink
	logger *log.Logger
	unsub  func()

	assigned func(*work.Work)
}

func New(w *world.World, tune tuning.Tuning, logger *log.Logger) *Colony {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	c := &Colony{
		World:  w,
		Tuning: tune,
		byID:   map[string]*work.Agent{},
		logger: logger,
	}
	c.Env = &jobs.Env{World: w, Tuning: tune, Occupants: c.AgentsIn, Logger: logger}
	c.Vacate = jobs.NewVacate(c.Env)
	c.Mining = jobs.NewMining(c.Env)
	c.Deconstruct = jobs.NewDeconstruct(c.Env)
	c.Build = jobs.NewBuild(c.Env, c.Vacate)
	c.Workbench = jobs.NewWorkbench(c.Env)
	// Vacating comes first so a blocked builder is never starved by other work.
	c.systems = []jobs.System{c.Vacate, c.Mining, c.Deconstruct, c.Build, c.Workbench}
	c.unsub = w.SubscribePassability(c.passabilityChanged)
	return c
}

// Close detaches every system from the world. In-flight work is left as is.
func (c *Colony) Close() {
	if c.unsub != nil {
		c.unsub()
		c.unsub = nil
	}
	c.Mining.Close()
	c.Deconstruct.Close()
	c.Build.Close()
	c.Workbench.Close()
}

func (c *Colony) AddSink(s Sink) {
	if s != nil {
		c.sinks = append(c.sinks, s)
	}
}

// SetAssignHook registers fn to see every Work as it is bound to an agent,
// including Work that finishes or fails before the tick ends.
func (c *Colony) SetAssignHook(fn func(*work.Work)) { c.assigned = fn }

func (c *Colony) Tick() uint64     { return c.tick }
func (c *Colony) Elapsed() float64 { return c.elapsed }

// Reroutes counts path replans caused by passability changes.
func (c *Colony) Reroutes() uint64       { return c.reroutes }
func (c *Colony) Systems() []jobs.System { return append([]jobs.System(nil), c.systems...) }

// Agents returns the agents in spawn order, which is also dispatch order.
func (c *Colony) Agents() []*work.Agent { return append([]*work.Agent(nil), c.agents...) }

func (c *Colony) Agent(id string) *work.Agent { return c.byID[id] }

// Spawn adds an agent with the tuned speeds on a passable cell.
func (c *Colony) Spawn(name string, at grid.Vec2i) (*work.Agent, error) {
	if !c.World.Passable(at) {
		return nil, fmt.Errorf("spawn %q: cell %v is not passable", name, at)
	}
	c.nextAgent++
	a := &work.Agent{
		ID:        fmt.Sprintf("A%d", c.nextAgent),
		Name:      name,
		Cell:      at,
		MoveSpeed: c.Tuning.Agent.MoveSpeed,
		WorkSpeed: c.Tuning.Agent.WorkSpeed,
		Presenter: work.NopPresenter{},
		Map:       c.World,
		MaxEvents: c.Tuning.Events.MaxPerAgent,
	}
	if a.Name == "" {
		a.Name = a.ID
	}
	c.agents = append(c.agents, a)
	c.byID[a.ID] = a
	return a, nil
}

// AgentsIn lists the agents standing inside r, in spawn order.
func (c *Colony) AgentsIn(r grid.Rect) []*work.Agent {
	var out []*work.Agent
	for _, a := range c.agents {
		if r.Contains(a.Cell) {
			out = append(out, a)
		}
	}
	return out
}

// Jobs returns every registered job, grouped by system in dispatch order.
func (c *Colony) Jobs() []jobs.Job {
	var out []jobs.Job
	for _, j := range c.Vacate.Jobs() {
		out = append(out, j)
	}
	for _, j := range c.Mining.Jobs() {
		out = append(out, j)
	}
	for _, j := range c.Deconstruct.Jobs() {
		out = append(out, j)
	}
	for _, j := range c.Build.Jobs() {
		out = append(out, j)
	}
	for _, j := range c.Workbench.Jobs() {
		out = append(out, j)
	}
	return out
}

// AssignWork numbers w and binds it to a. It reports false when the agent is
// busy; w then stays pending and may be offered again.
func (c *Colony) AssignWork(w *work.Work, a *work.Agent) bool {
	if w == nil || a == nil || !a.Idle() {
		return false
	}
	if w.ID == 0 {
		c.nextWorkID++
		w.ID = c.nextWorkID
	}
	if !w.Claim(a) {
		return false
	}
	if c.assigned != nil {
		c.assigned(w)
	}
	return true
}

// AbandonWork stops the agent's current work; its job decides what happens to
// the claims and progress.
func (c *Colony) AbandonWork(a *work.Agent) {
	if a == nil || a.Idle() {
		return
	}
	c.logger.Printf("abandon agent=%s %v", a.ID, a.Work())
	a.AbandonWork()
}

// CancelJob cancels the job's active work (releasing its claims) and removes
// the job from its system.
func (c *Colony) CancelJob(j jobs.Job) bool {
	if j == nil || j.Closed() {
		return false
	}
	j.Cancel()
	c.pending = append(c.pending, protocol.Event{"type": protocol.EventJobCanceled, "job": j.Name()})
	return true
}

func (c *Colony) passabilityChanged(region grid.Rect) {
	for _, a := range c.agents {
		if w := a.Work(); w != nil && w.Reroute(region) {
			c.reroutes++
		}
	}
}

// dispatch offers the idle agent work from each system in turn; the first
// Work that binds wins.
func (c *Colony) dispatch(a *work.Agent) {
	for _, s := range c.systems {
		more := s.QueryWork(a, func(w *work.Work) bool {
			return !c.AssignWork(w, a)
		})
		if !more || !a.Idle() {
			return
		}
	}
}
