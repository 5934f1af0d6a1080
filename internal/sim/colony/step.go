package colony

import (
	"fmt"

	"colonysim/internal/protocol"
	"colonysim/internal/sim/work"
)

// TickEntry summarizes one tick for journals, indexes and observers.
type TickEntry struct {
	Tick   uint64           `json:"tick"`
	Time   float64          `json:"time"`
	Events []protocol.Event `json:"events,omitempty"`
	Agents []AgentState     `json:"agents"`
	Jobs   int              `json:"jobs"`
	Digest string           `json:"digest"`
}

type AgentState struct {
	ID       string `json:"id"`
	Cell     [2]int `json:"cell"`
	Facing   string `json:"facing"`
	Work     string `json:"work,omitempty"`
	WorkID   uint64 `json:"work_id,omitempty"`
	Task     string `json:"task,omitempty"`
	Carrying string `json:"carrying,omitempty"`
}

// Step advances the colony by dt seconds. Agents go in spawn order: an idle
// agent is offered work first, then whatever it holds performs.
func (c *Colony) Step(dt float64) TickEntry {
	for _, a := range c.agents {
		if a.Idle() {
			c.dispatch(a)
		}
		if w := a.Work(); w != nil {
			w.Perform(dt)
		}
	}
	c.elapsed += dt

	entry := TickEntry{Tick: c.tick, Time: c.elapsed}
	for _, e := range c.pending {
		e["t"] = c.tick
		entry.Events = append(entry.Events, e)
	}
	c.pending = nil
	for _, a := range c.agents {
		for _, e := range a.DrainEvents() {
			e["t"] = c.tick
			entry.Events = append(entry.Events, e)
		}
		entry.Agents = append(entry.Agents, stateOf(a))
	}
	entry.Jobs = len(c.Jobs())
	entry.Digest = c.stateDigest()
	c.tick++

	for _, s := range c.sinks {
		if err := s.WriteTick(entry); err != nil {
			c.logger.Printf("sink tick=%d: %v", entry.Tick, err)
		}
	}
	return entry
}

// Run steps n ticks at the tuned tick length.
func (c *Colony) Run(n int) []TickEntry {
	out := make([]TickEntry, 0, n)
	dt := c.Tuning.TickSeconds()
	for i := 0; i < n; i++ {
		out = append(out, c.Step(dt))
	}
	return out
}

func stateOf(a *work.Agent) AgentState {
	s := AgentState{
		ID:     a.ID,
		Cell:   [2]int{a.Cell.X, a.Cell.Y},
		Facing: a.Facing.String(),
	}
	if w := a.Work(); w != nil {
		s.Work = w.Name
		s.WorkID = w.ID
		if t := w.ActiveTask(); t != nil {
			s.Task = work.TaskKind(t)
		}
	}
	if it := a.Carrying; it != nil {
		s.Carrying = fmt.Sprintf("%s x%d", it.Def.ID, it.Amount)
	}
	return s
}
