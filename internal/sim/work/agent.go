package work

import (
	"colonysim/internal/protocol"
	"colonysim/internal/sim/grid"
	"colonysim/internal/sim/nav"
	"colonysim/internal/sim/world"
)

// Map is what agents and their tasks need from the world.
type Map interface {
	Passable(p grid.Vec2i) bool
	FindPath(start grid.Vec2i, cfg nav.PathCfg) ([]grid.Vec2i, bool)
	PutItem(it *world.Item, p grid.Vec2i)
}

type Agent struct {
	ID   string
	Name string

	Cell   grid.Vec2i
	Facing grid.Dir
	// Transit is the distance already covered towards the next path cell.
	Transit float64

	Carrying *world.Item

	MoveSpeed float64
	WorkSpeed float64

	Presenter Presenter
	Map       Map

	MaxEvents int

	work   *Work
	events []protocol.Event
}

func (a *Agent) Work() *Work { return a.work }
func (a *Agent) Idle() bool  { return a.work == nil }

// AbandonWork drops the current work without finishing it; the job decides
// what happens to its claims.
func (a *Agent) AbandonWork() {
	if a.work != nil {
		a.work.Abandon()
	}
}

// Drop puts the carried stack on the agent's cell.
func (a *Agent) Drop() {
	if a.Carrying == nil {
		return
	}
	it := a.Carrying
	a.Carrying = nil
	if a.Map != nil {
		a.Map.PutItem(it, a.Cell)
	}
}

func (a *Agent) Face(d grid.Dir) {
	if d == grid.None {
		return
	}
	a.Facing = d
	if a.Presenter != nil {
		a.Presenter.SetFacing(d)
	}
}

// FaceTowards turns the agent to look at the nearest cell of r.
func (a *Agent) FaceTowards(r grid.Rect) {
	q := r.Min
	if a.Cell.X >= r.Max.X {
		q.X = r.Max.X - 1
	} else if a.Cell.X >= r.Min.X {
		q.X = a.Cell.X
	}
	if a.Cell.Y >= r.Max.Y {
		q.Y = r.Max.Y - 1
	} else if a.Cell.Y >= r.Min.Y {
		q.Y = a.Cell.Y
	}
	a.Face(grid.DirOf(q.Sub(a.Cell)))
}

func (a *Agent) Animate(anim Anim) {
	if a.Presenter != nil {
		a.Presenter.SetAnimation(anim)
	}
}

func (a *Agent) UseTool(t Tool) {
	if a.Presenter != nil {
		a.Presenter.SetTool(t)
	}
}

func (a *Agent) AddEvent(e protocol.Event) {
	if a.MaxEvents > 0 && len(a.events) >= a.MaxEvents {
		a.events = a.events[1:]
	}
	a.events = append(a.events, e)
}

// DrainEvents returns and clears the buffered events.
func (a *Agent) DrainEvents() []protocol.Event {
	out := a.events
	a.events = nil
	return out
}
