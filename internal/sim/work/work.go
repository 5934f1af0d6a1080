package work

import (
	"fmt"

	"colonysim/internal/protocol"
	"colonysim/internal/sim/grid"
	"colonysim/internal/sim/world"
)

type State int

const (
	Pending State = iota
	Active
	Completed
	Canceled
	Abandoned
)

func (s State) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Active:
		return "ACTIVE"
	case Completed:
		return "COMPLETED"
	case Canceled:
		return "CANCELED"
	case Abandoned:
		return "ABANDONED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Outcome tells the owning job how a Work ended.
type Outcome int

const (
	OutcomeCompleted Outcome = iota + 1
	OutcomeCanceled
	OutcomeAbandoned
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "COMPLETED"
	case OutcomeCanceled:
		return "CANCELED"
	case OutcomeAbandoned:
		return "ABANDONED"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Owner is the job a Work belongs to.
//
// On OutcomeAbandoned the owner must release (or otherwise settle) every claim
// still held by the Work before returning.
type Owner interface {
	WorkEnded(w *Work, o Outcome)
}

// Work is one attempt at a job's labor: a lazily produced task sequence bound
// to a single agent, plus the claims its tasks made.
type Work struct {
	ID   uint64
	Name string

	owner Owner
	gen   Generator
	agent *Agent

	state  State
	active Task
	claims []Claim

	made     int
	released int
}

func New(name string, owner Owner, gen Generator) *Work {
	return &Work{Name: name, owner: owner, gen: gen}
}

func (w *Work) Agent() *Agent    { return w.agent }
func (w *Work) Owner() Owner     { return w.owner }
func (w *Work) State() State     { return w.state }
func (w *Work) ActiveTask() Task { return w.active }

// Claims returns the outstanding claims, oldest first.
func (w *Work) Claims() []Claim { return append([]Claim(nil), w.claims...) }
func (w *Work) Made() int       { return w.made }
func (w *Work) Released() int   { return w.released }

func (w *Work) String() string {
	return fmt.Sprintf("work#%d(%s)", w.ID, w.Name)
}

func invariant(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("work: invariant violated: "+format, args...))
	}
}

// Claim binds the work to a (idle) agent and begins the first task. It returns
// false when the agent is busy. Jobs only publish work whose first task cannot
// fail, so a failing first task is a programming error.
func (w *Work) Claim(a *Agent) bool {
	invariant(w.agent == nil && w.state == Pending, "%v claimed twice", w)
	if a == nil || !a.Idle() {
		return false
	}
	w.agent = a
	w.state = Active
	a.work = w
	a.AddEvent(protocol.Event{"type": protocol.EventWorkClaimed, "agent_id": a.ID, "work_id": w.ID, "work": w.Name})
	w.advance(true)
	return true
}

// Perform runs the active task for dt seconds.
func (w *Work) Perform(dt float64) {
	if w.state != Active || w.active == nil {
		return
	}
	t := w.active
	st := settle(t, t.Perform(dt))
	if w.state != Active || w.active != t {
		// The task ended its own work (e.g. canceled it).
		return
	}
	switch st {
	case Continue:
	case Complete:
		w.active = nil
		t.End(false)
		w.advance(false)
	case Fail:
		w.active = nil
		t.End(true)
		w.fail(t)
	}
}

func (w *Work) advance(first bool) {
	for w.state == Active {
		t := w.gen.Next()
		if t == nil {
			w.complete()
			return
		}
		st := settle(t, t.Begin(w))
		if w.state != Active {
			// Begin ended its own work; the task was never made active so
			// cancel could not end it.
			t.End(true)
			return
		}
		switch st {
		case Continue:
			w.active = t
			return
		case Complete:
			t.End(false)
		case Fail:
			code, msg := failReason(t)
			invariant(!first, "first task %s of %v failed: %s %s", TaskKind(t), w, code, msg)
			t.End(true)
			w.fail(t)
			return
		}
		first = false
	}
}

func failReason(t Task) (string, string) {
	if r, ok := t.(failReasoner); ok {
		code, msg := r.FailReason()
		if code != "" {
			return code, msg
		}
	}
	return protocol.ErrInternal, "task failed"
}

func (w *Work) fail(t Task) {
	code, msg := failReason(t)
	w.agent.AddEvent(protocol.Event{
		"type":     protocol.EventTaskFail,
		"agent_id": w.agent.ID,
		"work_id":  w.ID,
		"task":     TaskKind(t),
		"code":     code,
		"message":  msg,
	})
	w.cancel(protocol.EventWorkFail, code)
}

func (w *Work) complete() {
	invariant(len(w.claims) == 0, "%v completed holding %d claims", w, len(w.claims))
	w.state = Completed
	w.detach(protocol.Event{"type": protocol.EventWorkDone})
	if w.owner != nil {
		w.owner.WorkEnded(w, OutcomeCompleted)
	}
}

// Cancel ends the work unconditionally: the active task ends canceled, every
// outstanding claim is released and the agent is freed.
func (w *Work) Cancel() {
	switch w.state {
	case Pending:
		w.state = Canceled
		return
	case Active:
		w.cancel(protocol.EventWorkCanceled, protocol.ErrCanceled)
	}
}

func (w *Work) cancel(eventType, code string) {
	if t := w.active; t != nil {
		w.active = nil
		t.End(true)
	}
	w.UnclaimAll()
	w.state = Canceled
	w.detach(protocol.Event{"type": eventType, "code": code})
	if w.owner != nil {
		w.owner.WorkEnded(w, OutcomeCanceled)
	}
}

// Abandon ends the work at the agent's request. Claims are left for the owner
// to settle; none may remain once the owner has been told.
func (w *Work) Abandon() {
	if w.state != Active {
		return
	}
	if t := w.active; t != nil {
		w.active = nil
		t.End(true)
	}
	w.state = Abandoned
	w.detach(protocol.Event{"type": protocol.EventWorkAbandoned})
	if w.owner != nil {
		w.owner.WorkEnded(w, OutcomeAbandoned)
	}
	invariant(len(w.claims) == 0, "%v abandoned with %d unsettled claims", w, len(w.claims))
}

func (w *Work) detach(e protocol.Event) {
	a := w.agent
	if a == nil {
		return
	}
	e["agent_id"] = a.ID
	e["work_id"] = w.ID
	e["work"] = w.Name
	a.AddEvent(e)
	if a.work == w {
		a.work = nil
	}
	a.Transit = 0
	a.Animate(AnimIdle)
	a.UseTool(ToolNone)
}

// Reroute forwards a passability change to the active task and reports
// whether it replanned.
func (w *Work) Reroute(region grid.Rect) bool {
	if w.state != Active {
		return false
	}
	if r, ok := w.active.(Rerouter); ok {
		return r.Reroute(region)
	}
	return false
}

// MakeClaim adds an already acquired claim to the work.
func (w *Work) MakeClaim(c Claim) Claim {
	invariant(w.state == Active, "claim made on %v in state %v", w, w.state)
	w.claims = append(w.claims, c)
	w.made++
	return c
}

// Unclaim releases a claim held by this work.
func (w *Work) Unclaim(c Claim) {
	for i, x := range w.claims {
		if x == c {
			w.claims = append(w.claims[:i], w.claims[i+1:]...)
			w.released++
			c.release()
			return
		}
	}
	invariant(false, "%v released a claim it does not hold (%T)", w, c)
}

// UnclaimAll releases outstanding claims newest first.
func (w *Work) UnclaimAll() {
	for len(w.claims) > 0 {
		w.Unclaim(w.claims[len(w.claims)-1])
	}
}

func (w *Work) Holds(c Claim) bool {
	for _, x := range w.claims {
		if x == c {
			return true
		}
	}
	return false
}

// ClaimItem reserves n units of a floor stack.
func (w *Work) ClaimItem(it *world.Item, n int) (*ItemClaim, bool) {
	if !it.Reserve(n) {
		return nil, false
	}
	c := &ItemClaim{Item: it, Amount: n}
	w.MakeClaim(c)
	return c, true
}

// ClaimLambda runs acquire and, if it succeeds, records release as a claim.
func (w *Work) ClaimLambda(name string, acquire func() bool, release func()) (*LambdaClaim, bool) {
	if acquire != nil && !acquire() {
		return nil, false
	}
	c := &LambdaClaim{Name: name, onRelease: release}
	w.MakeClaim(c)
	return c, true
}
