package jobs

import (
	"colonysim/internal/protocol"
	"colonysim/internal/sim/tasks"
	"colonysim/internal/sim/work"
)

// Standard is the boilerplate shared by every job: an active-work slot so at
// most one Work exists per job, and deregistration once the job is finished.
//
// Abandoned work has all of its claims released by the job. No job here keeps
// a claim across attempts; progress lives in job fields instead.
type Standard struct {
	name   string
	active *work.Work
	done   bool
	closed bool

	remove  func()
	cleanup func()
}

func (s *Standard) init(name string, remove, cleanup func()) {
	s.name = name
	s.remove = remove
	s.cleanup = cleanup
}

func (s *Standard) Name() string           { return s.name }
func (s *Standard) ActiveWork() *work.Work { return s.active }
func (s *Standard) Busy() bool             { return s.active != nil }
func (s *Standard) Closed() bool           { return s.closed }

// Done reports whether the job's terminal task has run.
func (s *Standard) Done() bool { return s.done }

// finish marks the job for deregistration when the current Work completes.
func (s *Standard) finish() { s.done = true }

// offer wraps gen between acquiring and releasing the active-work slot. It
// returns nil while another Work of this job is active.
func (s *Standard) offer(owner work.Owner, name string, gen work.Generator) *work.Work {
	if s.active != nil || s.done || s.closed {
		return nil
	}
	var slot *work.LambdaClaim
	seq := work.Concat(
		work.Steps(func() work.Task {
			return tasks.ClaimWith(func(w *work.Work) bool {
				c, ok := w.ClaimLambda("active:"+s.name,
					func() bool {
						if s.active != nil {
							return false
						}
						s.active = w
						return true
					},
					func() {
						if s.active == w {
							s.active = nil
						}
					},
				)
				slot = c
				return ok
			})
		}),
		gen,
		work.Steps(func() work.Task {
			return tasks.Do(func(w *work.Work) bool {
				w.Unclaim(slot)
				return true
			})
		}),
	)
	return work.New(name, owner, seq)
}

// ended applies the common outcome handling; jobs call it from WorkEnded.
func (s *Standard) ended(w *work.Work, o work.Outcome) {
	if o == work.OutcomeAbandoned {
		w.UnclaimAll()
	}
	if !s.done {
		return
	}
	if a := w.Agent(); a != nil && o == work.OutcomeCompleted {
		a.AddEvent(protocol.Event{"type": protocol.EventJobDone, "agent_id": a.ID, "job": s.name})
	}
	s.close()
}

func (s *Standard) close() {
	if s.closed {
		return
	}
	s.closed = true
	if s.remove != nil {
		s.remove()
	}
	if s.cleanup != nil {
		s.cleanup()
	}
}

// cancel cancels the active Work and deregisters the job.
func (s *Standard) cancel() {
	if s.active != nil {
		s.active.Cancel()
	}
	s.close()
}
