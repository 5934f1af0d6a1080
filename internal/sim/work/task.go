package work

import (
	"fmt"

	"colonysim/internal/sim/grid"
)

type Status int

const (
	Continue Status = iota
	Complete
	Fail
)

func (s Status) String() string {
	switch s {
	case Continue:
		return "CONTINUE"
	case Complete:
		return "COMPLETE"
	case Fail:
		return "FAIL"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Task is one step of a Work. Begin runs once; while it returns Continue the
// engine calls Perform every tick; End runs exactly once afterwards, with
// canceled=true unless the task completed normally.
type Task interface {
	Begin(w *Work) Status
	Perform(dt float64) Status
	End(canceled bool)
	// SoftCanceled turns the next Continue or Fail into Complete.
	SoftCanceled() bool
}

// Rerouter is implemented by tasks holding a path. Reroute reports whether
// the change touched the path and a new plan was attempted.
type Rerouter interface {
	Reroute(region grid.Rect) bool
}

// Base carries the soft-cancel flag and failure reason; embed it in tasks.
type Base struct {
	soft    bool
	code    string
	message string
}

func (b *Base) SoftCancel()        { b.soft = true }
func (b *Base) SoftCanceled() bool { return b.soft }

// Failf records why the task failed and returns Fail.
func (b *Base) Failf(code string, format string, args ...any) Status {
	b.code = code
	b.message = fmt.Sprintf(format, args...)
	return Fail
}

func (b *Base) FailReason() (code, message string) { return b.code, b.message }

type failReasoner interface {
	FailReason() (string, string)
}

type kinded interface {
	Kind() string
}

// TaskKind names a task for events and tick summaries.
func TaskKind(t Task) string {
	if k, ok := t.(kinded); ok {
		return k.Kind()
	}
	return fmt.Sprintf("%T", t)
}

func settle(t Task, st Status) Status {
	if st != Complete && t.SoftCanceled() {
		return Complete
	}
	return st
}

// Generator yields the tasks of a Work one at a time. Tasks are built only when
// asked for, so a later task may capture what an earlier one produced.
// A nil task ends the sequence.
type Generator interface {
	Next() Task
}

type GeneratorFunc func() Task

func (f GeneratorFunc) Next() Task { return f() }

// Steps runs each constructor in order; a constructor returning nil is skipped.
func Steps(steps ...func() Task) Generator {
	i := 0
	return GeneratorFunc(func() Task {
		for i < len(steps) {
			t := steps[i]()
			i++
			if t != nil {
				return t
			}
		}
		return nil
	})
}

// Concat drains each generator in turn.
func Concat(gens ...Generator) Generator {
	i := 0
	return GeneratorFunc(func() Task {
		for i < len(gens) {
			if gens[i] != nil {
				if t := gens[i].Next(); t != nil {
					return t
				}
			}
			i++
		}
		return nil
	})
}

// Lazy defers building a generator until its first task is needed.
func Lazy(build func() Generator) Generator {
	var g Generator
	return GeneratorFunc(func() Task {
		if g == nil {
			g = build()
			if g == nil {
				return nil
			}
		}
		return g.Next()
	})
}

// Of wraps ready-made tasks.
func Of(tasks ...Task) Generator {
	i := 0
	return GeneratorFunc(func() Task {
		if i >= len(tasks) {
			return nil
		}
		t := tasks[i]
		i++
		return t
	})
}
