package tasks

import (
	"colonysim/internal/protocol"
	"colonysim/internal/sim/grid"
	"colonysim/internal/sim/work"
)

type Kind string

const (
	KindGoTo  Kind = "GO_TO"
	KindWait  Kind = "WAIT"
	KindDo    Kind = "DO"
	KindClaim Kind = "CLAIM"
	KindLabor Kind = "LABOR"
	KindUntil Kind = "UNTIL"
)

// WaitTask idles the agent for a fixed time.
type WaitTask struct {
	work.Base
	left float64
}

func Wait(seconds float64) *WaitTask { return &WaitTask{left: seconds} }

func (t *WaitTask) Kind() string { return string(KindWait) }

func (t *WaitTask) Begin(*work.Work) work.Status {
	if t.left <= 0 {
		return work.Complete
	}
	return work.Continue
}

func (t *WaitTask) Perform(dt float64) work.Status {
	t.left -= dt
	if t.left <= 0 {
		return work.Complete
	}
	return work.Continue
}

func (t *WaitTask) End(bool) {}

// InstantTask runs fn once in Begin and never spans a tick.
type InstantTask struct {
	work.Base
	kind Kind
	code string
	fn   func(w *work.Work) bool
}

// Do runs fn; false fails the task with E_INVALID_TARGET.
func Do(fn func(w *work.Work) bool) *InstantTask {
	return &InstantTask{kind: KindDo, code: protocol.ErrInvalidTarget, fn: fn}
}

// ClaimWith runs a claim function; false (nothing to claim) fails the task
// with E_CONFLICT so the job can offer the work again later.
func ClaimWith(fn func(w *work.Work) bool) *InstantTask {
	return &InstantTask{kind: KindClaim, code: protocol.ErrConflict, fn: fn}
}

func (t *InstantTask) Kind() string { return string(t.kind) }

func (t *InstantTask) Begin(w *work.Work) work.Status {
	if t.fn != nil && !t.fn(w) {
		if t.kind == KindClaim {
			return t.Failf(t.code, "nothing left to claim")
		}
		return t.Failf(t.code, "target no longer valid")
	}
	return work.Complete
}

func (t *InstantTask) Perform(float64) work.Status { return work.Complete }
func (t *InstantTask) End(bool)                    {}

// LaborTask spends agent work speed against a progress counter shared by
// every attempt at the same job. OnDone runs only when the counter reaches
// zero and the task was not canceled.
type LaborTask struct {
	work.Base
	Progress *float64
	Target   grid.Rect
	Tool     work.Tool
	OnDone   func(w *work.Work)

	w *work.Work
}

func Labor(progress *float64, target grid.Rect, tool work.Tool, onDone func(w *work.Work)) *LaborTask {
	return &LaborTask{Progress: progress, Target: target, Tool: tool, OnDone: onDone}
}

func (t *LaborTask) Kind() string { return string(KindLabor) }

func (t *LaborTask) Begin(w *work.Work) work.Status {
	t.w = w
	if *t.Progress <= 0 {
		return work.Complete
	}
	a := w.Agent()
	a.FaceTowards(t.Target)
	a.Animate(work.AnimWork)
	a.UseTool(t.Tool)
	return work.Continue
}

func (t *LaborTask) Perform(dt float64) work.Status {
	*t.Progress -= t.w.Agent().WorkSpeed * dt
	if *t.Progress <= 0 {
		*t.Progress = 0
		return work.Complete
	}
	return work.Continue
}

func (t *LaborTask) End(canceled bool) {
	if a := t.w.Agent(); a != nil {
		a.UseTool(work.ToolNone)
		a.Animate(work.AnimIdle)
	}
	if !canceled && *t.Progress <= 0 && t.OnDone != nil {
		t.OnDone(t.w)
	}
}

// UntilTask keeps returning Continue until ready reports true. While waiting
// it calls poke every tick. With a timeout it fails with E_BLOCKED instead of
// waiting forever.
type UntilTask struct {
	work.Base
	ready   func() bool
	poke    func()
	timeout float64
	waited  float64
}

func Until(ready func() bool, poke func(), timeout float64) *UntilTask {
	return &UntilTask{ready: ready, poke: poke, timeout: timeout}
}

func (t *UntilTask) Kind() string { return string(KindUntil) }

func (t *UntilTask) Begin(*work.Work) work.Status { return t.check() }

func (t *UntilTask) Perform(dt float64) work.Status {
	t.waited += dt
	if t.ready() {
		return work.Complete
	}
	if t.timeout > 0 && t.waited >= t.timeout {
		return t.Failf(protocol.ErrBlocked, "still not ready after %.1fs", t.waited)
	}
	return t.check()
}

func (t *UntilTask) check() work.Status {
	if t.ready() {
		return work.Complete
	}
	if t.poke != nil {
		t.poke()
	}
	return work.Continue
}

func (t *UntilTask) End(bool) {}
