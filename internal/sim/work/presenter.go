package work

import "colonysim/internal/sim/grid"

type Anim string

const (
	AnimIdle  Anim = "IDLE"
	AnimWalk  Anim = "WALK"
	AnimWork  Anim = "WORK"
	AnimCarry Anim = "CARRY"
)

type Tool string

const (
	ToolNone   Tool = ""
	ToolPick   Tool = "PICK"
	ToolHammer Tool = "HAMMER"
	ToolSaw    Tool = "SAW"
)

// Presenter is the only view of rendering the engine has.
type Presenter interface {
	SetFacing(d grid.Dir)
	SetAnimation(a Anim)
	SetTool(t Tool)
}

type NopPresenter struct{}

func (NopPresenter) SetFacing(grid.Dir) {}
func (NopPresenter) SetAnimation(Anim)  {}
func (NopPresenter) SetTool(Tool)       {}
