package scenario

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"colonysim/internal/sim/catalogs"
	"colonysim/internal/sim/grid"
	"colonysim/internal/sim/tuning"
	"colonysim/internal/sim/world"
)

func loadCatalogs(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return cats
}

func TestBuild_PopulatesWorld(t *testing.T) {
	sc := Scenario{
		Name: "t",
		Map: `
			..~.
			...R
		`,
		Legend:    map[string]string{"R": "ROCK"},
		Buildings: []BuildingSpec{{ID: "STONECUTTER", X: 0, Y: 0}},
		Items:     []ItemSpec{{ID: "STONE", X: 3, Y: 0, Count: 20}},
		Agents:    []AgentSpec{{Name: "a", X: 0, Y: 1}},
		Orders: []OrderSpec{
			{Kind: OrderMine, X: 3, Y: 1},
			{Kind: OrderCraft, X: 0, Y: 0, Recipe: "CUT_STONE", Quantity: 1},
		},
	}
	r, err := Build(sc, loadCatalogs(t), tuning.Defaults(), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer r.Close()
	w := r.Colony.World
	if w.TerrainAt(grid.Vec2i{X: 2, Y: 0}) != world.TerrainWater {
		t.Fatalf("water not placed")
	}
	if b := w.BuildingAt(grid.Vec2i{X: 3, Y: 1}); b == nil || b.Def.ID != "ROCK" {
		t.Fatalf("rock=%v", b)
	}
	if len(r.Colony.Mining.Jobs()) != 1 || len(r.Colony.Workbench.Jobs()) != 1 {
		t.Fatalf("orders not applied")
	}
	if a := r.Colony.Agents(); len(a) != 1 || a[0].Name != "a" {
		t.Fatalf("agents=%v", a)
	}
}

func TestBuild_Errors(t *testing.T) {
	cats := loadCatalogs(t)
	cases := map[string]Scenario{
		"unknown building": {Width: 3, Height: 1, Buildings: []BuildingSpec{{ID: "CASTLE"}}, Agents: []AgentSpec{{X: 2}}},
		"agent in rock":    {Width: 3, Height: 1, Buildings: []BuildingSpec{{ID: "ROCK"}}, Agents: []AgentSpec{{X: 0}}},
		"nothing to mine":  {Width: 3, Height: 1, Agents: []AgentSpec{{X: 0}}, Orders: []OrderSpec{{Kind: OrderMine, X: 2}}},
		"unknown recipe":   {Width: 3, Height: 1, Agents: []AgentSpec{{X: 0}}, Orders: []OrderSpec{{Kind: OrderCraft, Recipe: "BREAD"}}},
	}
	for name, sc := range cases {
		if _, err := Build(sc, cats, tuning.Defaults(), nil); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestRunner_AppliesEventsBeforeTheirTick(t *testing.T) {
	var buf bytes.Buffer
	sc := Scenario{
		Name:   "events",
		Width:  6,
		Height: 3,
		Ticks:  5,
		Agents: []AgentSpec{{Name: "a", X: 0, Y: 1}},
		Events: []EventSpec{
			{Tick: 2, Kind: EventDrop, X: 4, Y: 1, Item: "STONE", Count: 3},
			{Tick: 0, Kind: EventPlace, X: 3, Y: 1, Building: "ROCK"},
			{Tick: 1, Kind: EventOrder, Order: &OrderSpec{Kind: OrderMine, X: 3, Y: 1}},
			{Tick: 3, Kind: EventRemove, X: 0, Y: 0},
		},
	}
	r, err := Build(sc, loadCatalogs(t), tuning.Defaults(), log.New(&buf, "", 0))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer r.Close()

	r.Step()
	if r.Colony.World.BuildingAt(grid.Vec2i{X: 3, Y: 1}) == nil || len(r.Colony.Mining.Jobs()) != 0 {
		t.Fatalf("tick 0: rock placed, no order yet")
	}
	r.Step()
	if len(r.Colony.Mining.Jobs()) != 1 {
		t.Fatalf("tick 1: mining order missing")
	}
	last := r.Run()
	if !r.Done() || last.Tick != 4 {
		t.Fatalf("done=%v last=%d", r.Done(), last.Tick)
	}
	if len(r.Colony.World.ItemsAt(grid.Vec2i{X: 4, Y: 1})) == 0 {
		t.Fatalf("drop event not applied")
	}
	if !strings.Contains(buf.String(), "remove: no building at (0,0)") {
		t.Fatalf("log=%q", buf.String())
	}
}

func TestRunner_CancelAndAbandon(t *testing.T) {
	sc := Scenario{
		Name:   "cancel",
		Width:  8,
		Height: 1,
		Ticks:  10,
		Agents: []AgentSpec{{Name: "a", X: 0, Y: 0}},
		Buildings: []BuildingSpec{
			{ID: "ROCK", X: 7, Y: 0},
		},
		Orders: []OrderSpec{{Kind: OrderMine, X: 7, Y: 0}},
		Events: []EventSpec{
			{Tick: 2, Kind: EventAbandon, Agent: "a"},
			{Tick: 4, Kind: EventCancel, X: 7, Y: 0},
		},
	}
	r, err := Build(sc, loadCatalogs(t), tuning.Defaults(), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer r.Close()
	a := r.Colony.Agents()[0]
	r.Step()
	r.Step()
	first := a.Work()
	r.Step() // abandon, then re-dispatch
	if first == nil || a.Work() == nil || a.Work() == first {
		t.Fatalf("abandon did not hand out fresh work")
	}
	r.Run()
	if !a.Idle() || len(r.Colony.Jobs()) != 0 {
		t.Fatalf("cancel left work or job behind")
	}
}
