package jobs

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"colonysim/internal/sim/catalogs"
	"colonysim/internal/sim/grid"
	"colonysim/internal/sim/tuning"
	"colonysim/internal/sim/work"
	"colonysim/internal/sim/world"
)

func testCatalogs(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.FromDefs(
		[]catalogs.ItemDef{
			{ID: "STONE", MaxStack: 75},
			{ID: "WOOD", MaxStack: 75},
			{ID: "STONE_BLOCK", MaxStack: 75},
			{ID: "PLANK", MaxStack: 75},
		},
		[]catalogs.BuildingDef{
			{ID: "ROCK", Minable: true, MineAmount: 2, Drops: []catalogs.ItemCount{{Item: "STONE", Count: 36}}},
			{ID: "WALL", Buildable: true, Materials: []catalogs.ItemCount{{Item: "STONE", Count: 5}}, BuildWork: 3},
			{ID: "FLOOR", Passable: true, Buildable: true, Materials: []catalogs.ItemCount{{Item: "STONE", Count: 1}}, BuildWork: 1},
			{ID: "STONECUTTER", Size: [2]int{2, 1}, Workbench: true, Buildable: true, Materials: []catalogs.ItemCount{{Item: "STONE", Count: 10}}, BuildWork: 4},
		},
		[]catalogs.RecipeDef{
			{ID: "CUT_STONE", Bench: "STONECUTTER", Inputs: []catalogs.ItemCount{{Item: "STONE", Count: 10}}, Outputs: []catalogs.ItemCount{{Item: "STONE_BLOCK", Count: 5}}, Work: 2},
			{ID: "SAW_PLANK", Bench: "STONECUTTER", Inputs: []catalogs.ItemCount{{Item: "WOOD", Count: 2}}, Outputs: []catalogs.ItemCount{{Item: "PLANK", Count: 1}}, Work: 1},
		},
	)
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	return cats
}

// rig is a minimal dispatcher: idle agents take the first Work any system
// offers, then every agent performs.
type rig struct {
	t      *testing.T
	cats   *catalogs.Catalogs
	w      *world.World
	env    *Env
	agents []*work.Agent
	works  []*work.Work

	vacate  *Vacate
	mining  *Demolition
	decon   *Demolition
	build   *Build
	bench   *Workbench
	systems []System
}

func newRig(t *testing.T, width, height int) *rig {
	t.Helper()
	cats := testCatalogs(t)
	w, err := world.New(world.Config{Width: width, Height: height}, cats)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	r := &rig{t: t, cats: cats, w: w}
	r.env = &Env{World: w, Tuning: tuning.Defaults(), Occupants: r.occupants}
	r.vacate = NewVacate(r.env)
	r.mining = NewMining(r.env)
	r.decon = NewDeconstruct(r.env)
	r.build = NewBuild(r.env, r.vacate)
	r.bench = NewWorkbench(r.env)
	r.systems = []System{r.vacate, r.mining, r.decon, r.build, r.bench}
	t.Cleanup(func() {
		r.mining.Close()
		r.decon.Close()
		r.build.Close()
		r.bench.Close()
	})
	return r
}

func (r *rig) occupants(area grid.Rect) []*work.Agent {
	var out []*work.Agent
	for _, a := range r.agents {
		if area.Contains(a.Cell) {
			out = append(out, a)
		}
	}
	return out
}

func (r *rig) agent(at grid.Vec2i) *work.Agent {
	a := &work.Agent{ID: "A" + string(rune('1'+len(r.agents))), Cell: at, MoveSpeed: 4, WorkSpeed: 1, Map: r.w}
	r.agents = append(r.agents, a)
	return a
}

func (r *rig) building(id string, at grid.Vec2i) *world.Building {
	r.t.Helper()
	def, _ := r.cats.Building(id)
	b, err := r.w.PlaceBuilding(def, at)
	if err != nil {
		r.t.Fatalf("place %s: %v", id, err)
	}
	return b
}

func (r *rig) drop(id string, at grid.Vec2i, n int) {
	r.t.Helper()
	if _, err := r.w.DropItem(id, at, n); err != nil {
		r.t.Fatalf("drop: %v", err)
	}
}

func (r *rig) dispatch(a *work.Agent) {
	for _, s := range r.systems {
		more := s.QueryWork(a, func(w *work.Work) bool {
			if w.Claim(a) {
				r.works = append(r.works, w)
				return false
			}
			return true
		})
		if !more {
			return
		}
	}
}

func (r *rig) step() {
	for _, a := range r.agents {
		if a.Idle() {
			r.dispatch(a)
		}
		if w := a.Work(); w != nil {
			w.Perform(0.1)
		}
	}
}

func (r *rig) runUntil(cond func() bool, maxTicks int) {
	r.t.Helper()
	for i := 0; i < maxTicks; i++ {
		if cond() {
			return
		}
		r.step()
	}
	if !cond() {
		r.t.Fatalf("condition not reached after %d ticks", maxTicks)
	}
}

func (r *rig) checkClaimBalance() {
	r.t.Helper()
	for _, w := range r.works {
		if w.State() == work.Active || w.State() == work.Pending {
			continue
		}
		if w.Made() != w.Released() || len(w.Claims()) != 0 {
			r.t.Fatalf("%v ended %v with made=%d released=%d", w, w.State(), w.Made(), w.Released())
		}
	}
}

func (r *rig) count(item string) int {
	n := 0
	for _, it := range r.w.Items() {
		if it.Def.ID == item {
			n += it.Amount
		}
	}
	return n
}

func TestRegistry_InsertionOrder(t *testing.T) {
	reg := NewRegistry[string, int]()
	reg.Add("b", 1)
	reg.Add("a", 2)
	reg.Add("c", 3)
	if reg.Add("a", 9) {
		t.Fatalf("duplicate key accepted")
	}
	var seen []string
	reg.Each(func(k string, _ int) bool {
		seen = append(seen, k)
		if k == "b" {
			reg.Remove("a")
		}
		return true
	})
	if len(seen) != 2 || seen[0] != "b" || seen[1] != "c" {
		t.Fatalf("seen=%v", seen)
	}
	if reg.Len() != 2 || reg.Jobs()[1] != 3 {
		t.Fatalf("jobs=%v", reg.Jobs())
	}
}

func TestMining_DropsAndDeregisters(t *testing.T) {
	r := newRig(t, 6, 3)
	rock := r.building("ROCK", grid.Vec2i{X: 3, Y: 1})
	a := r.agent(grid.Vec2i{X: 0, Y: 1})
	b := r.agent(grid.Vec2i{X: 0, Y: 0})
	j, err := r.mining.Designate(rock)
	if err != nil {
		t.Fatal(err)
	}

	r.step()
	if a.Work() == nil || j.ActiveWork() != a.Work() {
		t.Fatalf("first agent should hold the mining work")
	}
	if !b.Idle() {
		t.Fatalf("a job with an active work must not offer another")
	}

	r.runUntil(j.Closed, 300)
	if r.w.BuildingAt(rock.Pos()) != nil || !rock.Removed() {
		t.Fatalf("rock still standing")
	}
	n := 0
	for _, it := range r.w.ItemsAt(rock.Pos()) {
		n += it.Amount
	}
	if n != 36 {
		t.Fatalf("expected 36 stone on the rock tile, got %d", n)
	}
	if len(r.mining.Jobs()) != 0 || !a.Idle() {
		t.Fatalf("job not deregistered")
	}
	r.checkClaimBalance()
}

func TestMining_LaborTime(t *testing.T) {
	r := newRig(t, 6, 3)
	rock := r.building("ROCK", grid.Vec2i{X: 1, Y: 1})
	r.agent(grid.Vec2i{X: 0, Y: 1})
	j, _ := r.mining.Designate(rock)
	ticks := 0
	r.runUntil(func() bool { ticks++; return j.Closed() }, 100)
	// Already adjacent: 2.0 work at 1.0/s is 20 ticks of 0.1s.
	if ticks-1 < 20 || ticks-1 > 21 {
		t.Fatalf("mining took %d ticks", ticks-1)
	}
}

func TestMining_BuildingRemovedCancels(t *testing.T) {
	r := newRig(t, 6, 3)
	rock := r.building("ROCK", grid.Vec2i{X: 3, Y: 1})
	a := r.agent(grid.Vec2i{X: 0, Y: 1})
	j, _ := r.mining.Designate(rock)
	r.runUntil(func() bool { return j.Remaining < 1.5 }, 100)
	r.w.RemoveBuilding(rock)
	if !j.Closed() || !a.Idle() || len(r.mining.Jobs()) != 0 {
		t.Fatalf("job should be canceled with its building")
	}
	if r.count("STONE") != 0 {
		t.Fatalf("canceled mining must not drop anything")
	}
	r.checkClaimBalance()
}

func TestMining_AbandonKeepsProgress(t *testing.T) {
	r := newRig(t, 6, 3)
	rock := r.building("ROCK", grid.Vec2i{X: 1, Y: 1})
	a := r.agent(grid.Vec2i{X: 0, Y: 1})
	j, _ := r.mining.Designate(rock)
	r.runUntil(func() bool { return j.Remaining <= 1 }, 100)
	first := a.Work()
	a.AbandonWork()
	if first.State() != work.Abandoned || j.Busy() || j.Closed() {
		t.Fatalf("state=%v busy=%v", first.State(), j.Busy())
	}
	if j.Remaining > 1 {
		t.Fatalf("progress lost: %v", j.Remaining)
	}
	r.runUntil(j.Closed, 100)
	if len(r.works) != 2 {
		t.Fatalf("expected a second attempt, works=%d", len(r.works))
	}
	r.checkClaimBalance()
}

func TestDeconstruct_Refunds(t *testing.T) {
	r := newRig(t, 6, 3)
	r.env.Tuning.Build.RefundRatio = 0.5
	decon := NewDeconstruct(r.env)
	defer decon.Close()
	r.systems = []System{decon}
	wall := r.building("WALL", grid.Vec2i{X: 3, Y: 1})
	r.agent(grid.Vec2i{X: 0, Y: 1})
	if decon.Applicable(grid.Cell(grid.Vec2i{})) || !decon.Applicable(wall.Bounds) {
		t.Fatalf("applicability wrong")
	}
	if !decon.Order(wall.Bounds) || decon.Applicable(wall.Bounds) {
		t.Fatalf("order should designate the wall once")
	}
	j, _ := decon.Job(wall)
	if j.Remaining != 1.5 {
		t.Fatalf("deconstruction work = %v", j.Remaining)
	}
	r.runUntil(j.Closed, 200)
	if !wall.Removed() || r.count("STONE") != 2 {
		t.Fatalf("removed=%v stone=%d", wall.Removed(), r.count("STONE"))
	}
}

func TestBuild_WaitsForMaterial(t *testing.T) {
	r := newRig(t, 8, 3)
	a := r.agent(grid.Vec2i{X: 0, Y: 1})
	wallDef, _ := r.cats.Building("WALL")
	site := grid.Cell(grid.Vec2i{X: 6, Y: 1})
	if !r.build.Orders(wallDef).Order(site) {
		t.Fatalf("order rejected")
	}
	j, _ := r.build.Job(site)

	for i := 0; i < 5; i++ {
		r.step()
	}
	if !a.Idle() || len(r.works) != 0 {
		t.Fatalf("no stone means no work")
	}

	r.drop("STONE", grid.Vec2i{X: 1, Y: 1}, 10)
	r.step()
	if a.Idle() || j.ActiveWork() == nil {
		t.Fatalf("stone on the map should produce a haul")
	}

	r.runUntil(j.Closed, 500)
	b := r.w.BuildingAt(site.Min)
	if b == nil || b.Def.ID != "WALL" || j.Built != b {
		t.Fatalf("wall not built: %v", b)
	}
	if r.count("STONE") != 5 {
		t.Fatalf("expected 5 stone left, got %d", r.count("STONE"))
	}
	if site.Contains(a.Cell) {
		t.Fatalf("builder inside the wall")
	}
	r.checkClaimBalance()
}

func TestBuild_VacatesIdleOccupant(t *testing.T) {
	r := newRig(t, 8, 3)
	builder := r.agent(grid.Vec2i{X: 0, Y: 1})
	idler := r.agent(grid.Vec2i{X: 5, Y: 1})
	r.drop("STONE", grid.Vec2i{X: 1, Y: 1}, 5)
	wallDef, _ := r.cats.Building("WALL")
	j, err := r.build.Place(wallDef, idler.Cell)
	if err != nil {
		t.Fatal(err)
	}
	r.runUntil(j.Closed, 600)
	if j.Built == nil || j.Site.Contains(idler.Cell) {
		t.Fatalf("built=%v idler at %v", j.Built, idler.Cell)
	}
	if builder.Cell == idler.Cell {
		t.Fatalf("agents overlap")
	}
	if len(r.vacate.Jobs()) != 0 {
		t.Fatalf("vacate job left behind")
	}
	r.checkClaimBalance()
}

func TestBuild_ReplacesPassableBuilding(t *testing.T) {
	r := newRig(t, 8, 3)
	floor := r.building("FLOOR", grid.Vec2i{X: 4, Y: 1})
	r.agent(grid.Vec2i{X: 0, Y: 1})
	r.drop("STONE", grid.Vec2i{X: 1, Y: 1}, 5)
	wallDef, _ := r.cats.Building("WALL")
	j, err := r.build.Place(wallDef, floor.Pos())
	if err != nil || j.Replaces != floor {
		t.Fatalf("err=%v replaces=%v", err, j.Replaces)
	}
	r.runUntil(j.Closed, 600)
	if !floor.Removed() || r.w.BuildingAt(floor.Pos()).Def.ID != "WALL" {
		t.Fatalf("floor not replaced")
	}
}

func TestBuild_CancelRefundsStored(t *testing.T) {
	r := newRig(t, 8, 3)
	r.agent(grid.Vec2i{X: 0, Y: 1})
	r.drop("STONE", grid.Vec2i{X: 1, Y: 1}, 10)
	wallDef, _ := r.cats.Building("WALL")
	j, _ := r.build.Place(wallDef, grid.Vec2i{X: 6, Y: 1})
	r.runUntil(j.Stocked, 300)
	if r.count("STONE") != 5 {
		t.Fatalf("stone=%d", r.count("STONE"))
	}
	j.Cancel()
	if r.count("STONE") != 10 || len(r.build.Jobs()) != 0 {
		t.Fatalf("stone=%d jobs=%d", r.count("STONE"), len(r.build.Jobs()))
	}
	if r.w.BuildingAt(grid.Vec2i{X: 6, Y: 1}) != nil {
		t.Fatalf("canceled build placed a wall")
	}
	r.checkClaimBalance()
}

func TestBuild_OrdersView(t *testing.T) {
	r := newRig(t, 8, 3)
	rock := r.building("ROCK", grid.Vec2i{X: 2, Y: 1})
	wallDef, _ := r.cats.Building("WALL")
	orders := r.build.Orders(wallDef)
	if orders.Applicable(rock.Bounds) {
		t.Fatalf("cannot build over a rock")
	}
	free := grid.Cell(grid.Vec2i{X: 5, Y: 1})
	if !orders.Applicable(free) || !orders.Order(free) {
		t.Fatalf("free cell should accept an order")
	}
	if orders.Applicable(free) {
		t.Fatalf("site already has a job")
	}
	if !r.mining.Applicable(grid.RectAt(grid.Vec2i{}, 8, 3)) || !r.mining.Order(grid.RectAt(grid.Vec2i{}, 8, 3)) {
		t.Fatalf("rock should be minable")
	}
	if r.mining.Applicable(rock.Bounds) {
		t.Fatalf("rock already designated")
	}
}

func TestWorkbench_CraftsFirstReadyOrder(t *testing.T) {
	r := newRig(t, 10, 4)
	bench := r.building("STONECUTTER", grid.Vec2i{X: 5, Y: 1})
	r.agent(grid.Vec2i{X: 0, Y: 1})
	r.drop("WOOD", grid.Vec2i{X: 1, Y: 2}, 3)

	stoneOrder, err := r.bench.AddOrder(bench, "CUT_STONE", 1)
	if err != nil {
		t.Fatal(err)
	}
	plankOrder, err := r.bench.AddOrder(bench, "SAW_PLANK", 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.bench.AddOrder(bench, "NOPE", 1); err == nil {
		t.Fatalf("unknown recipe accepted")
	}
	j, _ := r.bench.Job(bench)
	if stoneOrder.Ready() || !plankOrder.Ready() {
		t.Fatalf("readiness wrong")
	}

	r.runUntil(func() bool { return len(j.Orders()) == 1 }, 400)
	if j.Orders()[0] != stoneOrder || r.count("PLANK") != 1 || r.count("WOOD") != 1 {
		t.Fatalf("plank=%d wood=%d", r.count("PLANK"), r.count("WOOD"))
	}
	for _, it := range r.w.Items() {
		if it.Def.ID == "PLANK" && grid.Chebyshev(it.Pos, bench.Pos()) > 2 {
			t.Fatalf("output dropped away from the bench at %v", it.Pos)
		}
	}

	r.drop("STONE", grid.Vec2i{X: 1, Y: 1}, 12)
	r.runUntil(func() bool { return len(j.Orders()) == 0 }, 600)
	if r.count("STONE_BLOCK") != 5 || r.count("STONE") != 2 {
		t.Fatalf("blocks=%d stone=%d", r.count("STONE_BLOCK"), r.count("STONE"))
	}
	r.runUntil(func() bool { return len(r.bench.Jobs()) == 0 }, 5)
	if !j.Closed() || j.Busy() {
		t.Fatalf("closed=%v busy=%v", j.Closed(), j.Busy())
	}
	r.checkClaimBalance()

	again, err := r.bench.AddOrder(bench, "CUT_STONE", 1)
	if err != nil {
		t.Fatal(err)
	}
	if nj, ok := r.bench.Job(bench); !ok || nj == j || len(nj.Orders()) != 1 || nj.Orders()[0] != again {
		t.Fatalf("new order did not open a fresh job")
	}
}

func TestWorkbench_CancelOrderRefunds(t *testing.T) {
	r := newRig(t, 10, 4)
	bench := r.building("STONECUTTER", grid.Vec2i{X: 5, Y: 1})
	r.agent(grid.Vec2i{X: 0, Y: 1})
	r.drop("STONE", grid.Vec2i{X: 1, Y: 1}, 12)
	o, _ := r.bench.AddOrder(bench, "CUT_STONE", 3)
	r.runUntil(o.Stocked, 400)
	if !r.bench.CancelOrder(bench, o.ID) {
		t.Fatalf("cancel failed")
	}
	if r.count("STONE") != 12 || r.count("STONE_BLOCK") != 0 {
		t.Fatalf("stone=%d", r.count("STONE"))
	}
	if _, ok := r.bench.Job(bench); ok || len(r.bench.Jobs()) != 0 {
		t.Fatalf("job with no orders still registered")
	}
	r.checkClaimBalance()
}

func TestWorkbench_CancelIdleOnlyOrderDeregisters(t *testing.T) {
	r := newRig(t, 10, 4)
	bench := r.building("STONECUTTER", grid.Vec2i{X: 5, Y: 1})
	o, _ := r.bench.AddOrder(bench, "CUT_STONE", 1)
	j, _ := r.bench.Job(bench)
	if !r.bench.CancelOrder(bench, o.ID) {
		t.Fatalf("cancel failed")
	}
	if !j.Closed() || len(r.bench.Jobs()) != 0 {
		t.Fatalf("closed=%v jobs=%d", j.Closed(), len(r.bench.Jobs()))
	}
	if r.bench.CancelOrder(bench, o.ID) {
		t.Fatalf("second cancel accepted")
	}
}

func TestWorkbench_OrderAddedDuringLastRunKeepsJob(t *testing.T) {
	r := newRig(t, 10, 4)
	bench := r.building("STONECUTTER", grid.Vec2i{X: 5, Y: 1})
	r.agent(grid.Vec2i{X: 0, Y: 1})
	r.drop("STONE", grid.Vec2i{X: 1, Y: 1}, 20)
	first, _ := r.bench.AddOrder(bench, "CUT_STONE", 1)
	j, _ := r.bench.Job(bench)

	r.runUntil(func() bool { return first.Stocked() && j.Busy() && first.Progress < first.Recipe.Work }, 600)
	second, err := r.bench.AddOrder(bench, "CUT_STONE", 1)
	if err != nil {
		t.Fatal(err)
	}
	r.runUntil(func() bool { return second.Crafted == 1 }, 600)
	r.runUntil(func() bool { return len(r.bench.Jobs()) == 0 }, 5)
	if r.count("STONE_BLOCK") != 10 || !j.Closed() {
		t.Fatalf("blocks=%d closed=%v", r.count("STONE_BLOCK"), j.Closed())
	}
	r.checkClaimBalance()
}

func TestWorkbench_BenchRemovedCancelsJob(t *testing.T) {
	r := newRig(t, 10, 4)
	bench := r.building("STONECUTTER", grid.Vec2i{X: 5, Y: 1})
	a := r.agent(grid.Vec2i{X: 0, Y: 1})
	r.drop("STONE", grid.Vec2i{X: 1, Y: 1}, 10)
	o, _ := r.bench.AddOrder(bench, "CUT_STONE", 1)
	r.runUntil(o.Stocked, 400)
	r.step()
	r.w.RemoveBuilding(bench)
	if !a.Idle() || len(r.bench.Jobs()) != 0 || r.count("STONE") != 10 {
		t.Fatalf("idle=%v jobs=%d stone=%d", a.Idle(), len(r.bench.Jobs()), r.count("STONE"))
	}
	r.checkClaimBalance()
}

func TestEnv_DropFailureIsLogged(t *testing.T) {
	r := newRig(t, 4, 2)
	var buf bytes.Buffer
	env := &Env{World: r.w, Logger: log.New(&buf, "", 0)}

	env.dropNear(grid.Cell(grid.Vec2i{X: 1, Y: 0}), "NOPE", 3)
	env.drop("STONE", grid.Vec2i{X: 9, Y: 9}, 2)
	out := buf.String()
	if !strings.Contains(out, "drop NOPE x3") || !strings.Contains(out, "drop STONE x2 at") {
		t.Fatalf("log=%q", out)
	}
	if len(r.w.Items()) != 0 {
		t.Fatalf("failed drops left items: %v", r.w.Items())
	}

	env.dropNear(grid.Cell(grid.Vec2i{X: 1, Y: 0}), "STONE", 4)
	quiet := &Env{World: r.w}
	quiet.drop("NOPE", grid.Vec2i{}, 1)
	if r.count("STONE") != 4 {
		t.Fatalf("stone=%d", r.count("STONE"))
	}
}
