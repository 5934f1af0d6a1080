package scenario

import (
	"fmt"
	"io"
	"log"
	"sort"

	"colonysim/internal/sim/catalogs"
	"colonysim/internal/sim/colony"
	"colonysim/internal/sim/grid"
	"colonysim/internal/sim/jobs"
	"colonysim/internal/sim/tuning"
	"colonysim/internal/sim/world"
)

// Runner drives a colony through a scenario, applying timed events before
// the tick they name.
type Runner struct {
	Scenario Scenario
	Colony   *colony.Colony

	events []EventSpec
	next   int
	log    *log.Logger
}

func Build(sc Scenario, cats *catalogs.Catalogs, tune tuning.Tuning, logger *log.Logger) (*Runner, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	sc.Normalize()
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	w, err := world.New(world.Config{Width: sc.Width, Height: sc.Height}, cats)
	if err != nil {
		return nil, err
	}

	for y, row := range sc.rows() {
		for x, ch := range row {
			p := grid.Vec2i{X: x, Y: y}
			switch ch {
			case '.':
			case '~':
				w.SetTerrain(p, world.TerrainWater)
			default:
				if err := place(w, sc.Legend[string(ch)], p); err != nil {
					return nil, fmt.Errorf("map %v: %w", p, err)
				}
			}
		}
	}
	for i, b := range sc.Buildings {
		if err := place(w, b.ID, grid.Vec2i{X: b.X, Y: b.Y}); err != nil {
			return nil, fmt.Errorf("buildings[%d]: %w", i, err)
		}
	}
	for i, it := range sc.Items {
		if _, err := w.DropItem(it.ID, grid.Vec2i{X: it.X, Y: it.Y}, it.Count); err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, err)
		}
	}

	c := colony.New(w, tune, logger)
	r := &Runner{Scenario: sc, Colony: c, log: logger}
	for i, a := range sc.Agents {
		if _, err := c.Spawn(a.Name, grid.Vec2i{X: a.X, Y: a.Y}); err != nil {
			c.Close()
			return nil, fmt.Errorf("agents[%d]: %w", i, err)
		}
	}
	for i, o := range sc.Orders {
		if err := r.order(o); err != nil {
			c.Close()
			return nil, fmt.Errorf("orders[%d]: %w", i, err)
		}
	}

	r.events = append([]EventSpec(nil), sc.Events...)
	sort.SliceStable(r.events, func(i, j int) bool { return r.events[i].Tick < r.events[j].Tick })
	return r, nil
}

func (r *Runner) Close() { r.Colony.Close() }

// Done reports whether the scenario's tick budget is spent.
func (r *Runner) Done() bool { return r.Colony.Tick() >= uint64(r.Scenario.Ticks) }

// Step applies due events and advances one tick.
func (r *Runner) Step() colony.TickEntry {
	now := r.Colony.Tick()
	for r.next < len(r.events) && uint64(r.events[r.next].Tick) <= now {
		e := r.events[r.next]
		r.next++
		if err := r.apply(e); err != nil {
			r.log.Printf("scenario %s tick=%d %s: %v", r.Scenario.Name, now, e.Kind, err)
		}
	}
	return r.Colony.Step(r.Colony.Tuning.TickSeconds())
}

// Run steps until the tick budget is spent and returns the last entry.
func (r *Runner) Run() colony.TickEntry {
	var last colony.TickEntry
	for !r.Done() {
		last = r.Step()
	}
	return last
}

func place(w *world.World, id string, at grid.Vec2i) error {
	def, ok := w.Catalogs().Building(id)
	if !ok {
		return fmt.Errorf("unknown building %q", id)
	}
	_, err := w.PlaceBuilding(def, at)
	return err
}

func (r *Runner) orders(o OrderSpec) (jobs.Orders, error) {
	c := r.Colony
	switch o.Kind {
	case OrderMine:
		return c.Mining, nil
	case OrderDeconstruct:
		return c.Deconstruct, nil
	case OrderBuild:
		def, ok := c.World.Catalogs().Building(o.Building)
		if !ok {
			return nil, fmt.Errorf("unknown building %q", o.Building)
		}
		return c.Build.Orders(def), nil
	case OrderCraft:
		if _, ok := c.World.Catalogs().Recipe(o.Recipe); !ok {
			return nil, fmt.Errorf("unknown recipe %q", o.Recipe)
		}
		return c.Workbench.Orders(o.Recipe, o.Quantity), nil
	}
	return nil, fmt.Errorf("unknown order kind %q", o.Kind)
}

func (r *Runner) order(o OrderSpec) error {
	view, err := r.orders(o)
	if err != nil {
		return err
	}
	area := grid.RectAt(grid.Vec2i{X: o.X, Y: o.Y}, o.W, o.H)
	if !view.Applicable(area) || !view.Order(area) {
		return fmt.Errorf("%s order over %v not applicable", o.Kind, area)
	}
	return nil
}

func (r *Runner) apply(e EventSpec) error {
	c := r.Colony
	p := grid.Vec2i{X: e.X, Y: e.Y}
	switch e.Kind {
	case EventPlace:
		return place(c.World, e.Building, p)
	case EventRemove:
		b := c.World.BuildingAt(p)
		if b == nil {
			return fmt.Errorf("no building at %v", p)
		}
		c.World.RemoveBuilding(b)
	case EventTerrain:
		t := world.TerrainGround
		if e.Terrain == "water" {
			t = world.TerrainWater
		}
		c.World.SetTerrain(p, t)
	case EventDrop:
		_, err := c.World.DropItem(e.Item, p, e.Count)
		return err
	case EventOrder:
		return r.order(*e.Order)
	case EventCancel:
		j := r.jobAt(p)
		if j == nil {
			return fmt.Errorf("no job at %v", p)
		}
		c.CancelJob(j)
	case EventAbandon:
		for _, a := range c.Agents() {
			if a.Name == e.Agent {
				c.AbandonWork(a)
				return nil
			}
		}
		return fmt.Errorf("unknown agent %q", e.Agent)
	}
	return nil
}

// jobAt finds the job whose building or site covers p.
func (r *Runner) jobAt(p grid.Vec2i) jobs.Job {
	c := r.Colony
	if b := c.World.BuildingAt(p); b != nil {
		if j, ok := c.Mining.Job(b); ok {
			return j
		}
		if j, ok := c.Deconstruct.Job(b); ok {
			return j
		}
		if j, ok := c.Workbench.Job(b); ok {
			return j
		}
	}
	for _, j := range c.Build.Jobs() {
		if j.Site.Contains(p) {
			return j
		}
	}
	return nil
}
