package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario is a starting map plus the orders and timed interventions of one run.
type Scenario struct {
	Name   string `yaml:"name"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Ticks  int    `yaml:"ticks"`

	// Map rows, top row first: '.' ground, '~' water, legend letters place
	// buildings at their origin cell. Width and height default to its size.
	Map    string            `yaml:"map,omitempty"`
	Legend map[string]string `yaml:"legend,omitempty"`

	Buildings []BuildingSpec `yaml:"buildings,omitempty"`
	Items     []ItemSpec     `yaml:"items,omitempty"`
	Agents    []AgentSpec    `yaml:"agents"`
	Orders    []OrderSpec    `yaml:"orders,omitempty"`
	Events    []EventSpec    `yaml:"events,omitempty"`
}

type BuildingSpec struct {
	ID string `yaml:"id"`
	X  int    `yaml:"x"`
	Y  int    `yaml:"y"`
}

type ItemSpec struct {
	ID    string `yaml:"id"`
	X     int    `yaml:"x"`
	Y     int    `yaml:"y"`
	Count int    `yaml:"count"`
}

type AgentSpec struct {
	Name string `yaml:"name"`
	X    int    `yaml:"x"`
	Y    int    `yaml:"y"`
}

// Order kinds.
const (
	OrderMine        = "mine"
	OrderDeconstruct = "deconstruct"
	OrderBuild       = "build"
	OrderCraft       = "craft"
)

type OrderSpec struct {
	Kind string `yaml:"kind"`
	X    int    `yaml:"x"`
	Y    int    `yaml:"y"`
	W    int    `yaml:"w"`
	H    int    `yaml:"h"`

	Building string `yaml:"building,omitempty"`
	Recipe   string `yaml:"recipe,omitempty"`
	Quantity int    `yaml:"quantity,omitempty"`
}

// Event kinds.
const (
	EventPlace   = "place"
	EventRemove  = "remove"
	EventTerrain = "terrain"
	EventDrop    = "drop"
	EventOrder   = "order"
	EventCancel  = "cancel"
	EventAbandon = "abandon"
)

// EventSpec is applied right before the tick it names is stepped.
type EventSpec struct {
	Tick int    `yaml:"tick"`
	Kind string `yaml:"kind"`
	X    int    `yaml:"x"`
	Y    int    `yaml:"y"`

	Building string     `yaml:"building,omitempty"`
	Terrain  string     `yaml:"terrain,omitempty"`
	Item     string     `yaml:"item,omitempty"`
	Count    int        `yaml:"count,omitempty"`
	Agent    string     `yaml:"agent,omitempty"`
	Order    *OrderSpec `yaml:"order,omitempty"`
}

func Load(path string) (Scenario, error) {
	var sc Scenario
	b, err := os.ReadFile(path)
	if err != nil {
		return sc, err
	}
	name := filepath.Base(path)
	if err := yaml.Unmarshal(b, &sc); err != nil {
		return sc, fmt.Errorf("%s: %w", name, err)
	}
	if sc.Name == "" {
		sc.Name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	sc.Normalize()
	if err := sc.Validate(); err != nil {
		return sc, fmt.Errorf("%s: %w", name, err)
	}
	return sc, nil
}

// rows returns the map lines, blank lines and indentation trimmed.
func (s Scenario) rows() []string {
	var out []string
	for _, line := range strings.Split(s.Map, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func (s *Scenario) Normalize() {
	if s == nil {
		return
	}
	if rows := s.rows(); len(rows) > 0 {
		if s.Height <= 0 {
			s.Height = len(rows)
		}
		if s.Width <= 0 {
			for _, r := range rows {
				if len(r) > s.Width {
					s.Width = len(r)
				}
			}
		}
	}
	if s.Ticks <= 0 {
		s.Ticks = 600
	}
	for i := range s.Agents {
		if strings.TrimSpace(s.Agents[i].Name) == "" {
			s.Agents[i].Name = fmt.Sprintf("agent%d", i+1)
		}
	}
	for i := range s.Orders {
		normalizeOrder(&s.Orders[i])
	}
	for i := range s.Events {
		if s.Events[i].Order != nil {
			normalizeOrder(s.Events[i].Order)
		}
		if s.Events[i].Kind == EventTerrain && s.Events[i].Terrain == "" {
			s.Events[i].Terrain = "ground"
		}
	}
}

func normalizeOrder(o *OrderSpec) {
	o.Kind = strings.ToLower(strings.TrimSpace(o.Kind))
	if o.W <= 0 {
		o.W = 1
	}
	if o.H <= 0 {
		o.H = 1
	}
	if o.Kind == OrderCraft && o.Quantity <= 0 {
		o.Quantity = 1
	}
}

// Validate checks structure and bounds; catalog ids are checked when the
// scenario is built.
func (s Scenario) Validate() error {
	s.Normalize()
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("width and height must be > 0")
	}
	in := func(x, y int) bool { return x >= 0 && y >= 0 && x < s.Width && y < s.Height }
	for y, row := range s.rows() {
		for x, ch := range row {
			switch ch {
			case '.', '~':
			default:
				if _, ok := s.Legend[string(ch)]; !ok {
					return fmt.Errorf("map row %d col %d: %q not in legend", y, x, ch)
				}
			}
		}
	}
	for i, b := range s.Buildings {
		if strings.TrimSpace(b.ID) == "" {
			return fmt.Errorf("buildings[%d] id must not be empty", i)
		}
		if !in(b.X, b.Y) {
			return fmt.Errorf("buildings[%d] (%d,%d) out of bounds", i, b.X, b.Y)
		}
	}
	for i, it := range s.Items {
		if strings.TrimSpace(it.ID) == "" || it.Count <= 0 {
			return fmt.Errorf("items[%d] needs an id and count > 0", i)
		}
		if !in(it.X, it.Y) {
			return fmt.Errorf("items[%d] (%d,%d) out of bounds", i, it.X, it.Y)
		}
	}
	if len(s.Agents) == 0 {
		return fmt.Errorf("agents must not be empty")
	}
	names := map[string]bool{}
	for i, a := range s.Agents {
		if names[a.Name] {
			return fmt.Errorf("duplicate agent name: %s", a.Name)
		}
		names[a.Name] = true
		if !in(a.X, a.Y) {
			return fmt.Errorf("agents[%d] (%d,%d) out of bounds", i, a.X, a.Y)
		}
	}
	for i, o := range s.Orders {
		if err := validateOrder(o, in); err != nil {
			return fmt.Errorf("orders[%d]: %w", i, err)
		}
	}
	for i, e := range s.Events {
		if e.Tick < 0 {
			return fmt.Errorf("events[%d] tick must be >= 0", i)
		}
		switch e.Kind {
		case EventPlace:
			if e.Building == "" {
				return fmt.Errorf("events[%d] place needs building", i)
			}
		case EventRemove, EventCancel:
		case EventTerrain:
			if e.Terrain != "ground" && e.Terrain != "water" {
				return fmt.Errorf("events[%d] terrain must be ground or water", i)
			}
		case EventDrop:
			if e.Item == "" || e.Count <= 0 {
				return fmt.Errorf("events[%d] drop needs item and count > 0", i)
			}
		case EventOrder:
			if e.Order == nil {
				return fmt.Errorf("events[%d] order missing", i)
			}
			if err := validateOrder(*e.Order, in); err != nil {
				return fmt.Errorf("events[%d]: %w", i, err)
			}
			continue
		case EventAbandon:
			if !names[e.Agent] {
				return fmt.Errorf("events[%d] unknown agent %q", i, e.Agent)
			}
			continue
		default:
			return fmt.Errorf("events[%d] unknown kind %q", i, e.Kind)
		}
		if !in(e.X, e.Y) {
			return fmt.Errorf("events[%d] (%d,%d) out of bounds", i, e.X, e.Y)
		}
	}
	return nil
}

func validateOrder(o OrderSpec, in func(x, y int) bool) error {
	switch o.Kind {
	case OrderMine, OrderDeconstruct:
	case OrderBuild:
		if o.Building == "" {
			return fmt.Errorf("build order needs building")
		}
	case OrderCraft:
		if o.Recipe == "" {
			return fmt.Errorf("craft order needs recipe")
		}
	default:
		return fmt.Errorf("unknown order kind %q", o.Kind)
	}
	if !in(o.X, o.Y) {
		return fmt.Errorf("(%d,%d) out of bounds", o.X, o.Y)
	}
	return nil
}
