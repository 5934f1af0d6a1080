package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickRateHz int `yaml:"tick_rate_hz"`

	Agent  AgentTuning  `yaml:"agent"`
	Haul   HaulTuning   `yaml:"haul"`
	Build  BuildTuning  `yaml:"build"`
	Events EventsTuning `yaml:"events"`
}

type AgentTuning struct {
	// Cells per second along a path; diagonal steps cost sqrt(2).
	MoveSpeed float64 `yaml:"move_speed"`
	// Progress units per second for labor tasks (mining, construction, crafting).
	WorkSpeed float64 `yaml:"work_speed"`
}

type HaulTuning struct {
	PickupSeconds  float64 `yaml:"pickup_seconds"`
	DropoffSeconds float64 `yaml:"dropoff_seconds"`
}

type BuildTuning struct {
	// Deconstruction takes this fraction of the build work.
	DeconstructWorkScale float64 `yaml:"deconstruct_work_scale"`
	// Fraction of build materials returned by deconstruction.
	RefundRatio float64 `yaml:"refund_ratio"`
	// A builder gives up waiting for its footprint to clear after this long.
	ClearTimeoutSeconds float64 `yaml:"clear_timeout_seconds"`
}

type EventsTuning struct {
	// Agents buffer at most this many undrained events.
	MaxPerAgent int `yaml:"max_per_agent"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz: 10,
		Agent: AgentTuning{
			MoveSpeed: 4,
			WorkSpeed: 1,
		},
		Haul: HaulTuning{
			PickupSeconds:  0.5,
			DropoffSeconds: 0.5,
		},
		Build: BuildTuning{
			DeconstructWorkScale: 0.5,
			RefundRatio:          1,
			ClearTimeoutSeconds:  10,
		},
		Events: EventsTuning{
			MaxPerAgent: 256,
		},
	}
}

// TickSeconds is the simulated duration of one tick.
func (t Tuning) TickSeconds() float64 {
	if t.TickRateHz <= 0 {
		return 0.1
	}
	return 1 / float64(t.TickRateHz)
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be > 0")
	}
	if t.Agent.MoveSpeed <= 0 {
		return fmt.Errorf("agent.move_speed must be > 0")
	}
	if t.Agent.WorkSpeed <= 0 {
		return fmt.Errorf("agent.work_speed must be > 0")
	}
	if t.Haul.PickupSeconds < 0 || t.Haul.DropoffSeconds < 0 {
		return fmt.Errorf("haul timings must be >= 0")
	}
	if t.Build.ClearTimeoutSeconds < 0 {
		return fmt.Errorf("build.clear_timeout_seconds must be >= 0")
	}
	if t.Build.RefundRatio < 0 || t.Build.RefundRatio > 1 {
		return fmt.Errorf("build.refund_ratio must be within [0,1]")
	}
	return nil
}
