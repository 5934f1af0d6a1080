package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"colonysim/internal/persistence/journal"
	"colonysim/internal/sim/catalogs"
	"colonysim/internal/sim/colony"
	"colonysim/internal/sim/scenario"
	"colonysim/internal/sim/tuning"
)

var errStop = errors.New("stop")

func main() {
	var (
		eventsDir    = flag.String("events", "", "events dir containing events-*.jsonl.zst")
		scenarioPath = flag.String("scenario", "", "scenario to re-run and verify against the journal (optional)")
		configDir    = flag.String("configs", "./configs", "config directory")
		tuningPath   = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		fromTick     = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick       = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	if *eventsDir == "" {
		fmt.Fprintln(os.Stderr, "missing -events")
		os.Exit(2)
	}

	sum, err := journal.Summarize(*eventsDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "summarize:", err)
		os.Exit(1)
	}
	fmt.Print(sum.String())

	if *scenarioPath == "" {
		return
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	tp := *tuningPath
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		tune = tuning.Defaults()
	}
	sc, err := scenario.Load(*scenarioPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load scenario:", err)
		os.Exit(1)
	}
	r, err := scenario.Build(sc, cats, tune, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "build scenario:", err)
		os.Exit(1)
	}
	defer r.Close()

	checked, err := verify(r, *eventsDir, *fromTick, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks scenario=%s\n", checked, sc.Name)
}

// verify steps r alongside the journal and compares every digest from
// verifyFrom on. The journal must start at the scenario's first tick.
func verify(r *scenario.Runner, eventsDir string, verifyFrom, toTick uint64) (uint64, error) {
	var checked uint64
	err := journal.ReadDir(eventsDir, func(entry colony.TickEntry) error {
		if toTick != 0 && entry.Tick > toTick {
			return errStop
		}
		if entry.Tick != r.Colony.Tick() {
			return fmt.Errorf("tick mismatch: want=%d got=%d", r.Colony.Tick(), entry.Tick)
		}
		got := r.Step()
		if got.Tick != entry.Tick {
			return fmt.Errorf("internal tick mismatch: stepped=%d entry=%d", got.Tick, entry.Tick)
		}
		if got.Tick < verifyFrom {
			return nil
		}
		checked++
		if got.Digest != entry.Digest {
			return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", got.Tick, got.Digest, entry.Digest)
		}
		return nil
	})
	if errors.Is(err, errStop) {
		err = nil
	}
	return checked, err
}
