package journal

import (
	"fmt"
	"sort"
	"strings"

	"colonysim/internal/protocol"
	"colonysim/internal/sim/colony"
)

// Summary aggregates a journal into tick range, event counts and task
// failure counts by code.
type Summary struct {
	FirstTick  uint64
	LastTick   uint64
	Ticks      uint64
	LastDigest string

	Events   map[string]int
	Failures map[string]int
	// Gaps counts places where a tick was skipped.
	Gaps int
}

func NewSummary() *Summary {
	return &Summary{Events: map[string]int{}, Failures: map[string]int{}}
}

func (s *Summary) Add(e colony.TickEntry) {
	if s.Ticks > 0 && e.Tick != s.LastTick+1 {
		s.Gaps++
	}
	if s.Ticks == 0 {
		s.FirstTick = e.Tick
	}
	s.LastTick = e.Tick
	s.LastDigest = e.Digest
	s.Ticks++
	for _, ev := range e.Events {
		s.Events[ev.Type()]++
		if ev.Type() != protocol.EventTaskFail {
			continue
		}
		if code, ok := ev["code"].(string); ok {
			s.Failures[code]++
		}
	}
}

func (s *Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ticks=%d range=[%d..%d] gaps=%d digest=%s\n", s.Ticks, s.FirstTick, s.LastTick, s.Gaps, s.LastDigest)
	for _, k := range sortedKeys(s.Events) {
		fmt.Fprintf(&b, "  event %-16s %d\n", k, s.Events[k])
	}
	for _, k := range sortedKeys(s.Failures) {
		fmt.Fprintf(&b, "  fail  %-16s %d\n", k, s.Failures[k])
	}
	return b.String()
}

// Summarize reads every journal file under eventsDir.
func Summarize(eventsDir string) (*Summary, error) {
	s := NewSummary()
	if err := ReadDir(eventsDir, func(e colony.TickEntry) error {
		s.Add(e)
		return nil
	}); err != nil {
		return nil, err
	}
	return s, nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
