package indexdb

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"colonysim/internal/protocol"
	"colonysim/internal/sim/catalogs"
	"colonysim/internal/sim/colony"
	"colonysim/internal/sim/tuning"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: colony.TickEntry{Tick: 1}}

	_ = s.WriteTick(colony.TickEntry{Tick: 2})
	s.RecordRun("r1", "configs/scenarios/quarry.yaml", 10, "abc")

	st := s.Stats()
	if st.DropTickTotal != 1 {
		t.Fatalf("DropTickTotal=%d want=1", st.DropTickTotal)
	}
	if st.DropRunTotal != 1 {
		t.Fatalf("DropRunTotal=%d want=1", st.DropRunTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_WorksAndEvents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")

	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	if err := idx.UpsertCatalogs("../../../configs", cats, tuning.Defaults()); err != nil {
		t.Fatalf("UpsertCatalogs: %v", err)
	}

	busy := []colony.AgentState{{ID: "A1", WorkID: 1, Work: "mine"}}
	_ = idx.WriteTick(colony.TickEntry{Tick: 0, Digest: "d0", Jobs: 1, Agents: busy, Events: []protocol.Event{
		{"type": protocol.EventWorkClaimed, "agent_id": "A1", "work_id": uint64(1), "work": "mine", "t": uint64(0)},
	}})
	_ = idx.WriteTick(colony.TickEntry{Tick: 1, Digest: "d1", Jobs: 1, Agents: busy})
	_ = idx.WriteTick(colony.TickEntry{Tick: 2, Digest: "d2", Agents: []colony.AgentState{{ID: "A1"}}, Events: []protocol.Event{
		{"type": protocol.EventTaskFail, "agent_id": "A1", "work_id": uint64(1), "code": protocol.ErrUnreachable},
		{"type": protocol.EventWorkFail, "agent_id": "A1", "work_id": uint64(1), "work": "mine", "code": protocol.ErrUnreachable},
	}})
	idx.RecordRun("quarry-1", "configs/scenarios/quarry.yaml", 3, "d2")
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var (
		name, agent, outcome, code string
		claimed, ended             int64
	)
	row := db.QueryRow(`SELECT name,agent_id,claimed_tick,ended_tick,outcome,code FROM works WHERE work_id=1`)
	if err := row.Scan(&name, &agent, &claimed, &ended, &outcome, &code); err != nil {
		t.Fatalf("Scan works: %v", err)
	}
	if name != "mine" || agent != "A1" || claimed != 0 || ended != 2 || outcome != protocol.EventWorkFail || code != protocol.ErrUnreachable {
		t.Fatalf("works row: %s %s %d %d %s %s", name, agent, claimed, ended, outcome, code)
	}

	var ticks, busyAgents int
	if err := db.QueryRow(`SELECT COUNT(*), SUM(busy_agents) FROM ticks`).Scan(&ticks, &busyAgents); err != nil {
		t.Fatalf("Scan ticks: %v", err)
	}
	if ticks != 3 || busyAgents != 2 {
		t.Fatalf("ticks=%d busy=%d", ticks, busyAgents)
	}

	var fails int
	if err := db.QueryRow(`SELECT COUNT(*) FROM events WHERE type=? AND code=?`, protocol.EventTaskFail, protocol.ErrUnreachable).Scan(&fails); err != nil {
		t.Fatalf("Scan events: %v", err)
	}
	if fails != 1 {
		t.Fatalf("task fails=%d", fails)
	}

	var runTicks int64
	var digest string
	if err := db.QueryRow(`SELECT ticks,digest FROM runs WHERE name='quarry-1'`).Scan(&runTicks, &digest); err != nil {
		t.Fatalf("Scan runs: %v", err)
	}
	if runTicks != 3 || digest != "d2" {
		t.Fatalf("run row: %d %s", runTicks, digest)
	}

	var catalogRows int
	if err := db.QueryRow(`SELECT COUNT(*) FROM catalogs`).Scan(&catalogRows); err != nil {
		t.Fatalf("Scan catalogs: %v", err)
	}
	if catalogRows != 4 {
		t.Fatalf("catalog rows=%d want 4", catalogRows)
	}
}

func TestSQLiteIndex_NilAndClosedAreNoops(t *testing.T) {
	var nilIdx *SQLiteIndex
	if err := nilIdx.WriteTick(colony.TickEntry{}); err != nil {
		t.Fatalf("nil WriteTick: %v", err)
	}
	nilIdx.RecordRun("x", "y", 1, "z")
	if st := nilIdx.Stats(); st.QueueCapacity != 0 {
		t.Fatalf("nil stats=%+v", st)
	}

	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "sub", "index.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := idx.WriteTick(colony.TickEntry{Tick: 9}); err != nil {
		t.Fatalf("WriteTick after close: %v", err)
	}
	if _, err := OpenSQLite(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
