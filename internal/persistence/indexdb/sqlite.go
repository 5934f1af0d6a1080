package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"colonysim/internal/protocol"
	"colonysim/internal/sim/catalogs"
	"colonysim/internal/sim/colony"
	"colonysim/internal/sim/tuning"
)

// SQLiteIndex is a queryable secondary copy of the tick journal: ticks,
// events and one row per work with its outcome. Writes are queued and applied
// by a single goroutine; the simulation never waits on the database.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick atomic.Uint64
	dropRun  atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqRun
)

type req struct {
	kind reqKind

	tick colony.TickEntry
	run  runRow
}

type runRow struct {
	Name       string
	Scenario   string
	Ticks      uint64
	Digest     string
	RecordedAt string
}

// Stats reports queue pressure and how many writes were dropped.
type Stats struct {
	QueueDepth    int
	QueueCapacity int
	DropTickTotal uint64
	DropRunTotal  uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Long runs with many agents produce event bursts; keep a deep queue.
		ch: make(chan req, 262144),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			events INTEGER NOT NULL,
			busy_agents INTEGER NOT NULL,
			jobs INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			type TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			work_id INTEGER NOT NULL,
			code TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_type_tick ON events(type, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_events_agent_tick ON events(agent_id, tick);`,
		`CREATE TABLE IF NOT EXISTS works (
			work_id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			claimed_tick INTEGER NOT NULL,
			ended_tick INTEGER,
			outcome TEXT,
			code TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_works_outcome ON works(outcome);`,
		`CREATE TABLE IF NOT EXISTS runs (
			name TEXT PRIMARY KEY,
			scenario TEXT NOT NULL,
			ticks INTEGER NOT NULL,
			digest TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropTickTotal: s.dropTick.Load(),
		DropRunTotal:  s.dropRun.Load(),
	}
}

func (s *SQLiteIndex) WriteTick(entry colony.TickEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		// The journal stays the source of truth when the indexer falls behind.
		s.dropTick.Add(1)
	}
	return nil
}

// RecordRun stores the final tick and digest of a finished run.
func (s *SQLiteIndex) RecordRun(name, scenarioPath string, ticks uint64, digest string) {
	if s == nil || s.closed.Load() || name == "" {
		return
	}
	r := runRow{
		Name:       name,
		Scenario:   scenarioPath,
		Ticks:      ticks,
		Digest:     digest,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqRun, run: r}:
	default:
		s.dropRun.Add(1)
	}
}

// UpsertCatalogs records the catalogs and tuning a run was started with.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	read := func(name, file, digest string) {
		if configDir == "" {
			return
		}
		b, err := os.ReadFile(filepath.Join(configDir, file))
		if err != nil {
			return
		}
		rows = append(rows, kv{name: name, digest: digest, json: b})
	}
	read("items", "items.json", cats.Items.Digest)
	read("buildings", "buildings.json", cats.Buildings.Digest)
	read("recipes", "recipes.json", cats.Recipes.Digest)
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared on db, executed within the current tx.
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,events,busy_agents,jobs,raw_json) VALUES(?,?,?,?,?,?)`)
	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(tick,seq,type,agent_id,work_id,code,raw_json) VALUES(?,?,?,?,?,?,?)`)
	insertWork, _ := s.db.Prepare(`INSERT OR REPLACE INTO works(work_id,name,agent_id,claimed_tick) VALUES(?,?,?,?)`)
	endWork, _ := s.db.Prepare(`UPDATE works SET ended_tick=?, outcome=?, code=? WHERE work_id=? AND outcome IS NULL`)
	insertRun, _ := s.db.Prepare(`INSERT OR REPLACE INTO runs(name,scenario,ticks,digest,recorded_at) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertEvent, insertWork, endWork, insertRun} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil {
			return true
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			e := r.tick
			b, _ := json.Marshal(e)
			busy := 0
			for _, a := range e.Agents {
				if a.WorkID != 0 {
					busy++
				}
			}
			if !exec(insertTick, int64(e.Tick), e.Digest, len(e.Events), busy, e.Jobs, string(b)) {
				continue
			}
			for i, ev := range e.Events {
				raw, _ := json.Marshal(ev)
				workID := int64(uintField(ev, "work_id"))
				code := stringField(ev, "code")
				if !exec(insertEvent, int64(e.Tick), i, ev.Type(), stringField(ev, "agent_id"), workID, code, string(raw)) {
					break
				}
				ok := true
				switch ev.Type() {
				case protocol.EventWorkClaimed:
					ok = exec(insertWork, workID, stringField(ev, "work"), stringField(ev, "agent_id"), int64(e.Tick))
				case protocol.EventWorkDone, protocol.EventWorkFail, protocol.EventWorkCanceled, protocol.EventWorkAbandoned:
					ok = exec(endWork, int64(e.Tick), ev.Type(), code, workID)
				}
				if !ok {
					break
				}
			}

		case reqRun:
			ru := r.run
			exec(insertRun, ru.Name, ru.Scenario, int64(ru.Ticks), ru.Digest, ru.RecordedAt)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}

func stringField(e protocol.Event, key string) string {
	s, _ := e[key].(string)
	return s
}

// uintField reads a numeric event field whether it is still a Go integer or
// came back from JSON as a float.
func uintField(e protocol.Event, key string) uint64 {
	switch v := e[key].(type) {
	case uint64:
		return v
	case int:
		if v > 0 {
			return uint64(v)
		}
	case int64:
		if v > 0 {
			return uint64(v)
		}
	case float64:
		if v > 0 {
			return uint64(v)
		}
	}
	return 0
}
