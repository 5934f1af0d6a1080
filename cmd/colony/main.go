package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"colonysim/internal/persistence/indexdb"
	"colonysim/internal/persistence/journal"
	"colonysim/internal/protocol"
	"colonysim/internal/sim/catalogs"
	"colonysim/internal/sim/scenario"
	"colonysim/internal/sim/tuning"
	"colonysim/internal/transport/observer"
)

func main() {
	var (
		configDir    = flag.String("configs", "./configs", "config directory")
		tuningPath   = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		scenarioPath = flag.String("scenario", "./configs/scenarios/quarry.yaml", "scenario to run")
		dataDir      = flag.String("data", "./data", "runtime data directory")
		segmentTicks = flag.Uint64("segment_ticks", 3000, "ticks per journal file (0 = single file)")
		disableDB    = flag.Bool("disable_db", false, "disable the sqlite index")
		observeAddr  = flag.String("observe", "", "observer websocket listen address, e.g. 127.0.0.1:8081 (empty to disable)")
		ticks        = flag.Int("ticks", 0, "ticks to run (default: scenario ticks)")
		realtime     = flag.Bool("realtime", false, "pace ticks at the tuned tick rate")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[colony] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	sc, err := scenario.Load(*scenarioPath)
	if err != nil {
		logger.Fatalf("load scenario: %v", err)
	}
	if *ticks > 0 {
		sc.Ticks = *ticks
	}

	r, err := scenario.Build(sc, cats, tune, logger)
	if err != nil {
		logger.Fatalf("build scenario: %v", err)
	}
	defer r.Close()

	runDir := filepath.Join(*dataDir, "runs", sc.Name)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		logger.Fatalf("run dir: %v", err)
	}

	tickLog := journal.NewTickJournal(runDir, *segmentTicks)
	defer tickLog.Close()
	r.Colony.AddSink(tickLog)

	// Optional read-model index (does not affect sim determinism).
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(runDir, "index.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index: upsert catalogs: %v", err)
		}
		r.Colony.AddSink(idx)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if addr := strings.TrimSpace(*observeAddr); addr != "" {
		hub := observer.NewHub(observer.HelloMsg{
			Type:            protocol.TypeHello,
			ProtocolVersion: protocol.Version,
			Tick:            r.Colony.Tick(),
			TickRateHz:      tune.TickRateHz,
			Width:           r.Scenario.Width,
			Height:          r.Scenario.Height,
			Catalogs: map[string]string{
				"items":     cats.Items.Digest,
				"buildings": cats.Buildings.Digest,
				"recipes":   cats.Recipes.Digest,
			},
		}, logger)
		r.Colony.AddSink(hub)
		stop := serveObserver(addr, hub, logger)
		defer stop()
	}

	var tickC <-chan time.Time
	if *realtime {
		t := time.NewTicker(time.Duration(tune.TickSeconds() * float64(time.Second)))
		defer t.Stop()
		tickC = t.C
	}

	start := time.Now()
	var last uint64
	var digest string
loop:
	for !r.Done() {
		if tickC != nil {
			select {
			case <-ctx.Done():
				break loop
			case <-tickC:
			}
		} else if ctx.Err() != nil {
			break
		}
		e := r.Step()
		last, digest = e.Tick, e.Digest
	}

	logger.Printf("scenario=%s ticks=%d jobs=%d reroutes=%d elapsed=%s",
		sc.Name, r.Colony.Tick(), len(r.Colony.Jobs()), r.Colony.Reroutes(), time.Since(start).Round(time.Millisecond))
	if idx != nil {
		idx.RecordRun(sc.Name, *scenarioPath, r.Colony.Tick(), digest)
		if st := idx.Stats(); st.DropTickTotal > 0 {
			logger.Printf("index dropped %d ticks", st.DropTickTotal)
		}
	}
	fmt.Printf("run ok: scenario=%s last_tick=%d digest=%s\n", sc.Name, last, digest)
}

func serveObserver(addr string, hub *observer.Hub, logger *log.Logger) func() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/v1/observe", hub.WSHandler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Printf("observer listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("observer: %v", err)
		}
	}()
	return func() {
		ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx2)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
