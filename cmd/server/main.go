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
	"strconv"
	"strings"
	"syscall"
	"time"

	"capitolia.gg/internal/persistence/indexdb"
	persistlog "capitolia.gg/internal/persistence/log"
	"capitolia.gg/internal/persistence/snapshot"
	"capitolia.gg/internal/sim/catalogs"
	"capitolia.gg/internal/sim/tuning"
	"capitolia.gg/internal/sim/world"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "capitolia_1", "world id")
		seed       = flag.Int64("seed", 1337, "world seed (used only when starting a fresh world)")
		configDir  = flag.String("configs", "./configs", "config directory")
		schemaDir  = flag.String("schemas", "./schemas", "json schema directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite read-model index")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	// Optional: read-model index backend (does not affect commit determinism).
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(worldDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index backend: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	w, err := world.New(world.Config{
		ID:                 *worldID,
		Seed:               *seed,
		TurnEvery:          time.Duration(tune.TurnEveryMS) * time.Millisecond,
		TurnCooldown:       time.Duration(tune.TurnCooldownMS) * time.Millisecond,
		SnapshotEveryTurns: tune.SnapshotEveryTurns,
		InterestPermille:   tune.InterestPermille,
		EventSpawnPermille: tune.EventSpawnPermille,
		MaxNews:            tune.MaxNews,
		MaxInbox:           tune.MaxInbox,
		ChangeRing:         tune.ChangeRing,
		SubscriberBuf:      tune.SubscriberBuf,
		PriceHistory:       tune.PriceHistory,
		StarterCash:        tune.StarterCash,
		StarterBank:        tune.StarterBank,
		RateLimits: world.RateLimitConfig{
			MessageWindowTurns: tune.RateLimits.MessageWindowTurns,
			MessageMax:         tune.RateLimits.MessageMax,
			GambleWindowTurns:  tune.RateLimits.GambleWindowTurns,
			GambleMax:          tune.RateLimits.GambleMax,
		},
	}, cats)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if err := w.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s turn=%d", filepath.Base(snapshotToLoad), w.CurrentTurn())
	}

	ctx, cancel := signalContext()
	defer cancel()

	commitLog := persistlog.NewCommitLogger(worldDir)
	defer commitLog.Close()
	w.SetCommitLogger(multiCommitLogger{a: commitLog, b: idx})

	changeLog := persistlog.NewChangeLogger(worldDir)
	defer changeLog.Close()

	// Change feeder: mirrors every published change into the JSONL log and
	// the sqlite index.
	feed := w.Notifier().Subscribe(4096)
	go func() {
		defer w.Notifier().Unsubscribe(feed)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-feed.C():
				if !ok {
					logger.Printf("change feeder dropped; reads fall back to the ring")
					return
				}
				_ = changeLog.WriteChange(ev)
				if idx != nil {
					idx.RecordChange(ev)
				}
			}
		}
	}()

	// Snapshot writer.
	snapCh := make(chan snapshot.StateV1, 2)
	w.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Turn))
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				if idx != nil {
					idx.RecordSnapshot(path, snap)
				}
				logger.Printf("snapshot written turn=%d rev=%d", snap.Header.Turn, snap.Revision)
			}
		}
	}()

	go func() {
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	mux, err := buildMux(w, idx, *worldID, *schemaDir, logger)
	if err != nil {
		logger.Fatalf("build mux: %v", err)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
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

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTurn uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		base := strings.TrimSuffix(name, ".snap.zst")
		turn, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || turn > bestTurn {
			bestTurn = turn
			best = filepath.Join(dir, name)
		}
	}
	return best
}

type multiCommitLogger struct {
	a *persistlog.CommitLogger
	b *indexdb.SQLiteIndex
}

func (m multiCommitLogger) WriteCommit(entry world.CommitLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteCommit(entry)
	}
	if m.b != nil {
		m.b.RecordCommit(entry)
	}
	return nil
}
