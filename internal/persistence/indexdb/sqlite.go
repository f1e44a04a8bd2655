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

	"capitolia.gg/internal/persistence/snapshot"
	"capitolia.gg/internal/sim/catalogs"
	"capitolia.gg/internal/sim/tuning"
	"capitolia.gg/internal/sim/world"
)

// SQLiteIndex is a queryable secondary index over the change feed and the
// snapshot register. Writes are buffered and applied by a single goroutine;
// the JSONL logs remain the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqChange reqKind = iota + 1
	reqCommit
	reqSnapshot
)

type req struct {
	kind reqKind

	change   world.ChangeEvent
	commit   world.CommitLogEntry
	snapshot snapshotRow
}

type snapshotRow struct {
	Turn     uint64
	Revision uint64
	Path     string
	Seed     int64
	Actors   int
	Markets  int
	Holdings int
	Requests int
	Events   int
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
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
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
		`CREATE TABLE IF NOT EXISTS changes (
			revision INTEGER PRIMARY KEY,
			kind TEXT NOT NULL,
			at TEXT NOT NULL,
			payload_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_changes_kind_rev ON changes(kind, revision);`,
		`CREATE TABLE IF NOT EXISTS commits (
			at INTEGER NOT NULL,
			label TEXT NOT NULL,
			turn INTEGER NOT NULL,
			revision INTEGER NOT NULL,
			digest TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_commits_turn ON commits(turn);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			turn INTEGER PRIMARY KEY,
			revision INTEGER NOT NULL,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			actors INTEGER NOT NULL,
			markets INTEGER NOT NULL,
			holdings INTEGER NOT NULL,
			requests INTEGER NOT NULL,
			events INTEGER NOT NULL
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

func (s *SQLiteIndex) RecordChange(ev world.ChangeEvent) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqChange, change: ev}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
	}
}

func (s *SQLiteIndex) RecordCommit(entry world.CommitLogEntry) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqCommit, commit: entry}:
	default:
	}
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.StateV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Turn:     snap.Header.Turn,
		Revision: snap.Revision,
		Path:     path,
		Seed:     snap.Seed,
		Actors:   len(snap.Actors),
		Markets:  len(snap.Markets),
		Holdings: len(snap.Holdings),
		Requests: len(snap.Requests),
		Events:   len(snap.Events),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
	}
}

// LatestSnapshot returns the path and turn of the most recent recorded
// snapshot, or ("",0,nil) when none exists yet.
func (s *SQLiteIndex) LatestSnapshot() (string, uint64, error) {
	if s == nil {
		return "", 0, nil
	}
	row := s.db.QueryRow(`SELECT path, turn FROM snapshots ORDER BY turn DESC LIMIT 1`)
	var path string
	var turn uint64
	if err := row.Scan(&path, &turn); err != nil {
		if err == sql.ErrNoRows {
			return "", 0, nil
		}
		return "", 0, err
	}
	return path, turn, nil
}

// ChangesSince reads back indexed changes with revision > rev, oldest
// first. It serves feed queries that outrun the in-memory ring.
func (s *SQLiteIndex) ChangesSince(rev uint64, limit int) ([]world.ChangeEvent, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT revision, kind, at, payload_json FROM changes WHERE revision > ? ORDER BY revision ASC LIMIT ?`,
		int64(rev), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []world.ChangeEvent
	for rows.Next() {
		var (
			revision int64
			kind     string
			at       string
			payload  string
		)
		if err := rows.Scan(&revision, &kind, &at, &payload); err != nil {
			return nil, err
		}
		ev := world.ChangeEvent{Kind: kind, Revision: uint64(revision)}
		if t, err := time.Parse(time.RFC3339Nano, at); err == nil {
			ev.At = t
		}
		if payload != "" {
			_ = json.Unmarshal([]byte(payload), &ev.Payload)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	raw := map[string][]byte{}
	read := func(name, path string) {
		b, err := os.ReadFile(path)
		if err != nil {
			return
		}
		raw[name] = b
	}
	if configDir != "" {
		read("jobs", filepath.Join(configDir, "jobs.yaml"))
		read("properties", filepath.Join(configDir, "properties.yaml"))
		read("instruments", filepath.Join(configDir, "instruments.yaml"))
		read("events", filepath.Join(configDir, "events.yaml"))
	}

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if b := raw["jobs"]; len(b) > 0 {
		rows = append(rows, kv{name: "jobs", digest: cats.Jobs.Digest, json: b})
	}
	if b := raw["properties"]; len(b) > 0 {
		rows = append(rows, kv{name: "properties", digest: cats.Properties.Digest, json: b})
	}
	if b := raw["instruments"]; len(b) > 0 {
		rows = append(rows, kv{name: "instruments", digest: cats.Instruments.Digest, json: b})
	}
	if b := raw["events"]; len(b) > 0 {
		rows = append(rows, kv{name: "events", digest: cats.Events.Digest, json: b})
	}
	{
		// Tuning: store the values we actually apply (canonical JSON).
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

	insertChange, _ := s.db.Prepare(`INSERT OR REPLACE INTO changes(revision,kind,at,payload_json) VALUES(?,?,?,?)`)
	insertCommit, _ := s.db.Prepare(`INSERT INTO commits(at,label,turn,revision,digest) VALUES(?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(turn,revision,path,seed,actors,markets,holdings,requests,events) VALUES(?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertChange != nil {
			_ = insertChange.Close()
		}
		if insertCommit != nil {
			_ = insertCommit.Close()
		}
		if insertSnapshot != nil {
			_ = insertSnapshot.Close()
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

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqChange:
			ev := r.change
			payload, _ := json.Marshal(ev.Payload)
			if insertChange != nil {
				if _, err := tx.Stmt(insertChange).Exec(
					int64(ev.Revision),
					ev.Kind,
					ev.At.UTC().Format(time.RFC3339Nano),
					string(payload),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqCommit:
			c := r.commit
			if insertCommit != nil {
				if _, err := tx.Stmt(insertCommit).Exec(
					c.At,
					c.Label,
					int64(c.Turn),
					int64(c.Revision),
					c.Digest,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot != nil {
				if _, err := tx.Stmt(insertSnapshot).Exec(
					int64(sn.Turn),
					int64(sn.Revision),
					sn.Path,
					sn.Seed,
					sn.Actors,
					sn.Markets,
					sn.Holdings,
					sn.Requests,
					sn.Events,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}
