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

	"trainsim.ai/internal/persistence/snapshot"
	"trainsim.ai/internal/sim/metrics"
	"trainsim.ai/internal/sim/tuning"
)

// SQLiteIndex is a queryable secondary store for search metrics and
// snapshot bookkeeping. Writes are queued and applied by one goroutine in
// batched transactions; when the queue is full they are dropped and counted.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropSearch   atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqSearch reqKind = iota + 1
	reqSnapshot
	reqFlush
)

type req struct {
	kind reqKind

	search   metrics.Record
	snapshot snapshotRow
	done     chan struct{}
}

type snapshotRow struct {
	Tick       uint64
	Path       string
	MapID      string
	Tracks     int
	Stations   int
	Industries int
	Transports int
}

type IndexStats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropSearchTotal   uint64 `json:"drop_search_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
}

// SearchSummary aggregates the searches table for one kind.
type SearchSummary struct {
	Calls         int     `json:"calls"`
	Failures      int     `json:"failures"`
	AvgDurationNs float64 `json:"avg_duration_ns"`
	TotalCount    int     `json:"total_count"`
	TotalLength   float64 `json:"total_length"`
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
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
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
		`CREATE TABLE IF NOT EXISTS config (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS searches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			at TEXT NOT NULL,
			duration_ns INTEGER NOT NULL,
			ok INTEGER NOT NULL,
			count INTEGER,
			length REAL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_searches_kind_at ON searches(kind, at);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			map_id TEXT NOT NULL,
			tracks INTEGER NOT NULL,
			stations INTEGER NOT NULL,
			industries INTEGER NOT NULL,
			transports INTEGER NOT NULL
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

func (s *SQLiteIndex) RecordPathfinding(d time.Duration, result *metrics.ResultStats) {
	s.enqueueSearch(metrics.NewRecord(metrics.KindPathfinding, d, result))
}

func (s *SQLiteIndex) RecordPlanning(d time.Duration, result *metrics.ResultStats) {
	s.enqueueSearch(metrics.NewRecord(metrics.KindPlanning, d, result))
}

func (s *SQLiteIndex) enqueueSearch(r metrics.Record) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqSearch, search: r}:
	default:
		// JSONL metric logs remain the source of truth.
		s.dropSearch.Add(1)
	}
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Tick:       snap.Header.Tick,
		Path:       path,
		MapID:      snap.Header.MapID,
		Tracks:     len(snap.Tracks),
		Stations:   len(snap.Stations),
		Industries: len(snap.Industries),
		Transports: len(snap.Transports),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// Flush blocks until everything queued before it is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() IndexStats {
	return IndexStats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropSearchTotal:   s.dropSearch.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

// UpsertConfig stores the tuning in effect and, when given, the raw layout
// document, each keyed by content digest.
func (s *SQLiteIndex) UpsertConfig(tune tuning.Tuning, layout []byte) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name string
		json []byte
	}
	rows := []kv{}
	if b, err := json.Marshal(tune); err == nil {
		rows = append(rows, kv{name: "tuning", json: b})
	}
	if len(layout) > 0 {
		rows = append(rows, kv{name: "layout", json: layout})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO config(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		sum := sha256.Sum256(r.json)
		if _, err := stmt.Exec(r.name, hex.EncodeToString(sum[:]), string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ConfigDigest returns the stored digest for a config row.
func (s *SQLiteIndex) ConfigDigest(ctx context.Context, name string) (string, error) {
	var digest string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM config WHERE name=?`, name).Scan(&digest)
	return digest, err
}

func (s *SQLiteIndex) SearchSummary(ctx context.Context, kind metrics.Kind) (SearchSummary, error) {
	var (
		out    SearchSummary
		avg    sql.NullFloat64
		count  sql.NullInt64
		length sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(1-ok),0), AVG(duration_ns), SUM(count), SUM(length)
		FROM searches WHERE kind=?`, string(kind)).Scan(&out.Calls, &out.Failures, &avg, &count, &length)
	if err != nil {
		return out, err
	}
	out.AvgDurationNs = avg.Float64
	out.TotalCount = int(count.Int64)
	out.TotalLength = length.Float64
	return out, nil
}

func (s *SQLiteIndex) SnapshotPaths(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM snapshots ORDER BY tick`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertSearch, _ := s.db.Prepare(`INSERT INTO searches(kind,at,duration_ns,ok,count,length) VALUES(?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,map_id,tracks,stations,industries,transports) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		if insertSearch != nil {
			_ = insertSearch.Close()
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
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqSearch:
			rec := r.search
			var (
				ok     int
				count  any
				length any
			)
			if rec.Result != nil {
				ok = 1
				count = rec.Result.Count
				length = float64(rec.Result.Length)
			}
			if insertSearch != nil {
				if _, err := tx.Stmt(insertSearch).Exec(
					string(rec.Kind),
					rec.At.Format(time.RFC3339Nano),
					rec.DurationNs,
					ok,
					count,
					length,
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
					int64(sn.Tick),
					sn.Path,
					sn.MapID,
					sn.Tracks,
					sn.Stations,
					sn.Industries,
					sn.Transports,
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
