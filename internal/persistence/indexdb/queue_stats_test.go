package indexdb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"trainsim.ai/internal/persistence/snapshot"
	"trainsim.ai/internal/sim/metrics"
	"trainsim.ai/internal/sim/tuning"
)

var _ metrics.Sink = (*SQLiteIndex)(nil)
var _ metrics.Sink = (*D1Index)(nil)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqSearch}

	s.RecordPathfinding(time.Millisecond, nil)
	s.RecordPlanning(time.Millisecond, &metrics.ResultStats{Count: 3, Length: 3})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})

	st := s.Stats()
	if st.DropSearchTotal != 2 {
		t.Fatalf("DropSearchTotal=%d want=2", st.DropSearchTotal)
	}
	if st.DropSnapshotTotal != 1 {
		t.Fatalf("DropSnapshotTotal=%d want=1", st.DropSnapshotTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_SearchSummary(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.sqlite"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer func() { _ = idx.Close() }()

	idx.RecordPlanning(2*time.Millisecond, &metrics.ResultStats{Count: 10, Length: 9.5})
	idx.RecordPlanning(4*time.Millisecond, nil)
	idx.RecordPathfinding(time.Millisecond, &metrics.ResultStats{Count: 4, Length: 4})
	idx.RecordSnapshot("snap/000001.snap.zst", snapshot.SnapshotV1{Header: snapshot.Header{Tick: 1, MapID: "m"}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	plan, err := idx.SearchSummary(ctx, metrics.KindPlanning)
	if err != nil {
		t.Fatalf("SearchSummary: %v", err)
	}
	if plan.Calls != 2 || plan.Failures != 1 || plan.TotalCount != 10 || plan.TotalLength != 9.5 {
		t.Fatalf("planning summary=%+v", plan)
	}
	if plan.AvgDurationNs != float64(3*time.Millisecond) {
		t.Fatalf("avg=%v want %v", plan.AvgDurationNs, float64(3*time.Millisecond))
	}
	path, err := idx.SearchSummary(ctx, metrics.KindPathfinding)
	if err != nil || path.Calls != 1 || path.Failures != 0 {
		t.Fatalf("pathfinding summary=%+v err=%v", path, err)
	}
	paths, err := idx.SnapshotPaths(ctx)
	if err != nil || len(paths) != 1 || paths[0] != "snap/000001.snap.zst" {
		t.Fatalf("snapshot paths=%v err=%v", paths, err)
	}

	if err := idx.UpsertConfig(tuning.Defaults(), []byte(`{"stations":[]}`)); err != nil {
		t.Fatalf("UpsertConfig: %v", err)
	}
	d1, err := idx.ConfigDigest(ctx, "tuning")
	if err != nil || len(d1) != 64 {
		t.Fatalf("tuning digest=%q err=%v", d1, err)
	}
	if err := idx.UpsertConfig(tuning.Defaults(), nil); err != nil {
		t.Fatalf("UpsertConfig again: %v", err)
	}
	d2, _ := idx.ConfigDigest(ctx, "tuning")
	if d1 != d2 {
		t.Fatalf("digest changed for identical tuning: %s vs %s", d1, d2)
	}
}

func TestD1Index_RetainsBatchOnFlushFailure(t *testing.T) {
	var mu sync.Mutex
	reqCount := 0
	applied := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		reqCount++
		thisReq := reqCount
		mu.Unlock()

		if thisReq <= 3 {
			http.Error(w, "temporary failure", http.StatusInternalServerError)
			return
		}

		var body struct {
			Events []d1Event `json:"events"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		mu.Lock()
		applied += len(body.Events)
		mu.Unlock()

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	idx, err := OpenD1(D1Config{
		Endpoint:      srv.URL,
		MapID:         "reference",
		BatchSize:     1,
		FlushInterval: 20 * time.Millisecond,
		HTTPTimeout:   2 * time.Second,
	})
	if err != nil {
		t.Fatalf("OpenD1: %v", err)
	}
	defer func() { _ = idx.Close() }()

	idx.RecordPlanning(time.Millisecond, &metrics.ResultStats{Count: 5, Length: 5})

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := applied >= 1
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	mu.Lock()
	finalApplied := applied
	finalReqCount := reqCount
	mu.Unlock()

	if finalApplied < 1 {
		t.Fatalf("expected retained batch to be eventually delivered; applied=%d reqCount=%d", finalApplied, finalReqCount)
	}

	st := idx.Stats()
	if st.FlushFailTotal == 0 {
		t.Fatalf("expected flush failures to be recorded, got 0")
	}
	if st.QueueDroppedTotal != 0 {
		t.Fatalf("unexpected queue drops: %d", st.QueueDroppedTotal)
	}
}

func TestOpenD1Validates(t *testing.T) {
	if _, err := OpenD1(D1Config{MapID: "m"}); err == nil {
		t.Fatalf("expected error for empty endpoint")
	}
	if _, err := OpenD1(D1Config{Endpoint: "http://127.0.0.1:1"}); err == nil {
		t.Fatalf("expected error for empty map id")
	}
}
