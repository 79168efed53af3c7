package main

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"trainsim.ai/internal/persistence/indexdb"
	"trainsim.ai/internal/sim/metrics"
)

func TestRunQuery_Searches(t *testing.T) {
	idx, err := indexdb.OpenSQLite(filepath.Join(t.TempDir(), "map.sqlite"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer idx.Close()
	idx.RecordPlanning(2*time.Millisecond, &metrics.ResultStats{Count: 4, Length: 3.5})
	idx.RecordPathfinding(time.Millisecond, nil)

	ctx := context.Background()
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	var lines []string
	out := func(v any) {
		b, _ := json.Marshal(v)
		lines = append(lines, string(b))
	}
	if err := runQuery(ctx, idx, "searches", out); err != nil {
		t.Fatalf("runQuery: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("lines=%v", lines)
	}
	if !strings.Contains(lines[0], `"kind":"PATHFINDING"`) || !strings.Contains(lines[0], `"failures":1`) {
		t.Fatalf("pathfinding line=%s", lines[0])
	}
	if !strings.Contains(lines[1], `"total_count":4`) {
		t.Fatalf("planning line=%s", lines[1])
	}

	if err := runQuery(ctx, idx, "bogus", out); err == nil {
		t.Fatalf("expected error for an unknown query")
	}
}
