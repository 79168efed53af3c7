package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"trainsim.ai/internal/persistence/indexdb"
	"trainsim.ai/internal/persistence/snapshot"
	"trainsim.ai/internal/sim/catalogs"
	"trainsim.ai/internal/sim/world"
	"trainsim.ai/internal/transport/ws"
)

func newTestWorld(t *testing.T) *world.World {
	t.Helper()
	l, err := catalogs.LoadLayout(filepath.Join("..", "..", "configs", "layouts", "ring.json"))
	if err != nil {
		t.Fatalf("load layout: %v", err)
	}
	lw, err := l.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	w, err := world.New(world.WorldConfig{MapID: "ring", TickRateHz: 50}, lw.Terrain, lw.Buildings, nil)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return w
}

func TestBuildMux_HealthAndMetrics(t *testing.T) {
	w := newTestWorld(t)
	idx, err := indexdb.OpenSQLite(filepath.Join(t.TempDir(), "map.sqlite"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer idx.Close()
	mux := buildMux(muxDeps{World: w, Hub: ws.NewServer("ring", 50, nil), Index: idx})

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 || rr.Body.String() != "ok" {
		t.Fatalf("healthz code=%d body=%q", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	for _, want := range []string{
		`trainsim_map_tick{map="ring"} 0`,
		`trainsim_ws_clients{map="ring"} 0`,
		`trainsim_index_queue_depth{map="ring"}`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestBuildMux_AdminSnapshotLoopbackOnly(t *testing.T) {
	w := newTestWorld(t)
	sink := make(chan snapshot.SnapshotV1, 1)
	w.SetSnapshotSink(sink)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	defer w.Stop()

	mux := buildMux(muxDeps{World: w, Hub: ws.NewServer("ring", 50, nil), Admin: true})

	req := httptest.NewRequest(http.MethodPost, "/admin/v1/snapshot", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("non-loopback code=%d want 403", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/v1/snapshot", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET code=%d want 405", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/admin/v1/snapshot", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("code=%d body=%s", rr.Code, rr.Body.String())
	}
	var resp struct {
		OK   bool   `json:"ok"`
		Tick uint64 `json:"tick"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil || !resp.OK {
		t.Fatalf("resp=%+v err=%v", resp, err)
	}
	select {
	case snap := <-sink:
		if snap.Header.MapID != "ring" || snap.Header.Tick != resp.Tick {
			t.Fatalf("snapshot header=%+v want tick %d", snap.Header, resp.Tick)
		}
	case <-time.After(time.Second):
		t.Fatalf("no snapshot delivered")
	}
}

func TestAdminDisabled(t *testing.T) {
	mux := buildMux(muxDeps{World: newTestWorld(t), Hub: ws.NewServer("ring", 50, nil)})
	req := httptest.NewRequest(http.MethodPost, "/admin/v1/snapshot", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("code=%d want 404", rr.Code)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:80":   true,
		"[::1]:443":      true,
		"192.0.2.1:1234": false,
		"garbage":        false,
	}
	for in, want := range cases {
		if got := isLoopbackRemote(in); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", in, got, want)
		}
	}
}

func TestLatestSnapshot(t *testing.T) {
	dir := t.TempDir()
	if got := latestSnapshot(dir); got != "" {
		t.Fatalf("empty dir got %q", got)
	}
	w := newTestWorld(t)
	for _, tick := range []uint64{9, 120, 30} {
		path := filepath.Join(dir, "snapshots", strconv.FormatUint(tick, 10)+".snap.zst")
		if err := snapshot.WriteSnapshot(path, w.ExportSnapshot(tick)); err != nil {
			t.Fatalf("WriteSnapshot: %v", err)
		}
	}
	if got := latestSnapshot(dir); filepath.Base(got) != "120.snap.zst" {
		t.Fatalf("latest=%q", got)
	}
}
