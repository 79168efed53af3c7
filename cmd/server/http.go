package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"trainsim.ai/internal/persistence/indexdb"
	"trainsim.ai/internal/sim/world"
	"trainsim.ai/internal/transport/ws"
)

type muxDeps struct {
	World  *world.World
	Hub    *ws.Server
	Index  runtimeIndex
	Admin  bool
	Pprof  bool
	Logger *log.Logger
}

func buildMux(d muxDeps) *http.ServeMux {
	w := d.World
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		id := w.ID()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP trainsim_map_tick Current simulation tick.\n")
		fmt.Fprintf(rw, "# TYPE trainsim_map_tick gauge\n")
		fmt.Fprintf(rw, "trainsim_map_tick{map=%q} %d\n", id, w.CurrentTick())

		fmt.Fprintf(rw, "# HELP trainsim_ws_clients Connected metrics stream clients.\n")
		fmt.Fprintf(rw, "# TYPE trainsim_ws_clients gauge\n")
		fmt.Fprintf(rw, "trainsim_ws_clients{map=%q} %d\n", id, d.Hub.Clients())

		fmt.Fprintf(rw, "# HELP trainsim_ws_dropped_total Messages dropped for slow stream clients.\n")
		fmt.Fprintf(rw, "# TYPE trainsim_ws_dropped_total counter\n")
		fmt.Fprintf(rw, "trainsim_ws_dropped_total{map=%q} %d\n", id, d.Hub.Dropped())

		writeIndexMetrics(rw, id, d.Index)
	})

	if d.Admin {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(map[string]any{
				"map_id":       w.ID(),
				"tick":         w.CurrentTick(),
				"tick_rate_hz": w.TickRateHz(),
				"ws_clients":   d.Hub.Clients(),
			})
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			tick, err := w.RequestSnapshot(ctx)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick})
		})
	} else if d.Logger != nil {
		d.Logger.Printf("admin endpoints disabled (TRAINSIM_ENABLE_ADMIN_HTTP=false)")
	}
	if d.Pprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/metrics/ws", d.Hub.Handler())
	return mux
}

func writeIndexMetrics(rw http.ResponseWriter, mapID string, idx runtimeIndex) {
	var depth int
	var dropped uint64
	switch x := idx.(type) {
	case *indexdb.SQLiteIndex:
		s := x.Stats()
		depth, dropped = s.QueueDepth, s.DropSearchTotal+s.DropSnapshotTotal
	case *indexdb.D1Index:
		s := x.Stats()
		depth, dropped = s.QueueDepth, s.QueueDroppedTotal
	default:
		return
	}
	fmt.Fprintf(rw, "# HELP trainsim_index_queue_depth Pending index writes.\n")
	fmt.Fprintf(rw, "# TYPE trainsim_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "trainsim_index_queue_depth{map=%q} %d\n", mapID, depth)
	fmt.Fprintf(rw, "# HELP trainsim_index_dropped_total Index writes dropped on a full queue.\n")
	fmt.Fprintf(rw, "# TYPE trainsim_index_dropped_total counter\n")
	fmt.Fprintf(rw, "trainsim_index_dropped_total{map=%q} %d\n", mapID, dropped)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
