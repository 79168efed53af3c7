package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"trainsim.ai/internal/sim/metrics"
	movementruntime "trainsim.ai/internal/sim/world/feature/movement/runtime"
)

var _ metrics.Sink = (*Server)(nil)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		t.Fatalf("unmarshal %s: %v", b, err)
	}
}

func waitClients(t *testing.T, s *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients=%d want %d", s.Clients(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServer_StreamsMetricsAndEvents(t *testing.T) {
	s := NewServer("reference", 10, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	var welcome WelcomeMsg
	readMsg(t, conn, &welcome)
	if welcome.Type != TypeWelcome || welcome.MapID != "reference" || welcome.TickRateHz != 10 {
		t.Fatalf("welcome=%+v", welcome)
	}
	waitClients(t, s, 1)

	s.RecordPlanning(time.Millisecond, &metrics.ResultStats{Count: 7, Length: 6.5})
	var m MetricMsg
	readMsg(t, conn, &m)
	if m.Type != TypeMetric || m.Record.Kind != metrics.KindPlanning || m.Record.Result == nil || m.Record.Result.Count != 7 {
		t.Fatalf("metric=%+v", m)
	}

	s.RecordPathfinding(time.Millisecond, nil)
	var failed MetricMsg
	readMsg(t, conn, &failed)
	if failed.Type != TypeMetric || failed.Record.Kind != metrics.KindPathfinding || failed.Record.Result != nil {
		t.Fatalf("failed search should stream without result: %+v", failed)
	}

	s.PublishEvents(12, []movementruntime.Event{{Kind: movementruntime.EventArrived}})
	var e struct {
		Type  string `json:"type"`
		Tick  uint64 `json:"tick"`
		Event struct {
			Kind string `json:"kind"`
		} `json:"event"`
	}
	readMsg(t, conn, &e)
	if e.Type != TypeEvent || e.Tick != 12 || e.Event.Kind != "ARRIVED" {
		t.Fatalf("event=%+v", e)
	}
}

func TestServer_UnregistersOnClose(t *testing.T) {
	s := NewServer("m", 10, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	var welcome WelcomeMsg
	readMsg(t, conn, &welcome)
	waitClients(t, s, 1)

	_ = conn.Close()
	waitClients(t, s, 0)

	// Broadcasting with nobody listening is a no-op.
	s.RecordPlanning(time.Millisecond, nil)
	if s.Dropped() != 0 {
		t.Fatalf("dropped=%d want 0", s.Dropped())
	}
}

func TestServer_DropsWhenClientQueueFull(t *testing.T) {
	s := NewServer("m", 10, nil)
	id, out := s.register()
	defer s.unregister(id)

	for i := 0; i < cap(out)+3; i++ {
		s.RecordPlanning(time.Millisecond, nil)
	}
	if s.Dropped() != 3 {
		t.Fatalf("dropped=%d want 3", s.Dropped())
	}
}
