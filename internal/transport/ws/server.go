package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"trainsim.ai/internal/sim/metrics"
	movementruntime "trainsim.ai/internal/sim/world/feature/movement/runtime"
)

const ProtocolVersion = "1.0"

const (
	TypeWelcome = "WELCOME"
	TypeMetric  = "METRIC"
	TypeEvent   = "EVENT"
)

type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	MapID           string `json:"map_id"`
	TickRateHz      int    `json:"tick_rate_hz"`
}

type MetricMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Record          metrics.Record `json:"record"`
}

type EventMsg struct {
	Type            string                `json:"type"`
	ProtocolVersion string                `json:"protocol_version"`
	Tick            uint64                `json:"tick"`
	Event           movementruntime.Event `json:"event"`
}

// Server fans search metrics and movement events out to websocket
// observers. A client whose queue is full misses messages instead of
// stalling the simulation.
type Server struct {
	log     *log.Logger
	welcome WelcomeMsg

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[uint64]chan []byte
	nextID  atomic.Uint64
	dropped atomic.Uint64
}

func NewServer(mapID string, tickRateHz int, logger *log.Logger) *Server {
	return &Server{
		log: logger,
		welcome: WelcomeMsg{
			Type:            TypeWelcome,
			ProtocolVersion: ProtocolVersion,
			MapID:           mapID,
			TickRateHz:      tickRateHz,
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		clients: map[uint64]chan []byte{},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if err := writeJSON(conn, s.welcome); err != nil {
			return
		}

		id, out := s.register()
		defer s.unregister(id)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Observers do not send anything; reading only detects close.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}
}

func (s *Server) register() (uint64, chan []byte) {
	id := s.nextID.Add(1)
	out := make(chan []byte, 64)
	s.mu.Lock()
	s.clients[id] = out
	s.mu.Unlock()
	if s.log != nil {
		s.log.Printf("observer %d connected", id)
	}
	return id, out
}

func (s *Server) unregister(id uint64) {
	s.mu.Lock()
	delete(s.clients, id)
	s.mu.Unlock()
	if s.log != nil {
		s.log.Printf("observer %d disconnected", id)
	}
}

func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) Dropped() uint64 { return s.dropped.Load() }

func (s *Server) RecordPathfinding(d time.Duration, r *metrics.ResultStats) {
	s.broadcast(MetricMsg{Type: TypeMetric, ProtocolVersion: ProtocolVersion, Record: metrics.NewRecord(metrics.KindPathfinding, d, r)})
}

func (s *Server) RecordPlanning(d time.Duration, r *metrics.ResultStats) {
	s.broadcast(MetricMsg{Type: TypeMetric, ProtocolVersion: ProtocolVersion, Record: metrics.NewRecord(metrics.KindPlanning, d, r)})
}

func (s *Server) PublishEvents(tick uint64, events []movementruntime.Event) {
	for _, ev := range events {
		s.broadcast(EventMsg{Type: TypeEvent, ProtocolVersion: ProtocolVersion, Tick: tick, Event: ev})
	}
}

func (s *Server) broadcast(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, out := range s.clients {
		select {
		case out <- b:
		default:
			s.dropped.Add(1)
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
