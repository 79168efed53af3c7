package metrics

import (
	"sync"
	"time"

	"trainsim.ai/internal/sim/world/logic/tracks"
)

type Kind string

const (
	KindPathfinding Kind = "PATHFINDING"
	KindPlanning    Kind = "PLANNING"
)

// ResultStats describes a successful search: how many tile tracks it returned
// and their summed length.
type ResultStats struct {
	Count  int                `json:"count"`
	Length tracks.TrackLength `json:"length"`
}

// Sink receives one call per search, success or failure (nil result).
// Implementations must be safe for concurrent use.
type Sink interface {
	RecordPathfinding(d time.Duration, result *ResultStats)
	RecordPlanning(d time.Duration, result *ResultStats)
}

type Record struct {
	Kind       Kind          `json:"kind"`
	DurationNs int64         `json:"duration_ns"`
	Result     *ResultStats  `json:"result,omitempty"`
	At         time.Time     `json:"at"`
	Duration   time.Duration `json:"-"`
}

func NewRecord(kind Kind, d time.Duration, result *ResultStats) Record {
	var r *ResultStats
	if result != nil {
		cp := *result
		r = &cp
	}
	return Record{Kind: kind, Duration: d, DurationNs: d.Nanoseconds(), Result: r, At: time.Now().UTC()}
}

func StatsOf(tts []tracks.TileTrack) *ResultStats {
	return &ResultStats{Count: len(tts), Length: tracks.Sum(tts)}
}

// Noop discards everything.
type Noop struct{}

func (Noop) RecordPathfinding(time.Duration, *ResultStats) {}
func (Noop) RecordPlanning(time.Duration, *ResultStats)    {}

// OrNoop lets callers leave the sink unset.
func OrNoop(s Sink) Sink {
	if s == nil {
		return Noop{}
	}
	return s
}

// RecordFunc adapts a single callback to Sink.
type RecordFunc func(Record)

func (f RecordFunc) RecordPathfinding(d time.Duration, r *ResultStats) {
	f(NewRecord(KindPathfinding, d, r))
}

func (f RecordFunc) RecordPlanning(d time.Duration, r *ResultStats) {
	f(NewRecord(KindPlanning, d, r))
}

// Memory keeps every record in arrival order.
type Memory struct {
	mu      sync.Mutex
	records []Record
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) RecordPathfinding(d time.Duration, r *ResultStats) {
	m.append(NewRecord(KindPathfinding, d, r))
}

func (m *Memory) RecordPlanning(d time.Duration, r *ResultStats) {
	m.append(NewRecord(KindPlanning, d, r))
}

func (m *Memory) append(r Record) {
	m.mu.Lock()
	m.records = append(m.records, r)
	m.mu.Unlock()
}

func (m *Memory) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

func (m *Memory) Count(kind Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.records {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

// Multi fans out to every sink in order.
type Multi []Sink

func (ms Multi) RecordPathfinding(d time.Duration, r *ResultStats) {
	for _, s := range ms {
		if s != nil {
			s.RecordPathfinding(d, r)
		}
	}
}

func (ms Multi) RecordPlanning(d time.Duration, r *ResultStats) {
	for _, s := range ms {
		if s != nil {
			s.RecordPlanning(d, r)
		}
	}
}
