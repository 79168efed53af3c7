package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"trainsim.ai/internal/sim/metrics"
	movementruntime "trainsim.ai/internal/sim/world/feature/movement/runtime"
)

// JSONLZstdWriter appends JSON lines to one zstd file per UTC hour.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour || w.w == nil {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

// PathForHour is the file a line written during hour (2006-01-02-15) lands in.
func (w *JSONLZstdWriter) PathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.PathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

// MetricsLogger is a metrics.Sink that keeps every search record on disk.
// Write errors are counted, never returned to the search.
type MetricsLogger struct {
	w      *JSONLZstdWriter
	mu     sync.Mutex
	errors int
}

func NewMetricsLogger(dir string) *MetricsLogger {
	return &MetricsLogger{w: NewJSONLZstdWriter(filepath.Join(dir, "metrics"), "metrics")}
}

func (l *MetricsLogger) RecordPathfinding(d time.Duration, r *metrics.ResultStats) {
	l.write(metrics.NewRecord(metrics.KindPathfinding, d, r))
}

func (l *MetricsLogger) RecordPlanning(d time.Duration, r *metrics.ResultStats) {
	l.write(metrics.NewRecord(metrics.KindPlanning, d, r))
}

func (l *MetricsLogger) write(r metrics.Record) {
	if err := l.w.Write(r); err != nil {
		l.mu.Lock()
		l.errors++
		l.mu.Unlock()
	}
}

func (l *MetricsLogger) WriteErrors() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errors
}

func (l *MetricsLogger) Close() error { return l.w.Close() }

// EventEntry is one movement event stamped with the tick it happened on.
type EventEntry struct {
	Tick  uint64                `json:"tick"`
	Event movementruntime.Event `json:"event"`
}

type EventLogger struct{ w *JSONLZstdWriter }

func NewEventLogger(dir string) *EventLogger {
	return &EventLogger{w: NewJSONLZstdWriter(filepath.Join(dir, "events"), "events")}
}

func (l *EventLogger) WriteEvents(tick uint64, events []movementruntime.Event) error {
	for _, ev := range events {
		if err := l.w.Write(EventEntry{Tick: tick, Event: ev}); err != nil {
			return err
		}
	}
	return nil
}

func (l *EventLogger) Close() error { return l.w.Close() }
