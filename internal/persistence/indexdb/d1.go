package indexdb

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"trainsim.ai/internal/persistence/snapshot"
	"trainsim.ai/internal/sim/metrics"
	"trainsim.ai/internal/sim/tuning"
)

// D1Config points a D1Index at a remote ingest worker that accepts
// {"events":[...]} batches.
type D1Config struct {
	Endpoint      string
	Token         string
	MapID         string
	BatchSize     int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	MaxPending    int
	Logger        *log.Logger
}

// D1Index ships the same rows as SQLiteIndex to a remote database. A batch
// that fails to send is kept and retried on the next flush; events beyond
// MaxPending are dropped.
type D1Index struct {
	cfg        D1Config
	httpClient *http.Client

	ch   chan d1Event
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	flushFail    atomic.Uint64
	flushOK      atomic.Uint64
	queueDropped atomic.Uint64
}

type D1Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	FlushOKTotal      uint64 `json:"flush_ok_total"`
	FlushFailTotal    uint64 `json:"flush_fail_total"`
	QueueDroppedTotal uint64 `json:"queue_dropped_total"`
}

type d1Event struct {
	Kind    string `json:"kind"`
	MapID   string `json:"map_id"`
	Payload any    `json:"payload"`
}

type d1SearchPayload struct {
	Kind       string   `json:"kind"`
	At         string   `json:"at"`
	DurationNs int64    `json:"duration_ns"`
	OK         bool     `json:"ok"`
	Count      int      `json:"count,omitempty"`
	Length     *float64 `json:"length,omitempty"`
}

type d1SnapshotPayload struct {
	Tick       uint64 `json:"tick"`
	Path       string `json:"path"`
	Tracks     int    `json:"tracks"`
	Stations   int    `json:"stations"`
	Industries int    `json:"industries"`
	Transports int    `json:"transports"`
}

type d1ConfigPayload struct {
	Name      string `json:"name"`
	Digest    string `json:"digest"`
	JSON      string `json:"json"`
	UpdatedAt string `json:"updated_at"`
}

func OpenD1(cfg D1Config) (*D1Index, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.MapID = strings.TrimSpace(cfg.MapID)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty d1 ingest endpoint")
	}
	if cfg.MapID == "" {
		return nil, fmt.Errorf("empty map id")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = 16 * cfg.BatchSize
	}

	d := &D1Index{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		ch: make(chan d1Event, 32768),
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()

	return d, nil
}

func (d *D1Index) Close() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.ch)
		d.wg.Wait()
	})
	return nil
}

func (d *D1Index) RecordPathfinding(dur time.Duration, result *metrics.ResultStats) {
	d.recordSearch(metrics.NewRecord(metrics.KindPathfinding, dur, result))
}

func (d *D1Index) RecordPlanning(dur time.Duration, result *metrics.ResultStats) {
	d.recordSearch(metrics.NewRecord(metrics.KindPlanning, dur, result))
}

func (d *D1Index) recordSearch(r metrics.Record) {
	p := d1SearchPayload{
		Kind:       string(r.Kind),
		At:         r.At.Format(time.RFC3339Nano),
		DurationNs: r.DurationNs,
	}
	if r.Result != nil {
		l := float64(r.Result.Length)
		p.OK = true
		p.Count = r.Result.Count
		p.Length = &l
	}
	d.enqueue(d1Event{Kind: "search", MapID: d.cfg.MapID, Payload: p})
}

func (d *D1Index) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	p := d1SnapshotPayload{
		Tick:       snap.Header.Tick,
		Path:       path,
		Tracks:     len(snap.Tracks),
		Stations:   len(snap.Stations),
		Industries: len(snap.Industries),
		Transports: len(snap.Transports),
	}
	d.enqueue(d1Event{Kind: "snapshot", MapID: d.cfg.MapID, Payload: p})
}

func (d *D1Index) UpsertConfig(tune tuning.Tuning, layout []byte) error {
	if d == nil || d.closed.Load() {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	send := func(name string, b []byte) {
		sum := sha256.Sum256(b)
		d.enqueue(d1Event{Kind: "config", MapID: d.cfg.MapID, Payload: d1ConfigPayload{
			Name:      name,
			Digest:    hex.EncodeToString(sum[:]),
			JSON:      string(b),
			UpdatedAt: now,
		}})
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	send("tuning", b)
	if len(layout) > 0 {
		send("layout", layout)
	}
	return nil
}

func (d *D1Index) Stats() D1Stats {
	return D1Stats{
		QueueDepth:        len(d.ch),
		FlushOKTotal:      d.flushOK.Load(),
		FlushFailTotal:    d.flushFail.Load(),
		QueueDroppedTotal: d.queueDropped.Load(),
	}
}

func (d *D1Index) enqueue(ev d1Event) {
	if d == nil || d.closed.Load() {
		return
	}
	select {
	case d.ch <- ev:
	default:
		d.queueDropped.Add(1)
		d.printf("d1 index queue full; drop kind=%s map=%s", ev.Kind, ev.MapID)
	}
}

func (d *D1Index) loop() {
	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	pending := make([]d1Event, 0, d.cfg.BatchSize)
	flush := func() {
		for len(pending) > 0 {
			n := len(pending)
			if n > d.cfg.BatchSize {
				n = d.cfg.BatchSize
			}
			if err := d.sendBatch(pending[:n]); err != nil {
				d.flushFail.Add(1)
				d.printf("d1 index flush failed batch=%d err=%v", n, err)
				return
			}
			d.flushOK.Add(1)
			pending = append(pending[:0], pending[n:]...)
		}
	}

	for {
		select {
		case ev, ok := <-d.ch:
			if !ok {
				flush()
				return
			}
			if len(pending) >= d.cfg.MaxPending {
				d.queueDropped.Add(1)
				continue
			}
			pending = append(pending, ev)
			if len(pending) >= d.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (d *D1Index) sendBatch(events []d1Event) error {
	if len(events) == 0 {
		return nil
	}

	body := struct {
		Events []d1Event `json:"events"`
	}{Events: events}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, d.cfg.Endpoint, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("content-type", "application/json")
	if d.cfg.Token != "" {
		req.Header.Set("x-trainsim-index-token", d.cfg.Token)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
	_ = resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
}

func (d *D1Index) printf(format string, args ...any) {
	if d != nil && d.cfg.Logger != nil {
		d.cfg.Logger.Printf(format, args...)
	}
}
