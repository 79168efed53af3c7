package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestMemoryConcurrentAppend(t *testing.T) {
	m := NewMemory()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if (i+j)%2 == 0 {
					m.RecordPathfinding(time.Millisecond, &ResultStats{Count: j})
				} else {
					m.RecordPlanning(time.Millisecond, nil)
				}
			}
		}(i)
	}
	wg.Wait()
	if got := len(m.Records()); got != 400 {
		t.Fatalf("records=%d want 400", got)
	}
	if m.Count(KindPathfinding)+m.Count(KindPlanning) != 400 {
		t.Fatalf("kind counts do not add up")
	}
}

func TestMultiAndRecordFunc(t *testing.T) {
	var got []Record
	fn := RecordFunc(func(r Record) { got = append(got, r) })
	mem := NewMemory()
	sink := Multi{fn, nil, mem}

	res := &ResultStats{Count: 3, Length: 2.5}
	sink.RecordPlanning(2*time.Second, res)
	sink.RecordPathfinding(time.Second, nil)
	res.Count = 99

	if len(got) != 2 || len(mem.Records()) != 2 {
		t.Fatalf("fan-out mismatch: fn=%d mem=%d", len(got), len(mem.Records()))
	}
	if got[0].Kind != KindPlanning || got[0].Result == nil || got[0].Result.Count != 3 {
		t.Fatalf("planning record=%+v", got[0])
	}
	if got[0].DurationNs != int64(2*time.Second) {
		t.Fatalf("DurationNs=%d", got[0].DurationNs)
	}
	if got[1].Kind != KindPathfinding || got[1].Result != nil {
		t.Fatalf("pathfinding record=%+v", got[1])
	}
}

func TestOrNoop(t *testing.T) {
	if _, ok := OrNoop(nil).(Noop); !ok {
		t.Fatalf("nil sink should become Noop")
	}
	m := NewMemory()
	if OrNoop(m) != Sink(m) {
		t.Fatalf("non-nil sink should pass through")
	}
}
