package snapshot

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap", "000042.snap.zst")
	in := SnapshotV1{
		Header:     Header{Version: Version, MapID: "reference", Tick: 42},
		SizeX:      32,
		SizeZ:      16,
		WaterLevel: 0,
		Chunks:     []ChunkV1{{CX: 0, CZ: 0, Heights: []float32{1, 2, 3}}},
		Tracks:     []TrackV1{{X: 3, Z: 4, Types: 0b001001}},
		Stations:   []StationV1{{ID: "s1", Name: "North", Origin: [2]int{1, 2}, Axis: 1, Length: 3, Platforms: 1}},
		Transports: []TransportV1{{
			ID: "t1", Speed: 2.5, Tile: [2]int{3, 4}, TrackType: 3, PointingIn: 1, Progress: 0.25,
			Orders:       []OrderV1{{Destination: "s1", Stop: true, Load: 1}},
			CurrentOrder: 0,
		}},
	}
	if err := WriteSnapshot(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if h != in.Header {
		t.Fatalf("header=%+v want %+v", h, in.Header)
	}

	out, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestReadSnapshotRejectsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.snap.zst")
	if err := WriteSnapshot(path, SnapshotV1{Header: Header{Version: 99}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadSnapshot(path); err == nil {
		t.Fatalf("expected version error")
	}
}
