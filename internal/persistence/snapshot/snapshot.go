package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	MapID   string `json:"map_id"`
	Tick    uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	SizeX      int     `json:"size_x"`
	SizeZ      int     `json:"size_z"`
	WaterLevel float64 `json:"water_level"`

	Chunks     []ChunkV1     `json:"chunks"`
	Tracks     []TrackV1     `json:"tracks"`
	Stations   []StationV1   `json:"stations"`
	Industries []IndustryV1  `json:"industries,omitempty"`
	Transports []TransportV1 `json:"transports,omitempty"`
}

type ChunkV1 struct {
	CX      int       `json:"cx"`
	CZ      int       `json:"cz"`
	Heights []float32 `json:"heights"`
}

// TrackV1 stores the bitset of track types on one tile.
type TrackV1 struct {
	X     int   `json:"x"`
	Z     int   `json:"z"`
	Types uint8 `json:"types"`
}

type StationV1 struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Origin    [2]int `json:"origin"`
	Axis      uint8  `json:"axis"`
	Length    int    `json:"length"`
	Platforms int    `json:"platforms"`
}

type IndustryV1 struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Origin [2]int `json:"origin"`
	SizeX  int    `json:"size_x"`
	SizeZ  int    `json:"size_z"`
}

type TransportV1 struct {
	ID    string  `json:"id"`
	Owner string  `json:"owner,omitempty"`
	Speed float64 `json:"speed"`

	// Current tile track and progress along it in [0, 1].
	Tile       [2]int  `json:"tile"`
	TrackType  uint8   `json:"track_type"`
	PointingIn uint8   `json:"pointing_in"`
	Progress   float64 `json:"progress"`

	Orders       []OrderV1 `json:"orders"`
	CurrentOrder int       `json:"current_order"`
	ForceStop    bool      `json:"force_stop,omitempty"`
	// Dwell marks a transport still standing where it last arrived.
	Dwell bool `json:"dwell,omitempty"`
}

type OrderV1 struct {
	Destination string `json:"destination"`
	Stop        bool   `json:"stop"`
	Load        uint8  `json:"load,omitempty"`
	Unload      uint8  `json:"unload,omitempty"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// gob carries the header too.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("snapshot version %d not supported", snap.Header.Version)
	}
	return snap, nil
}
