package store

import (
	"fmt"

	snapv1 "trainsim.ai/internal/persistence/snapshot"
)

// ExportChunks converts the stored chunks into snapshot chunks in key order.
func ExportChunks(m *HeightMap) []snapv1.ChunkV1 {
	keys := m.LoadedChunkKeys()
	out := make([]snapv1.ChunkV1, 0, len(keys))
	for _, k := range keys {
		ch := m.Chunks[k]
		heights := make([]float32, len(ch.Heights))
		copy(heights, ch.Heights)
		out = append(out, snapv1.ChunkV1{CX: k.CX, CZ: k.CZ, Heights: heights})
	}
	return out
}

// ImportChunks rebuilds a height map from snapshot chunks.
func ImportChunks(sizeX, sizeZ int, waterLevel float64, chunks []snapv1.ChunkV1) (*HeightMap, error) {
	m := NewHeightMap(sizeX, sizeZ, waterLevel)
	for _, ch := range chunks {
		if len(ch.Heights) != ChunkSize*ChunkSize {
			return nil, fmt.Errorf("snapshot chunk (%d,%d) heights length mismatch: got %d want %d", ch.CX, ch.CZ, len(ch.Heights), ChunkSize*ChunkSize)
		}
		k := ChunkKey{CX: ch.CX, CZ: ch.CZ}
		if _, dup := m.Chunks[k]; dup {
			return nil, fmt.Errorf("snapshot chunk (%d,%d) duplicated", ch.CX, ch.CZ)
		}
		heights := make([]float32, len(ch.Heights))
		copy(heights, ch.Heights)
		c := &Chunk{CX: ch.CX, CZ: ch.CZ, Heights: heights}
		_ = c.Digest()
		m.Chunks[k] = c
	}
	return m, nil
}
