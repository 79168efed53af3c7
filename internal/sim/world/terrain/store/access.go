package store

import (
	"sort"

	"trainsim.ai/internal/sim/world/logic/tiles"
)

func (m *HeightMap) InBounds(t tiles.TileCoordsXZ) bool {
	return t.X >= 0 && t.X < m.SizeX && t.Z >= 0 && t.Z < m.SizeZ
}

func (m *HeightMap) VertexInBounds(v tiles.VertexCoordsXZ) bool {
	return v.X >= 0 && v.X <= m.SizeX && v.Z >= 0 && v.Z <= m.SizeZ
}

func (m *HeightMap) HeightAt(v tiles.VertexCoordsXZ) float64 {
	k, x, z := chunkOf(v)
	ch := m.Chunks[k]
	if ch == nil {
		return 0
	}
	return float64(ch.Get(x, z))
}

// SetHeight ignores vertices outside the map.
func (m *HeightMap) SetHeight(v tiles.VertexCoordsXZ, h float64) {
	if !m.VertexInBounds(v) {
		return
	}
	k, x, z := chunkOf(v)
	ch := m.Chunks[k]
	if ch == nil {
		ch = newChunk(k.CX, k.CZ)
		m.Chunks[k] = ch
	}
	ch.Set(x, z, float32(h))
}

// IsWater reports whether any corner of the tile lies below the water level.
func (m *HeightMap) IsWater(t tiles.TileCoordsXZ) bool {
	for _, ns := range [2]tiles.DirectionXZ{tiles.North, tiles.South} {
		for _, ew := range [2]tiles.DirectionXZ{tiles.East, tiles.West} {
			if m.HeightAt(t.Vertex(ns, ew)) < m.WaterLevel {
				return true
			}
		}
	}
	return false
}

func (m *HeightMap) LoadedChunkKeys() []ChunkKey {
	keys := make([]ChunkKey, 0, len(m.Chunks))
	for k := range m.Chunks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})
	return keys
}
