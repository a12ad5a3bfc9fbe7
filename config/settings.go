// Package config loads the tunable runtime settings of a volume: chunk
// geometry, lod distances, streaming budgets and timing. These are engine
// settings (how the streaming core itself behaves), not host project
// configuration.
package config

import (
	"fmt"
	"math/bits"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings controls chunk geometry and the streaming/meshing budgets of a
// single volume.
type Settings struct {
	// ChunkSize is the edge length of a LOD0 data block, in voxels. Must be
	// a power of two, typically 16 or 32.
	ChunkSize int `yaml:"chunk_size"`

	// LodCount is the number of LOD levels, 1..32 inclusive.
	LodCount int `yaml:"lod_count"`

	// LodDistance is the sliding-box half-extent, in chunks, per LOD. If
	// shorter than LodCount, the last entry is repeated for remaining LODs.
	LodDistance []int `yaml:"lod_distance"`

	// ViewDistance is the absolute cutoff, in voxel-space units, beyond
	// which chunks are dropped regardless of LOD-specific distance.
	ViewDistance float64 `yaml:"view_distance"`

	// DropHysteresisChunks widens the drop distance beyond the load
	// distance by this many chunk radii, to avoid load/unload thrashing at
	// the boundary.
	DropHysteresisChunks float64 `yaml:"drop_hysteresis_chunks"`

	// DrainBudget bounds how long the main-thread applier spends draining
	// completed tasks per frame.
	DrainBudget time.Duration `yaml:"drain_budget"`

	// EditBudgetPerFrame is validated to be positive. The engine does not
	// read it: each tick starts every queued async edit.
	EditBudgetPerFrame int `yaml:"edit_budget_per_frame"`

	// CollisionUpdateDelay rate-limits collider rebuilds per mesh block.
	CollisionUpdateDelay time.Duration `yaml:"collision_update_delay"`

	// WorkerCount sizes the task pool's parallel compute lane. Zero means
	// use GOMAXPROCS.
	WorkerCount int `yaml:"worker_count"`

	// MeshBlockSizeFactor is mesh_block_size / data_block_size. Only 1 and
	// 2 are legal (see SPEC_FULL.md Open Questions).
	MeshBlockSizeFactor int `yaml:"mesh_block_size_factor"`
}

// Default returns the documented defaults, matching the literal values
// used in the worked scenarios (block size 16, lod count 4, lod distance
// 48, view distance 256).
func Default() *Settings {
	return &Settings{
		ChunkSize:            16,
		LodCount:             4,
		LodDistance:          []int{3, 3, 3, 3},
		ViewDistance:         256,
		DropHysteresisChunks: 2,
		DrainBudget:          2 * time.Millisecond,
		EditBudgetPerFrame:   1024,
		CollisionUpdateDelay: 200 * time.Millisecond,
		WorkerCount:          0,
		MeshBlockSizeFactor:  1,
	}
}

// Load reads a YAML settings document, applying Default() for any field not
// present in the document.
func Load(path string) (*Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	s := Default()
	if err := yaml.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return s, nil
}

// Validate rejects settings combinations the rest of the engine assumes
// cannot occur.
func (s *Settings) Validate() error {
	if s.ChunkSize <= 0 || bits.OnesCount(uint(s.ChunkSize)) != 1 {
		return fmt.Errorf("chunk_size must be a power of two, got %d", s.ChunkSize)
	}
	if s.LodCount <= 0 || s.LodCount > 32 {
		return fmt.Errorf("lod_count must be in [1,32], got %d", s.LodCount)
	}
	if len(s.LodDistance) == 0 {
		return fmt.Errorf("lod_distance must not be empty")
	}
	if s.MeshBlockSizeFactor != 1 && s.MeshBlockSizeFactor != 2 {
		return fmt.Errorf("mesh_block_size_factor must be 1 or 2, got %d", s.MeshBlockSizeFactor)
	}
	if s.EditBudgetPerFrame <= 0 {
		return fmt.Errorf("edit_budget_per_frame must be positive")
	}
	return nil
}

// LodDistanceAt returns the sliding-box half-extent in chunks for a given
// LOD, clamping to the last configured entry.
func (s *Settings) LodDistanceAt(lod int) int {
	if lod < 0 {
		lod = 0
	}
	if lod >= len(s.LodDistance) {
		return s.LodDistance[len(s.LodDistance)-1]
	}
	return s.LodDistance[lod]
}

// DropDistanceSquared returns the squared world-space distance beyond
// which a chunk at the given LOD should be dropped, including the
// hysteresis margin.
func (s *Settings) DropDistanceSquared(lod int) float64 {
	chunkRadius := float64(s.ChunkSize<<uint(lod)) * 0.5
	d := s.ViewDistance + s.DropHysteresisChunks*chunkRadius*2
	return d * d
}
