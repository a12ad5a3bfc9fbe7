package datamap

import (
	"testing"

	"github.com/gekko3d/voxelcore/voxel"
)

func TestDataMap_AtMostOneBlockPerPosition(t *testing.T) {
	m := NewDataMap(16)
	p := voxel.IVec3{X: 1, Y: 2, Z: 3}
	m.Set(p, &DataBlock{Modified: false})
	m.Set(p, &DataBlock{Modified: true})
	if m.Len() != 1 {
		t.Fatalf("expected exactly one block at p, map has %d entries", m.Len())
	}
	if !m.Get(p).Modified {
		t.Errorf("expected the second Set to have replaced the first")
	}
}

func TestDataBlock_ZeroViewersNotRetainedAfterUnload(t *testing.T) {
	m := NewDataMap(16)
	p := voxel.IVec3{}
	b := &DataBlock{}
	b.AddViewer()
	m.Set(p, b)

	if b.RemoveViewer() != 0 {
		t.Fatalf("expected refcount to reach 0")
	}

	// simulate the unload pass
	if b.ViewerCount() == 0 {
		m.Delete(p)
	}
	if m.Has(p) {
		t.Errorf("block with zero viewers must not be retained after the next unload pass")
	}
}

func TestDataBlock_NilBufferIsValidEmptyMarker(t *testing.T) {
	m := NewDataMap(16)
	p := voxel.IVec3{}
	m.Set(p, &DataBlock{Buffer: nil})
	b := m.Get(p)
	if b == nil {
		t.Fatalf("expected a block to be present")
	}
	if b.Buffer != nil {
		t.Errorf("expected nil buffer to mean known-empty, not absent")
	}
}

func TestDataLodMap_LodCountCapped(t *testing.T) {
	d := NewDataLodMap(64, 16)
	if d.LodCount() != 32 {
		t.Errorf("expected lod count capped at 32, got %d", d.LodCount())
	}
	if d.At(32) != nil {
		t.Errorf("expected At(32) out of range to return nil")
	}
}
