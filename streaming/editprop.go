package streaming

import (
	"context"
	"sync"

	"github.com/gekko3d/voxelcore/contracts"
	"github.com/gekko3d/voxelcore/datamap"
	"github.com/gekko3d/voxelcore/meshmap"
	"github.com/gekko3d/voxelcore/voxel"
)

// EditPropagator implements §4.10: after an edit box is posted at LOD0, it
// marks every intersecting LOD0 data/mesh block dirty, then mips the
// change up through every (src,dst) LOD pair in ascending order so
// coarser meshes stay consistent with the edit.
type EditPropagator struct {
	Data      *datamap.DataLodMap
	Mesh      *meshmap.LodMeshMap
	BlockSize int
	Generator contracts.Generator // optional: synthesizes a missing parent

	mu                sync.Mutex
	pendingLoddingLod0 map[voxel.IVec3]bool
}

func NewEditPropagator(data *datamap.DataLodMap, mesh *meshmap.LodMeshMap, blockSize int, gen contracts.Generator) *EditPropagator {
	return &EditPropagator{
		Data:               data,
		Mesh:               mesh,
		BlockSize:          blockSize,
		Generator:          gen,
		pendingLoddingLod0: make(map[voxel.IVec3]bool),
	}
}

// PostEditArea implements step 1/2 of §4.10: every LOD0 data block
// touching box.Padded(1) is marked modified+edited and queued for
// mipping; every LOD0 mesh block touching the same padded box is scheduled
// for a mesh update (widened by 1 so neighbor-contributed visuals like
// baked AO stay correct).
func (p *EditPropagator) PostEditArea(box Box) {
	padded := box.Padded(1)
	lod0Data := p.Data.At(0)
	for _, pos := range padded.Positions() {
		block := lod0Data.Get(pos)
		if block == nil {
			continue
		}
		block.Modified = true
		block.Edited = true
		p.mu.Lock()
		if !p.pendingLoddingLod0[pos] {
			p.pendingLoddingLod0[pos] = true
		}
		p.mu.Unlock()
	}
	if lod0Mesh := p.Mesh.At(0); lod0Mesh != nil {
		for _, pos := range padded.Positions() {
			lod0Mesh.ScheduleMeshUpdate(pos)
		}
	}
}

// DrainPendingLodding returns and clears the queued LOD0 positions awaiting
// the mip pass, matching "drains blocks_pending_lodding_lod0 before
// anything else".
func (p *EditPropagator) DrainPendingLodding() []voxel.IVec3 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]voxel.IVec3, 0, len(p.pendingLoddingLod0))
	for pos := range p.pendingLoddingLod0 {
		out = append(out, pos)
	}
	p.pendingLoddingLod0 = make(map[voxel.IVec3]bool)
	return out
}

// RunMipPass walks every (srcLod, dstLod) pair from 0→1, 1→2, ... mipping
// every modified src block in srcPositions into its LOD+1 parent, then
// recursing with the touched parents until there is no further LOD to
// propagate into.
func (p *EditPropagator) RunMipPass(ctx context.Context, srcLod int, srcPositions []voxel.IVec3) {
	dstLod := srcLod + 1
	if dstLod >= p.Data.LodCount() {
		return
	}
	srcMap := p.Data.At(srcLod)
	dstMap := p.Data.At(dstLod)
	dstMesh := p.Mesh.At(dstLod)

	touchedDst := make(map[voxel.IVec3]bool)
	for _, srcPos := range srcPositions {
		srcBlock := srcMap.Get(srcPos)
		if srcBlock == nil || srcBlock.Buffer == nil {
			continue
		}
		dstPos := voxel.IVec3{X: floorDiv2(srcPos.X), Y: floorDiv2(srcPos.Y), Z: floorDiv2(srcPos.Z)}
		dstBlock := dstMap.Get(dstPos)
		if dstBlock == nil {
			dstBlock = p.synthesizeParent(ctx, dstPos, dstLod)
			if dstBlock == nil {
				continue
			}
			dstMap.Set(dstPos, dstBlock)
		}
		if dstMesh != nil {
			dstMesh.ScheduleMeshUpdate(dstPos)
		}

		half := int32(p.BlockSize / 2)
		octant := voxel.IVec3{
			X: (srcPos.X & 1) * half,
			Y: (srcPos.Y & 1) * half,
			Z: (srcPos.Z & 1) * half,
		}
		fullBox := voxel.Box{Min: voxel.IVec3{}, Size: voxel.IVec3{X: int32(p.BlockSize), Y: int32(p.BlockSize), Z: int32(p.BlockSize)}}
		if dstBlock.Buffer != nil {
			_ = srcBlock.Buffer.DownscaleTo(dstBlock.Buffer, fullBox, octant)
		}
		dstBlock.Modified = true
		touchedDst[dstPos] = true
	}

	if len(touchedDst) == 0 {
		return
	}
	next := make([]voxel.IVec3, 0, len(touchedDst))
	for pos := range touchedDst {
		next = append(next, pos)
	}
	p.RunMipPass(ctx, dstLod, next)
}

func (p *EditPropagator) synthesizeParent(ctx context.Context, pos voxel.IVec3, lod int) *datamap.DataBlock {
	buf := voxel.Create(voxel.IVec3{X: int32(p.BlockSize), Y: int32(p.BlockSize), Z: int32(p.BlockSize)})
	if p.Generator != nil {
		scale := int32(1) << uint(lod)
		origin := voxel.IVec3{X: pos.X * int32(p.BlockSize) * scale, Y: pos.Y * int32(p.BlockSize) * scale, Z: pos.Z * int32(p.BlockSize) * scale}
		if _, err := p.Generator.GenerateBlock(ctx, buf, origin, lod); err != nil {
			return nil
		}
	}
	return &datamap.DataBlock{Buffer: buf, LodIndex: lod}
}

func floorDiv2(v int32) int32 {
	if v >= 0 {
		return v >> 1
	}
	return -((-v + 1) >> 1)
}
