package voxel

// BlockMetadata returns the block-level variant metadata, or nil.
func (b *VoxelBuffer) BlockMetadata() any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.blockMeta
}

// SetBlockMetadata replaces the block-level variant metadata.
func (b *VoxelBuffer) SetBlockMetadata(v any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blockMeta = v
}

// VoxelMetadata returns the per-voxel sparse metadata at pos, or nil.
func (b *VoxelBuffer) VoxelMetadata(pos IVec3) any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.voxelMeta == nil {
		return nil
	}
	return b.voxelMeta[pos]
}

// SetVoxelMetadata sets or clears (v == nil) per-voxel metadata at pos.
func (b *VoxelBuffer) SetVoxelMetadata(pos IVec3, v any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v == nil {
		if b.voxelMeta != nil {
			delete(b.voxelMeta, pos)
		}
		return
	}
	if b.voxelMeta == nil {
		b.voxelMeta = make(map[IVec3]any)
	}
	b.voxelMeta[pos] = v
}

// ClearMetadataArea removes per-voxel metadata entries within box, and
// optionally the block-level metadata if clearBlock is set.
func (b *VoxelBuffer) ClearMetadataArea(box Box, clearBlock bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if clearBlock {
		b.blockMeta = nil
	}
	if b.voxelMeta == nil {
		return
	}
	for p := range b.voxelMeta {
		if box.Contains(p) {
			delete(b.voxelMeta, p)
		}
	}
}

// CopyMetadataArea copies per-voxel metadata entries within srcBox from b
// into dst, offset by (dstMin - srcBox.Min).
func (b *VoxelBuffer) CopyMetadataArea(dst *VoxelBuffer, srcBox Box, dstMin IVec3) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.voxelMeta == nil {
		return
	}
	dst.mu.Lock()
	defer dst.mu.Unlock()
	offset := IVec3{dstMin.X - srcBox.Min.X, dstMin.Y - srcBox.Min.Y, dstMin.Z - srcBox.Min.Z}
	for p, v := range b.voxelMeta {
		if !srcBox.Contains(p) {
			continue
		}
		if dst.voxelMeta == nil {
			dst.voxelMeta = make(map[IVec3]any)
		}
		dst.voxelMeta[p.Add(offset)] = v
	}
}
