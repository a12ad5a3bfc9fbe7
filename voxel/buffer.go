// Package voxel implements the dense, multi-channel per-chunk storage
// buffer: per-channel uniform/expanded compression, quantized SDF
// semantics, and sparse metadata. Grounded on the sparse brick/sector
// compression model in the reference engine's XBrickMap, generalized here
// from sparse-brick storage to the dense per-channel model this engine
// needs: a channel is either a single uniform value (no backing array) or
// a fully expanded flat array.
package voxel

import (
	"fmt"
	"sync"
)

// channelState holds one channel's compression state.
type channelState struct {
	depth    Depth
	uniform  uint64 // valid when expanded == nil
	expanded []byte // nil means uniform
	active   bool   // whether this channel slot is in use at all
}

// VoxelBuffer is a dense size.X × size.Y × size.Z box of up to MaxChannels
// channels. Cells are addressed in z,x,y order with Y as the innermost
// (cheapest-stride) dimension, matching the convention that Y is vertical
// and iterating along Y is cheapest for meshing sweeps.
type VoxelBuffer struct {
	mu sync.RWMutex

	size     IVec3
	channels [MaxChannels]channelState

	blockMeta  any
	voxelMeta  map[IVec3]any
}

// Create allocates a buffer of the given size with all channels uniform
// (zero value), undeclared until first used.
func Create(size IVec3) *VoxelBuffer {
	return &VoxelBuffer{size: size}
}

func (b *VoxelBuffer) Size() IVec3 { return b.size }

func (b *VoxelBuffer) cellCount() int64 {
	return int64(b.size.X) * int64(b.size.Y) * int64(b.size.Z)
}

// index computes the flat offset for pos in z,x,y order.
func (b *VoxelBuffer) index(pos IVec3) int64 {
	return (int64(pos.Z)*int64(b.size.X)+int64(pos.X))*int64(b.size.Y) + int64(pos.Y)
}

func (b *VoxelBuffer) inBounds(pos IVec3) bool {
	return pos.X >= 0 && pos.X < b.size.X &&
		pos.Y >= 0 && pos.Y < b.size.Y &&
		pos.Z >= 0 && pos.Z < b.size.Z
}

// ensureChannel lazily activates a channel at the given depth, defaulting
// to a zero uniform value. Re-activating at a different depth is an error
// once the channel already holds data, to keep depth mismatches from
// silently corrupting a downstream copy.
func (b *VoxelBuffer) ensureChannel(ch Channel, depth Depth) error {
	c := &b.channels[ch]
	if !c.active {
		c.active = true
		c.depth = depth
		c.uniform = 0
		c.expanded = nil
		return nil
	}
	if c.depth != depth {
		return fmt.Errorf("voxel: channel %d already active at depth %d, requested %d", ch, c.depth, depth)
	}
	return nil
}

// Clear resets every channel to an inactive, zero-uniform state.
func (b *VoxelBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.channels {
		b.channels[i] = channelState{}
	}
	b.voxelMeta = nil
	b.blockMeta = nil
}

// Fill sets every cell of a channel to value, releasing any backing array
// (the channel becomes uniform).
func (b *VoxelBuffer) Fill(channel Channel, value uint64, depth Depth) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureChannel(channel, depth); err != nil {
		return err
	}
	c := &b.channels[channel]
	c.expanded = nil
	c.uniform = value
	return nil
}

// FillArea sets every cell within box to value. If the channel is
// currently uniform and box covers the whole buffer, the fast uniform path
// is taken instead of expanding.
func (b *VoxelBuffer) FillArea(channel Channel, value uint64, box Box, depth Depth) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureChannel(channel, depth); err != nil {
		return err
	}
	full := Box{Min: IVec3{}, Size: b.size}
	if box == full {
		c := &b.channels[channel]
		c.expanded = nil
		c.uniform = value
		return nil
	}
	if err := b.decompressLocked(channel); err != nil {
		return err
	}
	c := &b.channels[channel]
	nb := c.depth.Bytes()
	for z := box.Min.Z; z < box.Min.Z+box.Size.Z; z++ {
		for x := box.Min.X; x < box.Min.X+box.Size.X; x++ {
			for y := box.Min.Y; y < box.Min.Y+box.Size.Y; y++ {
				p := IVec3{x, y, z}
				if !b.inBounds(p) {
					return fmt.Errorf("voxel: fill_area out of range at %v", p)
				}
				putCell(c.expanded, b.index(p), nb, value)
			}
		}
	}
	return nil
}

// GetVoxel returns a channel's raw cell value at pos.
func (b *VoxelBuffer) GetVoxel(pos IVec3, channel Channel) (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.inBounds(pos) {
		return 0, fmt.Errorf("voxel: get_voxel out of range at %v", pos)
	}
	c := &b.channels[channel]
	if !c.active {
		return 0, nil
	}
	if c.expanded == nil {
		return c.uniform, nil
	}
	return getCell(c.expanded, b.index(pos), c.depth.Bytes()), nil
}

// SetVoxel writes a single cell, decompressing the channel into an
// expanded array first if it was uniform and the new value differs.
func (b *VoxelBuffer) SetVoxel(pos IVec3, value uint64, channel Channel, depth Depth) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.inBounds(pos) {
		return fmt.Errorf("voxel: set_voxel out of range at %v", pos)
	}
	if err := b.ensureChannel(channel, depth); err != nil {
		return err
	}
	c := &b.channels[channel]
	if c.expanded == nil {
		if c.uniform == value {
			return nil
		}
		if err := b.decompressLocked(channel); err != nil {
			return err
		}
	}
	putCell(c.expanded, b.index(pos), c.depth.Bytes(), value)
	return nil
}

// GetVoxelF reads the SDF channel converted through its quantization
// scale into a float in [-1,1] (or the IEEE float directly at 32/64-bit).
func (b *VoxelBuffer) GetVoxelF(pos IVec3, channel Channel) (float64, error) {
	b.mu.RLock()
	depth := b.channels[channel].depth
	b.mu.RUnlock()
	raw, err := b.GetVoxel(pos, channel)
	if err != nil {
		return 0, err
	}
	return decodeSDF(raw, depth), nil
}

// SetVoxelF writes a float SDF value, quantizing per the channel's depth.
func (b *VoxelBuffer) SetVoxelF(pos IVec3, value float64, channel Channel, depth Depth) error {
	return b.SetVoxel(pos, encodeSDF(value, depth), channel, depth)
}

func decodeSDF(raw uint64, depth Depth) float64 {
	scale := sdfScale(depth)
	if scale == 0 {
		// 32/64-bit: bit pattern is the float itself, truncated to the
		// matching width by the caller's depth choice.
		if depth == Depth32 {
			return float64(float32FromBits(uint32(raw)))
		}
		return float64FromBits(raw)
	}
	signed := int64(int8(raw))
	if depth == Depth16 {
		signed = int64(int16(raw))
	}
	v := float64(signed) * scale
	if v > 1 {
		v = 1
	}
	if v < -1 {
		v = -1
	}
	return v
}

func encodeSDF(value float64, depth Depth) uint64 {
	scale := sdfScale(depth)
	if scale == 0 {
		if depth == Depth32 {
			return uint64(float32Bits(float32(value)))
		}
		return float64Bits(value)
	}
	if value > 1 {
		value = 1
	}
	if value < -1 {
		value = -1
	}
	q := int64(value / scale)
	if depth == Depth8 {
		return uint64(uint8(int8(q)))
	}
	return uint64(uint16(int16(q)))
}

// CopyTo copies srcBox from b into dst at dstMin, channel by channel,
// requiring matching depth per channel. b is read-locked, dst is
// write-locked for the duration.
func (b *VoxelBuffer) CopyTo(dst *VoxelBuffer, srcBox Box, dstMin IVec3) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	dst.mu.Lock()
	defer dst.mu.Unlock()
	for ch := Channel(0); int(ch) < MaxChannels; ch++ {
		sc := &b.channels[ch]
		if !sc.active {
			continue
		}
		dc := &dst.channels[ch]
		if dc.active && dc.depth != sc.depth {
			return fmt.Errorf("voxel: copy_to depth mismatch on channel %d: %d vs %d", ch, sc.depth, dc.depth)
		}
		if !dc.active {
			dc.active = true
			dc.depth = sc.depth
		}
		if sc.expanded == nil && dc.expanded == nil && dc.uniform == sc.uniform {
			continue
		}
		if err := b.decompressLocked(ch); err != nil {
			return err
		}
		if err := dst.decompressLocked(ch); err != nil {
			return err
		}
		sc = &b.channels[ch]
		dc = &dst.channels[ch]
		nb := sc.depth.Bytes()
		for z := int32(0); z < srcBox.Size.Z; z++ {
			for x := int32(0); x < srcBox.Size.X; x++ {
				for y := int32(0); y < srcBox.Size.Y; y++ {
					sp := IVec3{srcBox.Min.X + x, srcBox.Min.Y + y, srcBox.Min.Z + z}
					dp := IVec3{dstMin.X + x, dstMin.Y + y, dstMin.Z + z}
					if !b.inBounds(sp) || !dst.inBounds(dp) {
						continue
					}
					v := getCell(sc.expanded, b.index(sp), nb)
					putCell(dc.expanded, dst.index(dp), nb, v)
				}
			}
		}
	}
	return nil
}

// CopyFrom is the mirror of CopyTo, reading from src into b.
func (b *VoxelBuffer) CopyFrom(src *VoxelBuffer, srcBox Box, dstMin IVec3) error {
	return src.CopyTo(b, srcBox, dstMin)
}

// DownscaleTo halves resolution by stride-2 sampling from srcBox of b into
// dst at dstMin; depth is preserved per channel.
func (b *VoxelBuffer) DownscaleTo(dst *VoxelBuffer, srcBox Box, dstMin IVec3) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	dst.mu.Lock()
	defer dst.mu.Unlock()
	for ch := Channel(0); int(ch) < MaxChannels; ch++ {
		sc := &b.channels[ch]
		if !sc.active {
			continue
		}
		dc := &dst.channels[ch]
		if dc.active && dc.depth != sc.depth {
			return fmt.Errorf("voxel: downscale_to depth mismatch on channel %d", ch)
		}
		if !dc.active {
			dc.active = true
			dc.depth = sc.depth
		}
		if sc.expanded == nil && dc.expanded == nil && sc.uniform == dc.uniform {
			continue
		}
		if err := b.decompressLocked(ch); err != nil {
			return err
		}
		if err := dst.decompressLocked(ch); err != nil {
			return err
		}
		sc = &b.channels[ch]
		dc = &dst.channels[ch]
		nb := sc.depth.Bytes()
		halfX, halfY, halfZ := srcBox.Size.X/2, srcBox.Size.Y/2, srcBox.Size.Z/2
		for z := int32(0); z < halfZ; z++ {
			for x := int32(0); x < halfX; x++ {
				for y := int32(0); y < halfY; y++ {
					sp := IVec3{srcBox.Min.X + x*2, srcBox.Min.Y + y*2, srcBox.Min.Z + z*2}
					dp := IVec3{dstMin.X + x, dstMin.Y + y, dstMin.Z + z}
					if !b.inBounds(sp) || !dst.inBounds(dp) {
						continue
					}
					v := getCell(sc.expanded, b.index(sp), nb)
					putCell(dc.expanded, dst.index(dp), nb, v)
				}
			}
		}
	}
	return nil
}

// decompressLocked materializes channel's backing array if it is
// currently uniform. Caller must hold the write lock.
func (b *VoxelBuffer) decompressLocked(channel Channel) error {
	c := &b.channels[channel]
	if !c.active {
		return fmt.Errorf("voxel: decompress inactive channel %d", channel)
	}
	if c.expanded != nil {
		return nil
	}
	nb := c.depth.Bytes()
	buf := Alloc(int(b.cellCount()) * nb)
	for i := int64(0); i < b.cellCount(); i++ {
		putCell(buf, i, nb, c.uniform)
	}
	c.expanded = buf
	return nil
}

// DecompressChannel materializes the array if the channel is uniform.
func (b *VoxelBuffer) DecompressChannel(channel Channel) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.decompressLocked(channel)
}

// CompressUniformChannels scans every expanded channel and releases its
// backing array back to the pool if every cell holds the same value.
func (b *VoxelBuffer) CompressUniformChannels() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.channels {
		c := &b.channels[i]
		if !c.active || c.expanded == nil {
			continue
		}
		nb := c.depth.Bytes()
		first := getCell(c.expanded, 0, nb)
		uniform := true
		for idx := int64(1); idx < b.cellCount(); idx++ {
			if getCell(c.expanded, idx, nb) != first {
				uniform = false
				break
			}
		}
		if uniform {
			Free(c.expanded)
			c.expanded = nil
			c.uniform = first
		}
	}
}

// GetChannelRaw exposes the backing byte span for serialization. Returns
// (nil, uniformValue, depth, true) when the channel is uniform.
func (b *VoxelBuffer) GetChannelRaw(channel Channel) (data []byte, uniform uint64, depth Depth, isUniform bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c := &b.channels[channel]
	if !c.active {
		return nil, 0, 0, true
	}
	if c.expanded == nil {
		return nil, c.uniform, c.depth, true
	}
	return c.expanded, 0, c.depth, false
}

// SetChannelRaw installs channel's backing state directly, for
// deserialization. data == nil installs a uniform channel at uniform; a
// non-nil data must hold exactly cellCount()*depth.Bytes() bytes.
func (b *VoxelBuffer) SetChannelRaw(channel Channel, data []byte, uniform uint64, depth Depth) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if data != nil && int64(len(data)) != b.cellCount()*int64(depth.Bytes()) {
		return fmt.Errorf("voxel: set_channel_raw wrong length for channel %d: got %d, want %d", channel, len(data), b.cellCount()*int64(depth.Bytes()))
	}
	c := &b.channels[channel]
	c.active = true
	c.depth = depth
	c.expanded = data
	c.uniform = uniform
	return nil
}

// Equals reports whether two buffers have identical size and, for every
// active channel, identical cell-by-cell contents at the same depth.
func (b *VoxelBuffer) Equals(o *VoxelBuffer) bool {
	if b.size != o.size {
		return false
	}
	for ch := Channel(0); int(ch) < MaxChannels; ch++ {
		bData, bUniform, bDepth, bIsUniform := b.GetChannelRaw(ch)
		oData, oUniform, oDepth, oIsUniform := o.GetChannelRaw(ch)
		if bDepth == 0 && oDepth == 0 {
			continue // neither side has this channel active
		}
		if bIsUniform != oIsUniform || bDepth != oDepth {
			return false
		}
		if bIsUniform {
			if bUniform != oUniform {
				return false
			}
			continue
		}
		if len(bData) != len(oData) {
			return false
		}
		for i := range bData {
			if bData[i] != oData[i] {
				return false
			}
		}
	}
	return true
}

// ActiveChannels reports which channel indices currently hold data.
func (b *VoxelBuffer) ActiveChannels() []Channel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Channel
	for i, c := range b.channels {
		if c.active {
			out = append(out, Channel(i))
		}
	}
	return out
}

func putCell(buf []byte, idx int64, nb int, v uint64) {
	off := idx * int64(nb)
	for i := 0; i < nb; i++ {
		buf[off+int64(i)] = byte(v >> (8 * uint(i)))
	}
}

func getCell(buf []byte, idx int64, nb int) uint64 {
	off := idx * int64(nb)
	var v uint64
	for i := 0; i < nb; i++ {
		v |= uint64(buf[off+int64(i)]) << (8 * uint(i))
	}
	return v
}
