package voxel

import "testing"

func TestVoxelBuffer_FillAndGet(t *testing.T) {
	b := Create(IVec3{4, 4, 4})
	if err := b.Fill(ChannelSDF, 5, Depth8); err != nil {
		t.Fatalf("fill: %v", err)
	}
	v, err := b.GetVoxel(IVec3{1, 2, 3}, ChannelSDF)
	if err != nil {
		t.Fatalf("get_voxel: %v", err)
	}
	if v != 5 {
		t.Errorf("expected uniform value 5, got %d", v)
	}
}

func TestVoxelBuffer_SetVoxelOutOfRange(t *testing.T) {
	b := Create(IVec3{4, 4, 4})
	if err := b.SetVoxel(IVec3{10, 0, 0}, 1, ChannelSDF, Depth8); err == nil {
		t.Errorf("expected out-of-range error")
	}
}

func TestVoxelBuffer_CompressRoundTrip(t *testing.T) {
	b := Create(IVec3{4, 4, 4})
	if err := b.Fill(ChannelType, 0, Depth8); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if err := b.SetVoxel(IVec3{1, 1, 1}, 9, ChannelType, Depth8); err != nil {
		t.Fatalf("set_voxel: %v", err)
	}
	if err := b.SetVoxel(IVec3{1, 1, 1}, 0, ChannelType, Depth8); err != nil {
		t.Fatalf("set_voxel: %v", err)
	}
	b.CompressUniformChannels()
	_, _, _, isUniform := b.GetChannelRaw(ChannelType)
	if !isUniform {
		t.Errorf("expected channel to recompress to uniform after all cells reverted")
	}
	for z := int32(0); z < 4; z++ {
		for x := int32(0); x < 4; x++ {
			for y := int32(0); y < 4; y++ {
				v, err := b.GetVoxel(IVec3{x, y, z}, ChannelType)
				if err != nil {
					t.Fatalf("get_voxel: %v", err)
				}
				if v != 0 {
					t.Errorf("expected 0 at %v,%v,%v, got %d", x, y, z, v)
				}
			}
		}
	}
}

func TestVoxelBuffer_CopyToIsIdentityOnOverlap(t *testing.T) {
	a := Create(IVec3{4, 4, 4})
	if err := a.SetVoxel(IVec3{2, 2, 2}, 42, ChannelSDF, Depth8); err != nil {
		t.Fatalf("set_voxel: %v", err)
	}
	b := Create(IVec3{4, 4, 4})
	box := Box{Min: IVec3{}, Size: IVec3{4, 4, 4}}
	if err := a.CopyTo(b, box, IVec3{}); err != nil {
		t.Fatalf("copy_to: %v", err)
	}
	if err := b.CopyFrom(a, box, IVec3{}); err != nil {
		t.Fatalf("copy_from: %v", err)
	}
	v, err := b.GetVoxel(IVec3{2, 2, 2}, ChannelSDF)
	if err != nil {
		t.Fatalf("get_voxel: %v", err)
	}
	if v != 42 {
		t.Errorf("expected round-tripped value 42, got %d", v)
	}
}

func TestVoxelBuffer_DownscaleHalvesResolution(t *testing.T) {
	src := Create(IVec3{4, 4, 4})
	if err := src.Fill(ChannelSDF, 1, Depth8); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if err := src.SetVoxel(IVec3{0, 0, 0}, 9, ChannelSDF, Depth8); err != nil {
		t.Fatalf("set_voxel: %v", err)
	}
	dst := Create(IVec3{2, 2, 2})
	box := Box{Min: IVec3{}, Size: IVec3{4, 4, 4}}
	if err := src.DownscaleTo(dst, box, IVec3{}); err != nil {
		t.Fatalf("downscale_to: %v", err)
	}
	v, err := dst.GetVoxel(IVec3{0, 0, 0}, ChannelSDF)
	if err != nil {
		t.Fatalf("get_voxel: %v", err)
	}
	if v != 9 {
		t.Errorf("expected stride-2 sample to pick origin value 9, got %d", v)
	}
}

func TestVoxelBuffer_SDFQuantizationRoundTrip(t *testing.T) {
	b := Create(IVec3{2, 2, 2})
	if err := b.SetVoxelF(IVec3{0, 0, 0}, -1.0, ChannelSDF, Depth8); err != nil {
		t.Fatalf("set_voxel_f: %v", err)
	}
	f, err := b.GetVoxelF(IVec3{0, 0, 0}, ChannelSDF)
	if err != nil {
		t.Fatalf("get_voxel_f: %v", err)
	}
	if f != -1.0 {
		t.Errorf("expected -1.0 after quantized round trip, got %v", f)
	}
}

func TestVoxelBuffer_DepthMismatchOnCopyFails(t *testing.T) {
	a := Create(IVec3{2, 2, 2})
	if err := a.Fill(ChannelSDF, 1, Depth8); err != nil {
		t.Fatalf("fill: %v", err)
	}
	b := Create(IVec3{2, 2, 2})
	if err := b.Fill(ChannelSDF, 1, Depth16); err != nil {
		t.Fatalf("fill: %v", err)
	}
	box := Box{Min: IVec3{}, Size: IVec3{2, 2, 2}}
	if err := a.CopyTo(b, box, IVec3{}); err == nil {
		t.Errorf("expected depth mismatch error")
	}
}
