package gpu

import (
	"encoding/binary"
	"testing"

	"github.com/gekko3d/voxelcore/voxel"
)

func TestEncodeParams_PacksOriginLodAndBlockSizeLittleEndian(t *testing.T) {
	origin := voxel.IVec3{X: -5, Y: 16, Z: 320}
	buf := encodeParams(origin, 2, 32)

	if len(buf) != paramsSize {
		t.Fatalf("expected a %d-byte params block, got %d", paramsSize, len(buf))
	}
	if got := int32(binary.LittleEndian.Uint32(buf[0:4])); got != origin.X {
		t.Errorf("expected x=%d, got %d", origin.X, got)
	}
	if got := int32(binary.LittleEndian.Uint32(buf[4:8])); got != origin.Y {
		t.Errorf("expected y=%d, got %d", origin.Y, got)
	}
	if got := int32(binary.LittleEndian.Uint32(buf[8:12])); got != origin.Z {
		t.Errorf("expected z=%d, got %d", origin.Z, got)
	}
	if got := binary.LittleEndian.Uint32(buf[12:16]); got != 2 {
		t.Errorf("expected lod=2, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(buf[16:20]); got != 32 {
		t.Errorf("expected block size=32, got %d", got)
	}
}

func TestTicket_ConsumeRejectsSecondCall(t *testing.T) {
	tk := &ticket{manager: &Manager{Depth: voxel.Depth16}}
	tk.mapped.Store(true)
	tk.consumed.Store(true)

	err := tk.Consume(voxel.Create(voxel.IVec3{X: 2, Y: 2, Z: 2}))
	if err == nil {
		t.Errorf("expected an error when consuming an already-consumed ticket")
	}
}
