package voximport

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func writeChunk(buf *bytes.Buffer, id string, body []byte) {
	buf.WriteString(id)
	binary.Write(buf, binary.LittleEndian, uint32(len(body)))
	binary.Write(buf, binary.LittleEndian, uint32(0))
	buf.Write(body)
}

func u32le(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func buildMinimalFile(sizeBody, xyziBody []byte) []byte {
	var out bytes.Buffer
	out.WriteString("VOX ")
	binary.Write(&out, binary.LittleEndian, uint32(150))
	writeChunk(&out, "SIZE", sizeBody)
	writeChunk(&out, "XYZI", xyziBody)
	return out.Bytes()
}

func TestLoad_ParsesSingleModelWithoutSceneGraph(t *testing.T) {
	var size bytes.Buffer
	size.Write(u32le(2))
	size.Write(u32le(2))
	size.Write(u32le(2))

	var xyzi bytes.Buffer
	xyzi.Write(u32le(1))
	xyzi.Write([]byte{0, 0, 0, 5}) // x,y,z,color index

	data, err := Load(bytes.NewReader(buildMinimalFile(size.Bytes(), xyzi.Bytes())))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(data.Models) != 1 {
		t.Fatalf("expected one model, got %d", len(data.Models))
	}
	if data.RootNodeID != -1 {
		t.Errorf("expected no scene-graph root when the file carries no nodes, got %d", data.RootNodeID)
	}
	m := data.Models[0]
	if m.Size.X != 2 || m.Size.Y != 2 || m.Size.Z != 2 {
		t.Errorf("expected remapped size (2,2,2), got %v", m.Size)
	}
	if m.ColorIndex[0] != 5 {
		t.Errorf("expected color index 5 at origin, got %d", m.ColorIndex[0])
	}
}

func TestLoad_RejectsBadMagic(t *testing.T) {
	_, err := Load(bytes.NewReader([]byte("NOPE")))
	if err == nil {
		t.Fatalf("expected an error for a bad magic header")
	}
}

func TestLoad_RejectsMultipleSceneGraphRoots(t *testing.T) {
	var size bytes.Buffer
	size.Write(u32le(1))
	size.Write(u32le(1))
	size.Write(u32le(1))
	var xyzi bytes.Buffer
	xyzi.Write(u32le(0))

	var dict1 bytes.Buffer // empty attribute dict (0 items)
	dict1.Write(u32le(0))

	// Two independent nGRP nodes with no children: both are unreferenced,
	// so both look like roots.
	var grp1 bytes.Buffer
	grp1.Write(u32le(1)) // node id
	grp1.Write(dict1.Bytes())
	grp1.Write(u32le(0)) // child count

	var grp2 bytes.Buffer
	grp2.Write(u32le(2))
	grp2.Write(dict1.Bytes())
	grp2.Write(u32le(0))

	var out bytes.Buffer
	out.WriteString("VOX ")
	binary.Write(&out, binary.LittleEndian, uint32(150))
	writeChunk(&out, "SIZE", size.Bytes())
	writeChunk(&out, "XYZI", xyzi.Bytes())
	writeChunk(&out, "nGRP", grp1.Bytes())
	writeChunk(&out, "nGRP", grp2.Bytes())

	_, err := Load(bytes.NewReader(out.Bytes()))
	if err == nil {
		t.Fatalf("expected an error when more than one scene-graph root exists")
	}
}

func TestParseBasis_ProducesOrthonormalSignedAxes(t *testing.T) {
	// byte = 0b00_10_01_00: xi=0 (bits0-1), yi=1 (bits2-3... wait compute below), no sign bits.
	b := parseBasis(0x04)
	seen := map[[3]int32]bool{}
	for _, row := range b.Rows {
		key := [3]int32{row.X, row.Y, row.Z}
		seen[key] = true
		nonZero := 0
		if row.X != 0 {
			nonZero++
		}
		if row.Y != 0 {
			nonZero++
		}
		if row.Z != 0 {
			nonZero++
		}
		if nonZero != 1 {
			t.Errorf("expected exactly one non-zero component per row, got %v", row)
		}
	}
}
