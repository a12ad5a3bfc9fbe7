package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/gekko3d/voxelcore/voxel"
)

// BlockRecord is one chunk in a block batch: a little-endian i16 position
// (batches are not expected to span more than +/-32767 chunks from
// origin), a u16 compressed size, and the compressed payload.
type BlockRecord struct {
	Pos              voxel.IVec3
	VoxelsCompressed []byte
}

// WriteBlockBatch writes u32 block_count followed by each record's
// {i16 x, i16 y, i16 z, u16 size, payload}, all little-endian.
func WriteBlockBatch(w io.Writer, records []BlockRecord) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(records))); err != nil {
		return err
	}
	for _, rec := range records {
		if len(rec.VoxelsCompressed) > 0xFFFF {
			return fmt.Errorf("wire: block at %v compressed payload too large for a u16 size field (%d bytes)", rec.Pos, len(rec.VoxelsCompressed))
		}
		for _, v := range []int16{int16(rec.Pos.X), int16(rec.Pos.Y), int16(rec.Pos.Z)} {
			if err := binary.Write(w, binary.LittleEndian, v); err != nil {
				return err
			}
		}
		if err := binary.Write(w, binary.LittleEndian, uint16(len(rec.VoxelsCompressed))); err != nil {
			return err
		}
		if _, err := w.Write(rec.VoxelsCompressed); err != nil {
			return err
		}
	}
	return nil
}

// ReadBlockBatch reverses WriteBlockBatch.
func ReadBlockBatch(r io.Reader) ([]BlockRecord, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("wire: reading block_count: %w", err)
	}
	out := make([]BlockRecord, 0, count)
	for i := uint32(0); i < count; i++ {
		var x, y, z int16
		for _, p := range []*int16{&x, &y, &z} {
			if err := binary.Read(r, binary.LittleEndian, p); err != nil {
				return nil, fmt.Errorf("wire: reading block %d position: %w", i, err)
			}
		}
		var size uint16
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, fmt.Errorf("wire: reading block %d size: %w", i, err)
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("wire: reading block %d payload: %w", i, err)
		}
		out = append(out, BlockRecord{
			Pos:              voxel.IVec3{X: int32(x), Y: int32(y), Z: int32(z)},
			VoxelsCompressed: payload,
		})
	}
	return out, nil
}

// AreaRecord is a single area export: an i32 position, a u32 size, and the
// compressed payload.
type AreaRecord struct {
	Pos              voxel.IVec3
	VoxelsCompressed []byte
}

// WriteArea writes {i32 x, i32 y, i32 z, u32 size, payload}, little-endian.
func WriteArea(w io.Writer, rec AreaRecord) error {
	for _, v := range []int32{rec.Pos.X, rec.Pos.Y, rec.Pos.Z} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(rec.VoxelsCompressed))); err != nil {
		return err
	}
	_, err := w.Write(rec.VoxelsCompressed)
	return err
}

// ReadArea reverses WriteArea.
func ReadArea(r io.Reader) (AreaRecord, error) {
	var x, y, z int32
	for _, p := range []*int32{&x, &y, &z} {
		if err := binary.Read(r, binary.LittleEndian, p); err != nil {
			return AreaRecord{}, fmt.Errorf("wire: reading area position: %w", err)
		}
	}
	var size uint32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return AreaRecord{}, fmt.Errorf("wire: reading area size: %w", err)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return AreaRecord{}, fmt.Errorf("wire: reading area payload: %w", err)
	}
	return AreaRecord{Pos: voxel.IVec3{X: x, Y: y, Z: z}, VoxelsCompressed: payload}, nil
}

// EncodeBlockBatch is a convenience wrapper returning the batch as bytes.
func EncodeBlockBatch(records []BlockRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteBlockBatch(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
