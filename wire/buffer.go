// Package wire implements the chunk wire format (§6): per-buffer
// channel-by-channel serialization, a general-purpose compressor, and the
// block-batch / area binary records used by the optional multiplayer
// synchronizer and by bulk save. Grounded on the reference engine's
// ToBytes() binary.LittleEndian packing idiom (voxelrt/rt/bvh builder) and
// its GPU command binary encoding, with read/write framing generalized
// from a packet-style length-prefixed record layout.
package wire

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/gekko3d/voxelcore/voxel"
)

// channelHeaderSize is the per-channel header: 1 byte channel index, 1
// byte depth (in bits, fits a byte up to 255), 1 byte compression kind, 8
// bytes payload (either the uniform value or the expanded length).
const channelHeaderSize = 1 + 1 + 1 + 8

const (
	kindUniform byte = 0
	kindRaw     byte = 1
)

// SerializeBuffer writes buf's dimensions followed by every active
// channel's header and payload, uncompressed. Compress wraps the result
// through the general-purpose compressor separately, matching the
// wire-format note that voxels_compressed is this serialization fed
// through a compressor.
func SerializeBuffer(buf *voxel.VoxelBuffer) ([]byte, error) {
	var out bytes.Buffer
	size := buf.Size()
	if err := binary.Write(&out, binary.LittleEndian, size.X); err != nil {
		return nil, err
	}
	if err := binary.Write(&out, binary.LittleEndian, size.Y); err != nil {
		return nil, err
	}
	if err := binary.Write(&out, binary.LittleEndian, size.Z); err != nil {
		return nil, err
	}

	active := buf.ActiveChannels()
	if err := binary.Write(&out, binary.LittleEndian, uint8(len(active))); err != nil {
		return nil, err
	}
	for _, ch := range active {
		data, uniform, depth, isUniform := buf.GetChannelRaw(ch)
		out.WriteByte(byte(ch))
		out.WriteByte(byte(depth))
		if isUniform {
			out.WriteByte(kindUniform)
			if err := binary.Write(&out, binary.LittleEndian, uniform); err != nil {
				return nil, err
			}
		} else {
			out.WriteByte(kindRaw)
			if err := binary.Write(&out, binary.LittleEndian, uint64(len(data))); err != nil {
				return nil, err
			}
			out.Write(data)
		}
	}
	return out.Bytes(), nil
}

// DeserializeBuffer reconstructs a buffer from SerializeBuffer's output.
func DeserializeBuffer(raw []byte) (*voxel.VoxelBuffer, error) {
	r := bytes.NewReader(raw)
	var sx, sy, sz int32
	for _, p := range []*int32{&sx, &sy, &sz} {
		if err := binary.Read(r, binary.LittleEndian, p); err != nil {
			return nil, fmt.Errorf("wire: reading buffer dimensions: %w", err)
		}
	}
	buf := voxel.Create(voxel.IVec3{X: sx, Y: sy, Z: sz})

	var channelCount uint8
	if err := binary.Read(r, binary.LittleEndian, &channelCount); err != nil {
		return nil, fmt.Errorf("wire: reading channel count: %w", err)
	}
	for i := 0; i < int(channelCount); i++ {
		var chByte, depthByte, kind byte
		if err := readByte(r, &chByte); err != nil {
			return nil, err
		}
		if err := readByte(r, &depthByte); err != nil {
			return nil, err
		}
		if err := readByte(r, &kind); err != nil {
			return nil, err
		}
		depth := voxel.Depth(depthByte)
		switch kind {
		case kindUniform:
			var uniform uint64
			if err := binary.Read(r, binary.LittleEndian, &uniform); err != nil {
				return nil, fmt.Errorf("wire: reading uniform channel %d: %w", chByte, err)
			}
			if err := buf.SetChannelRaw(voxel.Channel(chByte), nil, uniform, depth); err != nil {
				return nil, err
			}
		case kindRaw:
			var length uint64
			if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
				return nil, fmt.Errorf("wire: reading channel %d length: %w", chByte, err)
			}
			data := make([]byte, length)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, fmt.Errorf("wire: reading channel %d payload: %w", chByte, err)
			}
			if err := buf.SetChannelRaw(voxel.Channel(chByte), data, 0, depth); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("wire: unknown channel compression kind %d", kind)
		}
	}
	return buf, nil
}

func readByte(r *bytes.Reader, out *byte) error {
	b, err := r.ReadByte()
	if err != nil {
		return err
	}
	*out = b
	return nil
}

// Compress runs raw through the general-purpose compressor (DEFLATE).
func Compress(raw []byte) ([]byte, error) {
	var out bytes.Buffer
	w, err := flate.NewWriter(&out, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Decompress reverses Compress.
func Decompress(compressed []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()
	return io.ReadAll(r)
}

// CompressBuffer serializes then compresses buf, the voxels_compressed
// payload of a block-batch or area record.
func CompressBuffer(buf *voxel.VoxelBuffer) ([]byte, error) {
	raw, err := SerializeBuffer(buf)
	if err != nil {
		return nil, err
	}
	return Compress(raw)
}

// DecompressBuffer reverses CompressBuffer.
func DecompressBuffer(compressed []byte) (*voxel.VoxelBuffer, error) {
	raw, err := Decompress(compressed)
	if err != nil {
		return nil, err
	}
	return DeserializeBuffer(raw)
}
