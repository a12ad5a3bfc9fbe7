// Package regionstream implements a concrete, pluggable contracts.Stream
// backed by fixed-capacity region files: a header of {offset, size} pairs
// addressing one compressed payload per chunk slot, followed by an
// append-only area of payload bytes. Grounded on the idiomatic Go framing
// style of the pack's chunk-buffer backend (explicit header/payload
// separation, os.File as the backing store) and on the original engine's
// per-region file naming convention, adapted here from a streamed network
// buffer to a random-access on-disk index.
package regionstream

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gekko3d/voxelcore/voxel"
)

// RegionSize is the number of chunks along each axis a single region file
// covers.
const RegionSize = 16

const regionCapacity = RegionSize * RegionSize * RegionSize

// headerEntrySize is one index slot: an 8-byte little-endian offset and a
// 4-byte little-endian size. size == 0 means the slot is empty.
const headerEntrySize = 8 + 4
const headerSize = regionCapacity * headerEntrySize

// regionKey identifies one region file.
type regionKey struct {
	x, y, z int32
	lod     int
}

// regionCoord splits a chunk position into its region coordinate and its
// linear index within that region's header, z,x,y-ordered to match
// voxel.VoxelBuffer's own cell ordering convention.
func regionCoord(pos voxel.IVec3) (region voxel.IVec3, localIndex int) {
	rx, lx := floorDivMod(pos.X, RegionSize)
	ry, ly := floorDivMod(pos.Y, RegionSize)
	rz, lz := floorDivMod(pos.Z, RegionSize)
	region = voxel.IVec3{X: rx, Y: ry, Z: rz}
	localIndex = int((lz*RegionSize+lx)*RegionSize + ly)
	return region, localIndex
}

func floorDivMod(a, b int32) (q, r int32) {
	q = a / b
	r = a % b
	if r < 0 {
		q--
		r += b
	}
	return q, r
}

// regionFile is one open region file plus its in-memory header.
type regionFile struct {
	mu     sync.Mutex
	file   *os.File
	header []headerEntry
	dirty  bool
}

type headerEntry struct {
	offset uint64
	size   uint32
}

func openRegionFile(path string) (*regionFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("regionstream: opening %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	rf := &regionFile{file: f, header: make([]headerEntry, regionCapacity)}
	if info.Size() == 0 {
		if err := rf.writeFreshHeader(); err != nil {
			f.Close()
			return nil, err
		}
		return rf, nil
	}
	if err := rf.readHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return rf, nil
}

func (rf *regionFile) writeFreshHeader() error {
	buf := make([]byte, headerSize)
	if _, err := rf.file.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("regionstream: writing fresh header: %w", err)
	}
	return nil
}

func (rf *regionFile) readHeader() error {
	buf := make([]byte, headerSize)
	if _, err := rf.file.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("regionstream: reading header: %w", err)
	}
	for i := range rf.header {
		off := i * headerEntrySize
		rf.header[i] = headerEntry{
			offset: binary.LittleEndian.Uint64(buf[off : off+8]),
			size:   binary.LittleEndian.Uint32(buf[off+8 : off+12]),
		}
	}
	return nil
}

// read returns the payload at localIndex, or (nil, false) if empty.
func (rf *regionFile) read(localIndex int) ([]byte, bool, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	entry := rf.header[localIndex]
	if entry.size == 0 {
		return nil, false, nil
	}
	data := make([]byte, entry.size)
	if _, err := rf.file.ReadAt(data, int64(entry.offset)); err != nil {
		return nil, false, fmt.Errorf("regionstream: reading payload at slot %d: %w", localIndex, err)
	}
	return data, true, nil
}

// write appends payload at the end of the file and updates the header
// slot. Overwriting a slot leaves the old payload bytes as unreachable
// garbage in the file; region files are not compacted.
func (rf *regionFile) write(localIndex int, payload []byte) error {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	info, err := rf.file.Stat()
	if err != nil {
		return err
	}
	offset := info.Size()
	if offset < headerSize {
		offset = headerSize
	}
	if _, err := rf.file.WriteAt(payload, offset); err != nil {
		return fmt.Errorf("regionstream: writing payload at slot %d: %w", localIndex, err)
	}
	rf.header[localIndex] = headerEntry{offset: uint64(offset), size: uint32(len(payload))}
	if err := rf.writeHeaderEntry(localIndex); err != nil {
		return err
	}
	rf.dirty = true
	return nil
}

func (rf *regionFile) writeHeaderEntry(localIndex int) error {
	buf := make([]byte, headerEntrySize)
	e := rf.header[localIndex]
	binary.LittleEndian.PutUint64(buf[0:8], e.offset)
	binary.LittleEndian.PutUint32(buf[8:12], e.size)
	_, err := rf.file.WriteAt(buf, int64(localIndex*headerEntrySize))
	return err
}

func (rf *regionFile) sync() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if !rf.dirty {
		return nil
	}
	if err := rf.file.Sync(); err != nil {
		return err
	}
	rf.dirty = false
	return nil
}

func (rf *regionFile) close() error {
	return rf.file.Close()
}

func regionFileName(region voxel.IVec3, lod int) string {
	return fmt.Sprintf("region.%d.%d.%d.lod%d.bin", region.X, region.Y, region.Z, lod)
}

func regionFilePath(baseDir string, region voxel.IVec3, lod int) string {
	return filepath.Join(baseDir, regionFileName(region, lod))
}
