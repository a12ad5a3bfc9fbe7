package regionstream

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/gekko3d/voxelcore/contracts"
	"github.com/gekko3d/voxelcore/voxel"
	"github.com/gekko3d/voxelcore/wire"
)

// Stream is a contracts.Stream (and contracts.InstanceStream) backed by
// region files under baseDir. Voxel blocks and instance blocks live in
// separate region file sets so a volume with no instances never touches
// the instance files at all.
type Stream struct {
	baseDir string

	mu         sync.Mutex
	voxelFiles map[regionKey]*regionFile
	instFiles  map[regionKey]*regionFile
}

// Open creates baseDir if needed and returns a Stream rooted there.
func Open(baseDir string) (*Stream, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("regionstream: creating %s: %w", baseDir, err)
	}
	return &Stream{
		baseDir:    baseDir,
		voxelFiles: make(map[regionKey]*regionFile),
		instFiles:  make(map[regionKey]*regionFile),
	}, nil
}

func (s *Stream) fileFor(set map[regionKey]*regionFile, suffix string, region voxel.IVec3, lod int) (*regionFile, error) {
	key := regionKey{x: region.X, y: region.Y, z: region.Z, lod: lod}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rf, ok := set[key]; ok {
		return rf, nil
	}
	path := regionFilePath(s.baseDir, region, lod) + suffix
	rf, err := openRegionFile(path)
	if err != nil {
		return nil, err
	}
	set[key] = rf
	return rf, nil
}

// LoadVoxelBlock implements contracts.Stream.
func (s *Stream) LoadVoxelBlock(ctx context.Context, q contracts.BlockQuery) (*voxel.VoxelBuffer, error) {
	region, localIndex := regionCoord(q.Position)
	rf, err := s.fileFor(s.voxelFiles, "", region, q.Lod)
	if err != nil {
		return nil, err
	}
	payload, found, err := rf.read(localIndex)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, contracts.ErrNotFound
	}
	return wire.DecompressBuffer(payload)
}

// SaveVoxelBlock implements contracts.Stream.
func (s *Stream) SaveVoxelBlock(ctx context.Context, q contracts.BlockQuery, buf *voxel.VoxelBuffer) error {
	region, localIndex := regionCoord(q.Position)
	rf, err := s.fileFor(s.voxelFiles, "", region, q.Lod)
	if err != nil {
		return err
	}
	payload, err := wire.CompressBuffer(buf)
	if err != nil {
		return err
	}
	return rf.write(localIndex, payload)
}

// LoadInstanceBlock implements contracts.InstanceStream.
func (s *Stream) LoadInstanceBlock(ctx context.Context, q contracts.BlockQuery) ([]byte, error) {
	region, localIndex := regionCoord(q.Position)
	rf, err := s.fileFor(s.instFiles, ".inst", region, q.Lod)
	if err != nil {
		return nil, err
	}
	payload, found, err := rf.read(localIndex)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, contracts.ErrNotFound
	}
	raw, err := wire.Decompress(payload)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// SaveInstanceBlock implements contracts.InstanceStream.
func (s *Stream) SaveInstanceBlock(ctx context.Context, q contracts.BlockQuery, data []byte) error {
	region, localIndex := regionCoord(q.Position)
	rf, err := s.fileFor(s.instFiles, ".inst", region, q.Lod)
	if err != nil {
		return err
	}
	compressed, err := wire.Compress(data)
	if err != nil {
		return err
	}
	return rf.write(localIndex, compressed)
}

// Flush implements contracts.Stream: fsyncs every region file touched
// since the last flush.
func (s *Stream) Flush(ctx context.Context) error {
	s.mu.Lock()
	files := make([]*regionFile, 0, len(s.voxelFiles)+len(s.instFiles))
	for _, rf := range s.voxelFiles {
		files = append(files, rf)
	}
	for _, rf := range s.instFiles {
		files = append(files, rf)
	}
	s.mu.Unlock()

	for _, rf := range files {
		if err := rf.sync(); err != nil {
			return err
		}
	}
	return nil
}

// Close releases every open region file handle.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, rf := range s.voxelFiles {
		if err := rf.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, rf := range s.instFiles {
		if err := rf.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
