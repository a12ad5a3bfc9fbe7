// Package gpu is the optional GPU-accelerated generation back-end: it
// implements contracts.GPUGenerator/GPUTicket by dispatching a compute
// shader per block and reading results back asynchronously. Grounded on
// the reference engine's GpuBufferManager (pipeline/bind-group creation,
// workgroup sizing) and its HiZ readback's MapAsync/Poll/GetMappedRange
// sequence, adapted here from a screen-space buffer readback to a
// per-block voxel generation submit/convert hand-off.
package gpu

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/voxelcore/contracts"
	"github.com/gekko3d/voxelcore/voxel"
)

// paramsSize is the uniform buffer layout: i32 x,y,z origin, u32 lod,
// u32 blockSize, then 12 bytes padding to a 32-byte alignment.
const paramsSize = 32

// Manager owns the compute pipeline and buffers used to generate one
// block at a time on the GPU. BlockSize and the channel depth are fixed
// at construction since contracts.GPUGenerator.SubmitBlock carries no
// per-call sizing.
type Manager struct {
	Device    *wgpu.Device
	BlockSize int32
	Depth     voxel.Depth

	pipeline  *wgpu.ComputePipeline
	bindGroup *wgpu.BindGroup

	paramsBuf   *wgpu.Buffer
	outputBuf   *wgpu.Buffer
	readbackBuf *wgpu.Buffer

	workgroupSize uint32
}

// NewManager compiles shaderCode into a compute pipeline sized for
// blockSize^3 cells at depth, and allocates the buffers the pipeline
// binds against.
func NewManager(device *wgpu.Device, shaderCode string, blockSize int32, depth voxel.Depth) (*Manager, error) {
	m := &Manager{Device: device, BlockSize: blockSize, Depth: depth, workgroupSize: 64}

	shaderDesc := &wgpu.ShaderModuleDescriptor{
		Label:          "VoxelGenerateShader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaderCode},
	}
	shaderModule, err := device.CreateShaderModule(shaderDesc)
	if err != nil {
		return nil, fmt.Errorf("gpu: creating generate shader module: %w", err)
	}
	defer shaderModule.Release()

	m.pipeline, err = device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "VoxelGeneratePipeline",
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     shaderModule,
			EntryPoint: "generate_block",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: creating generate pipeline: %w", err)
	}

	cellCount := uint64(blockSize) * uint64(blockSize) * uint64(blockSize)
	outputSize := cellCount * uint64(depth.Bytes())

	m.paramsBuf, err = device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "GenerateParamsBuf",
		Size:  paramsSize,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: creating params buffer: %w", err)
	}
	m.outputBuf, err = device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "GenerateOutputBuf",
		Size:  outputSize,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: creating output buffer: %w", err)
	}
	m.readbackBuf, err = device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "GenerateReadbackBuf",
		Size:  outputSize,
		Usage: wgpu.BufferUsageCopyDst | wgpu.BufferUsageMapRead,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: creating readback buffer: %w", err)
	}

	m.bindGroup, err = device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: m.pipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: m.paramsBuf, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: m.outputBuf, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: creating bind group: %w", err)
	}
	return m, nil
}

// encodeParams packs the generate-shader's uniform block.
func encodeParams(origin voxel.IVec3, lod int, blockSize int32) []byte {
	buf := make([]byte, paramsSize)
	putI32(buf[0:4], origin.X)
	putI32(buf[4:8], origin.Y)
	putI32(buf[8:12], origin.Z)
	putI32(buf[12:16], int32(lod))
	putI32(buf[16:20], blockSize)
	return buf
}

func putI32(dst []byte, v int32) {
	u := uint32(v)
	dst[0] = byte(u)
	dst[1] = byte(u >> 8)
	dst[2] = byte(u >> 16)
	dst[3] = byte(u >> 24)
}

// SubmitBlock implements contracts.GPUGenerator: it dispatches one
// compute pass over a single in-flight slot. Callers must Consume (or
// otherwise drop) a ticket before submitting the next one, since the
// manager reuses its buffers.
func (m *Manager) SubmitBlock(ctx context.Context, originVoxels voxel.IVec3, lod int) (contracts.GPUTicket, error) {
	m.Device.GetQueue().WriteBuffer(m.paramsBuf, 0, encodeParams(originVoxels, lod, m.BlockSize))

	encoder, err := m.Device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("gpu: creating command encoder: %w", err)
	}

	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(m.pipeline)
	pass.SetBindGroup(0, m.bindGroup, nil)
	cells := uint32(m.BlockSize) * uint32(m.BlockSize) * uint32(m.BlockSize)
	workgroups := (cells + m.workgroupSize - 1) / m.workgroupSize
	pass.DispatchWorkgroups(workgroups, 1, 1)
	pass.End()

	encoder.CopyBufferToBuffer(m.outputBuf, 0, m.readbackBuf, 0, m.outputBuf.GetSize())

	cmdBuf, err := encoder.Finish(nil)
	if err != nil {
		return nil, fmt.Errorf("gpu: finishing command buffer: %w", err)
	}
	m.Device.GetQueue().Submit(cmdBuf)

	t := &ticket{manager: m, originVoxels: originVoxels, lod: lod}
	m.readbackBuf.MapAsync(wgpu.MapModeRead, 0, m.readbackBuf.GetSize(), func(status wgpu.BufferMapAsyncStatus) {
		if status == wgpu.BufferMapAsyncStatusSuccess {
			t.mapped.Store(true)
		} else {
			t.failed.Store(true)
		}
	})
	return t, nil
}

// ticket implements contracts.GPUTicket against one Manager submission.
type ticket struct {
	manager      *Manager
	originVoxels voxel.IVec3
	lod          int
	mapped       atomic.Bool
	failed       atomic.Bool
	consumed     atomic.Bool
}

// Ready polls the device once and reports whether the readback buffer has
// finished mapping.
func (t *ticket) Ready() bool {
	t.manager.Device.Poll(false, nil)
	return t.mapped.Load() || t.failed.Load()
}

// Consume copies the mapped readback buffer into buf's SDF channel and
// releases the mapping. Safe to call at most once.
func (t *ticket) Consume(buf *voxel.VoxelBuffer) error {
	if t.consumed.Swap(true) {
		return fmt.Errorf("gpu: ticket for block %v lod %d already consumed", t.originVoxels, t.lod)
	}
	defer t.manager.readbackBuf.Unmap()

	if t.failed.Load() {
		return fmt.Errorf("gpu: readback failed for block %v lod %d", t.originVoxels, t.lod)
	}
	size := t.manager.readbackBuf.GetSize()
	data := t.manager.readbackBuf.GetMappedRange(0, uint(size))
	owned := make([]byte, len(data))
	copy(owned, data)
	return buf.SetChannelRaw(voxel.ChannelSDF, owned, 0, t.manager.Depth)
}

// Release frees every GPU resource the manager owns. Call once the
// generator is no longer needed.
func (m *Manager) Release() {
	if m.bindGroup != nil {
		m.bindGroup.Release()
	}
	if m.pipeline != nil {
		m.pipeline.Release()
	}
	if m.paramsBuf != nil {
		m.paramsBuf.Release()
	}
	if m.outputBuf != nil {
		m.outputBuf.Release()
	}
	if m.readbackBuf != nil {
		m.readbackBuf.Release()
	}
}
