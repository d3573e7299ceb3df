//go:build webgpu

package webgpu

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gogpu/hiz/gpucore"
)

// Default limits, matching the WebGPU defaults the device is requested with.
const (
	defaultMaxTextureDimension2D            = 8192
	defaultMaxWorkgroupInvocations          = 256
	defaultMaxComputeWorkgroupsPerDimension = 65535
)

// copyPitchAlignment is the BytesPerRow alignment of CopyTextureToBuffer.
const copyPitchAlignment = 256

type texture struct {
	desc  gpucore.TextureDesc
	tex   *wgpu.Texture
	views []*wgpu.TextureView
}

func (t *texture) release() {
	for _, v := range t.views {
		v.Release()
	}
	t.tex.Release()
}

type program struct {
	desc      gpucore.ProgramDesc
	module    *wgpu.ShaderModule
	bgLayout  *wgpu.BindGroupLayout
	plLayout  *wgpu.PipelineLayout
	pipelines [2]*wgpu.ComputePipeline
}

func (p *program) release() {
	for _, pl := range p.pipelines {
		if pl != nil {
			pl.Release()
		}
	}
	if p.plLayout != nil {
		p.plLayout.Release()
	}
	if p.bgLayout != nil {
		p.bgLayout.Release()
	}
	if p.module != nil {
		p.module.Release()
	}
}

// Adapter implements gpucore.GPUAdapter on a wgpu-native device.
//
// Adapter is safe for concurrent use.
type Adapter struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	caps     gpucore.AdapterCapabilities

	mu       sync.RWMutex
	textures map[gpucore.TextureID]*texture
	programs map[gpucore.ProgramID]*program
	closed   bool

	nextID atomic.Uint64
	logger atomic.Pointer[slog.Logger]
}

// New requests a high-performance adapter and opens a device on it.
func New() (*Adapter, error) {
	instance := wgpu.CreateInstance(nil)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("%w: %w", ErrNoGPU, err)
	}
	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "hiz device",
	})
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: request device: %w", err)
	}

	a := &Adapter{
		instance: instance,
		adapter:  adapter,
		device:   device,
		queue:    device.GetQueue(),
		textures: make(map[gpucore.TextureID]*texture),
		programs: make(map[gpucore.ProgramID]*program),
		caps: gpucore.AdapterCapabilities{
			Name:                             "webgpu",
			SupportsCompute:                  true,
			MaxTextureDimension2D:            defaultMaxTextureDimension2D,
			MaxWorkgroupInvocations:          defaultMaxWorkgroupInvocations,
			MaxComputeWorkgroupsPerDimension: defaultMaxComputeWorkgroupsPerDimension,
		},
	}
	a.logger.Store(slog.New(slog.DiscardHandler))
	return a, nil
}

// SetLogger sets the logger for adapter diagnostics. Nil disables logging.
func (a *Adapter) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	a.logger.Store(l)
}

func (a *Adapter) log() *slog.Logger {
	return a.logger.Load()
}

func (a *Adapter) newID() uint64 {
	return a.nextID.Add(1)
}

// SupportsCompute reports true: every WebGPU device has compute shaders.
func (a *Adapter) SupportsCompute() bool {
	return true
}

// Capabilities returns the device limits.
func (a *Adapter) Capabilities() gpucore.AdapterCapabilities {
	return a.caps
}

// bindGroupLayoutEntries returns the layout shared by both kernels.
func bindGroupLayoutEntries() []wgpu.BindGroupLayoutEntry {
	entries := []wgpu.BindGroupLayoutEntry{
		{
			Binding:    gpucore.BindingParams,
			Visibility: wgpu.ShaderStageCompute,
			Buffer: wgpu.BufferBindingLayout{
				Type:           wgpu.BufferBindingTypeUniform,
				MinBindingSize: gpucore.KernelParamsSize,
			},
		},
		{
			Binding:    gpucore.BindingInput,
			Visibility: wgpu.ShaderStageCompute,
			Texture: wgpu.TextureBindingLayout{
				SampleType:    wgpu.TextureSampleTypeUnfilterableFloat,
				ViewDimension: wgpu.TextureViewDimension2D,
			},
		},
	}
	for i := range gpucore.MaxBatchSize {
		entries = append(entries, wgpu.BindGroupLayoutEntry{
			Binding:    uint32(gpucore.BindingOutput0 + i),
			Visibility: wgpu.ShaderStageCompute,
			StorageTexture: wgpu.StorageTextureBindingLayout{
				Access:        wgpu.StorageTextureAccessWriteOnly,
				Format:        wgpu.TextureFormatR32Float,
				ViewDimension: wgpu.TextureViewDimension2D,
			},
		})
	}
	return entries
}

// CreateProgram builds both compute pipelines from the specialized WGSL.
func (a *Adapter) CreateProgram(desc *gpucore.ProgramDesc) (gpucore.ProgramID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("webgpu: nil program descriptor")
	}
	label := desc.Label
	if label == "" {
		label = "hiz"
	}

	p := &program{desc: *desc}
	var err error
	p.module, err = a.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: gpucore.ShaderSource(*desc),
		},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("webgpu: create shader module: %w", err)
	}

	p.bgLayout, err = a.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   label + " bind group layout",
		Entries: bindGroupLayoutEntries(),
	})
	if err != nil {
		p.release()
		return gpucore.InvalidID, fmt.Errorf("webgpu: create bind group layout: %w", err)
	}

	p.plLayout, err = a.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            label + " pipeline layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{p.bgLayout},
	})
	if err != nil {
		p.release()
		return gpucore.InvalidID, fmt.Errorf("webgpu: create pipeline layout: %w", err)
	}

	for _, k := range gpucore.Kernels() {
		entry := gpucore.EntryPoint(k)
		pl, err := a.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
			Label:  label + " " + entry,
			Layout: p.plLayout,
			Compute: wgpu.ProgrammableStageDescriptor{
				Module:     p.module,
				EntryPoint: entry,
			},
		})
		if err != nil {
			p.release()
			return gpucore.InvalidID, fmt.Errorf("webgpu: create %s pipeline: %w", entry, err)
		}
		p.pipelines[k] = pl
	}

	id := gpucore.ProgramID(a.newID())
	a.mu.Lock()
	a.programs[id] = p
	a.mu.Unlock()
	a.log().Debug("webgpu: program created", "id", id, "policy", desc.Policy.String())
	return id, nil
}

// DestroyProgram releases a program.
func (a *Adapter) DestroyProgram(id gpucore.ProgramID) {
	a.mu.Lock()
	p, ok := a.programs[id]
	delete(a.programs, id)
	a.mu.Unlock()
	if ok {
		p.release()
	}
}

func convertFormat(f gpucore.TextureFormat) (wgpu.TextureFormat, error) {
	switch f {
	case gpucore.TextureFormatR32Float, gpucore.TextureFormatDepth32Float:
		return wgpu.TextureFormatR32Float, nil
	default:
		return wgpu.TextureFormatUndefined, fmt.Errorf("webgpu: unsupported texture format %s", f)
	}
}

func convertUsage(usage gpucore.TextureUsage) wgpu.TextureUsage {
	var result wgpu.TextureUsage
	if usage&gpucore.TextureUsageCopySrc != 0 {
		result |= wgpu.TextureUsageCopySrc
	}
	if usage&gpucore.TextureUsageCopyDst != 0 {
		result |= wgpu.TextureUsageCopyDst
	}
	if usage&gpucore.TextureUsageTextureBinding != 0 {
		result |= wgpu.TextureUsageTextureBinding
	}
	if usage&gpucore.TextureUsageStorageBinding != 0 {
		result |= wgpu.TextureUsageStorageBinding
	}
	return result
}

// CreateTexture allocates a texture and one view per mip level.
func (a *Adapter) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	if err := desc.Validate(); err != nil {
		return gpucore.InvalidID, err
	}
	maxDim := int(a.caps.MaxTextureDimension2D)
	if desc.Width > maxDim || desc.Height > maxDim {
		return gpucore.InvalidID, fmt.Errorf("%w: %dx%d exceeds max dimension %d",
			gpucore.ErrOutOfMemory, desc.Width, desc.Height, maxDim)
	}
	format, err := convertFormat(desc.Format)
	if err != nil {
		return gpucore.InvalidID, err
	}

	tex, err := a.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         desc.Label,
		Size:          wgpu.Extent3D{Width: uint32(desc.Width), Height: uint32(desc.Height), DepthOrArrayLayers: 1},
		MipLevelCount: uint32(desc.MipLevelCount),
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        format,
		Usage:         convertUsage(desc.Usage),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("%w: %s: %w", gpucore.ErrOutOfMemory, desc.Label, err)
	}

	t := &texture{desc: *desc, tex: tex, views: make([]*wgpu.TextureView, 0, desc.MipLevelCount)}
	for mip := range desc.MipLevelCount {
		view, err := tex.CreateView(&wgpu.TextureViewDescriptor{
			Label:           fmt.Sprintf("%s mip %d", desc.Label, mip),
			Format:          format,
			Dimension:       wgpu.TextureViewDimension2D,
			BaseMipLevel:    uint32(mip),
			MipLevelCount:   1,
			BaseArrayLayer:  0,
			ArrayLayerCount: 1,
			Aspect:          wgpu.TextureAspectAll,
		})
		if err != nil {
			t.release()
			return gpucore.InvalidID, fmt.Errorf("webgpu: create view of mip %d: %w", mip, err)
		}
		t.views = append(t.views, view)
	}

	id := gpucore.TextureID(a.newID())
	a.mu.Lock()
	a.textures[id] = t
	a.mu.Unlock()
	return id, nil
}

// DestroyTexture releases a texture. wgpu-native keeps it alive until
// submitted work using it has finished.
func (a *Adapter) DestroyTexture(id gpucore.TextureID) {
	a.mu.Lock()
	t, ok := a.textures[id]
	delete(a.textures, id)
	a.mu.Unlock()
	if ok {
		t.release()
	}
}

func (a *Adapter) lookup(b gpucore.TextureBinding) (*texture, error) {
	a.mu.RLock()
	t, ok := a.textures[b.Texture]
	a.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", gpucore.ErrTextureNotFound, b.Texture)
	}
	if b.MipLevel < 0 || b.MipLevel >= t.desc.MipLevelCount {
		return nil, fmt.Errorf("webgpu: mip level %d out of range [0,%d)", b.MipLevel, t.desc.MipLevelCount)
	}
	return t, nil
}

// WriteTexture uploads one mip level through the queue.
func (a *Adapter) WriteTexture(id gpucore.TextureID, mip int, data []float32) error {
	t, err := a.lookup(gpucore.TextureBinding{Texture: id, MipLevel: mip})
	if err != nil {
		return err
	}
	w, h := t.desc.MipSize(mip)
	if len(data) != w*h {
		return fmt.Errorf("webgpu: write of %d texels to %dx%d level", len(data), w, h)
	}

	b := make([]byte, len(data)*4)
	for i, v := range data {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	a.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  t.tex,
			MipLevel: uint32(mip),
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		b,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(w) * 4,
			RowsPerImage: uint32(h),
		},
		&wgpu.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
	)
	return nil
}

// ReadTexture copies one mip level into a mappable buffer and waits for it.
func (a *Adapter) ReadTexture(id gpucore.TextureID, mip int) ([]float32, error) {
	t, err := a.lookup(gpucore.TextureBinding{Texture: id, MipLevel: mip})
	if err != nil {
		return nil, err
	}
	w, h := t.desc.MipSize(mip)
	bytesPerRow := (uint32(w)*4 + copyPitchAlignment - 1) &^ uint32(copyPitchAlignment-1)
	size := uint64(bytesPerRow) * uint64(h)

	readback, err := a.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "hiz readback",
		Size:  size,
		Usage: wgpu.BufferUsageCopyDst | wgpu.BufferUsageMapRead,
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: create readback buffer: %w", err)
	}
	defer readback.Release()

	encoder, err := a.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "hiz readback"})
	if err != nil {
		return nil, fmt.Errorf("webgpu: create command encoder: %w", err)
	}
	defer encoder.Release()

	encoder.CopyTextureToBuffer(
		&wgpu.ImageCopyTexture{
			Texture:  t.tex,
			MipLevel: uint32(mip),
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		&wgpu.ImageCopyBuffer{
			Buffer: readback,
			Layout: wgpu.TextureDataLayout{
				Offset:       0,
				BytesPerRow:  bytesPerRow,
				RowsPerImage: uint32(h),
			},
		},
		&wgpu.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
	)
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return nil, fmt.Errorf("webgpu: finish readback: %w", err)
	}
	a.queue.Submit(cmd)
	cmd.Release()

	var status wgpu.BufferMapAsyncStatus
	mapped := false
	readback.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		status = s
		mapped = s == wgpu.BufferMapAsyncStatusSuccess
	})
	a.device.Poll(true, nil)
	if !mapped {
		return nil, fmt.Errorf("%w: status %d", ErrMapFailed, status)
	}

	data := readback.GetMappedRange(0, uint(size))
	out := make([]float32, w*h)
	for y := range h {
		row := data[y*int(bytesPerRow):]
		for x := range w {
			out[y*w+x] = math.Float32frombits(binary.LittleEndian.Uint32(row[x*4:]))
		}
	}
	readback.Unmap()
	return out, nil
}

// CreateCommandEncoder begins recording a command buffer.
func (a *Adapter) CreateCommandEncoder(label string) (gpucore.CommandEncoder, error) {
	a.mu.RLock()
	closed := a.closed
	a.mu.RUnlock()
	if closed {
		return nil, ErrAdapterClosed
	}
	enc, err := a.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("webgpu: create command encoder: %w", err)
	}
	return &encoder{adapter: a, label: label, enc: enc}, nil
}

// Close releases every resource and the device. Close is idempotent.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	textures, programs := a.textures, a.programs
	a.textures = make(map[gpucore.TextureID]*texture)
	a.programs = make(map[gpucore.ProgramID]*program)
	a.mu.Unlock()

	a.device.Poll(true, nil)
	for _, t := range textures {
		t.release()
	}
	for _, p := range programs {
		p.release()
	}
	a.queue.Release()
	a.device.Release()
	a.adapter.Release()
	a.instance.Release()
	return nil
}

var _ gpucore.GPUAdapter = (*Adapter)(nil)
