package native

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/hiz/gpucore"
	"github.com/gogpu/wgpu/hal"
)

// fenceTimeout is the maximum time to wait for GPU work to complete.
const fenceTimeout = 5 * time.Second

// Default limits, matching the WebGPU defaults the device is opened with.
const (
	defaultMaxTextureDimension2D            = 8192
	defaultMaxWorkgroupInvocations          = 256
	defaultMaxComputeWorkgroupsPerDimension = 65535
)

// Adapter implements gpucore.GPUAdapter on a HAL device.
//
// Adapter is safe for concurrent use. Command encoders must be submitted
// in the order they were created: level usage is tracked at record time.
type Adapter struct {
	device hal.Device
	queue  hal.Queue
	name   string
	caps   gpucore.AdapterCapabilities

	// release frees a device the adapter opened itself. Nil for shared devices.
	release func()

	mu       sync.RWMutex
	textures map[gpucore.TextureID]*texture
	programs map[gpucore.ProgramID]*program
	inflight []*submission
	closed   bool

	nextID atomic.Uint64
	logger atomic.Pointer[slog.Logger]
}

// NewWithDevice creates an adapter on an existing device and queue. The
// caller keeps ownership of both.
func NewWithDevice(device hal.Device, queue hal.Queue, name string) *Adapter {
	a := &Adapter{
		device:   device,
		queue:    queue,
		name:     name,
		textures: make(map[gpucore.TextureID]*texture),
		programs: make(map[gpucore.ProgramID]*program),
		caps: gpucore.AdapterCapabilities{
			Name:                             name,
			SupportsCompute:                  true,
			MaxTextureDimension2D:            defaultMaxTextureDimension2D,
			MaxWorkgroupInvocations:          defaultMaxWorkgroupInvocations,
			MaxComputeWorkgroupsPerDimension: defaultMaxComputeWorkgroupsPerDimension,
		},
	}
	a.logger.Store(slog.New(slog.DiscardHandler))
	return a
}

// NewFromProvider creates an adapter on the device of a host application.
// The provider must implement HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue.
func NewFromProvider(provider gpucontext.DeviceProvider) (*Adapter, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("native: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, ErrNilHALDevice
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("native: provider HalQueue is not hal.Queue")
	}
	return NewWithDevice(device, queue, "native (shared)"), nil
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

// SupportsCompute reports true: the HAL device is opened for compute.
func (a *Adapter) SupportsCompute() bool {
	return true
}

// Capabilities returns the device limits.
func (a *Adapter) Capabilities() gpucore.AdapterCapabilities {
	return a.caps
}

// CreateProgram compiles the Hi-Z program for the device.
func (a *Adapter) CreateProgram(desc *gpucore.ProgramDesc) (gpucore.ProgramID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("native: nil program descriptor")
	}
	a.mu.RLock()
	closed := a.closed
	a.mu.RUnlock()
	if closed {
		return gpucore.InvalidID, ErrAdapterClosed
	}

	p, err := createProgram(a.device, *desc)
	if err != nil {
		return gpucore.InvalidID, err
	}

	id := gpucore.ProgramID(a.newID())
	a.mu.Lock()
	a.programs[id] = p
	a.mu.Unlock()

	a.log().Debug("native: program created", "id", id, "policy", desc.Policy.String(), "tile", desc.TileSize)
	return id, nil
}

// DestroyProgram releases a program.
func (a *Adapter) DestroyProgram(id gpucore.ProgramID) {
	a.mu.Lock()
	p, ok := a.programs[id]
	if ok {
		delete(a.programs, id)
	}
	a.mu.Unlock()

	if ok {
		p.destroy(a.device)
	}
}

// CreateTexture allocates one single-level device texture per mip level.
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

	t := &texture{desc: *desc, levels: make([]*levelTexture, 0, desc.MipLevelCount)}
	for mip := range desc.MipLevelCount {
		w, h := desc.MipSize(mip)
		lvl, err := a.createLevel(fmt.Sprintf("%s mip %d", desc.Label, mip), uint32(w), uint32(h), format, convertUsage(desc.Usage))
		if err != nil {
			a.destroyLevels(t.levels)
			return gpucore.InvalidID, fmt.Errorf("%w: %s mip %d: %w", gpucore.ErrOutOfMemory, desc.Label, mip, err)
		}
		t.levels = append(t.levels, lvl)
	}

	id := gpucore.TextureID(a.newID())
	a.mu.Lock()
	a.textures[id] = t
	a.mu.Unlock()
	return id, nil
}

func (a *Adapter) createLevel(label string, w, h uint32, format gputypes.TextureFormat, usage gputypes.TextureUsage) (*levelTexture, error) {
	tex, err := a.device.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return nil, err
	}
	view, err := a.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label: label + " view",
	})
	if err != nil {
		a.device.DestroyTexture(tex)
		return nil, err
	}
	return &levelTexture{tex: tex, view: view, width: w, height: h}, nil
}

func (a *Adapter) destroyLevels(levels []*levelTexture) {
	for _, l := range levels {
		a.device.DestroyTextureView(l.view)
		a.device.DestroyTexture(l.tex)
	}
}

// DestroyTexture releases a texture. Work already submitted against it is
// waited for first.
func (a *Adapter) DestroyTexture(id gpucore.TextureID) {
	a.mu.Lock()
	t, ok := a.textures[id]
	if ok {
		delete(a.textures, id)
	}
	a.mu.Unlock()

	if !ok {
		return
	}
	if err := a.waitIdle(); err != nil {
		a.log().Warn("native: destroying texture with work in flight", "id", id, "error", err)
	}
	a.destroyLevels(t.levels)
}

// lookupLevel returns a level of a live texture. Must be called with mu held.
func (a *Adapter) lookupLevel(b gpucore.TextureBinding) (*texture, *levelTexture, error) {
	t, ok := a.textures[b.Texture]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %d", gpucore.ErrTextureNotFound, b.Texture)
	}
	l, err := t.level(b.MipLevel)
	if err != nil {
		return nil, nil, err
	}
	return t, l, nil
}

// WriteTexture uploads one mip level through the queue.
func (a *Adapter) WriteTexture(id gpucore.TextureID, mip int, data []float32) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, l, err := a.lookupLevel(gpucore.TextureBinding{Texture: id, MipLevel: mip})
	if err != nil {
		return err
	}
	if want := int(l.width) * int(l.height); len(data) != want {
		return fmt.Errorf("native: write of %d texels to %dx%d level", len(data), l.width, l.height)
	}

	a.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: l.tex, MipLevel: 0},
		packTexels(data),
		&hal.ImageDataLayout{Offset: 0, BytesPerRow: l.width * texelBytes, RowsPerImage: l.height},
		&hal.Extent3D{Width: l.width, Height: l.height, DepthOrArrayLayers: 1},
	)
	l.usage = gputypes.TextureUsageCopyDst
	return nil
}

// ReadTexture copies one mip level to a staging buffer and reads it back.
// It waits for all submitted work first.
func (a *Adapter) ReadTexture(id gpucore.TextureID, mip int) ([]float32, error) {
	if err := a.waitIdle(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	_, l, err := a.lookupLevel(gpucore.TextureBinding{Texture: id, MipLevel: mip})
	if err != nil {
		return nil, err
	}

	pitch := alignedRowPitch(l.width)
	stagingSize := uint64(pitch) * uint64(l.height)
	staging, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "hiz_readback",
		Size:  stagingSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create staging buffer: %w", err)
	}
	defer a.device.DestroyBuffer(staging)

	encoder, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "hiz_readback"})
	if err != nil {
		return nil, fmt.Errorf("native: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("hiz_readback"); err != nil {
		return nil, fmt.Errorf("native: begin encoding: %w", err)
	}

	if b, ok := l.transition(gputypes.TextureUsageCopySrc); ok {
		encoder.TransitionTextures([]hal.TextureBarrier{b})
	}
	encoder.CopyTextureToBuffer(l.tex, staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: pitch, RowsPerImage: l.height},
		TextureBase:  hal.ImageCopyTexture{Texture: l.tex, MipLevel: 0},
		Size:         hal.Extent3D{Width: l.width, Height: l.height, DepthOrArrayLayers: 1},
	}})

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("native: end encoding: %w", err)
	}
	defer a.device.FreeCommandBuffer(cmdBuf)

	fence, err := a.device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("native: create fence: %w", err)
	}
	defer a.device.DestroyFence(fence)

	if err := a.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return nil, fmt.Errorf("native: submit: %w", err)
	}
	ok, err := a.device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return nil, fmt.Errorf("native: wait for GPU: %w", err)
	}
	if !ok {
		return nil, ErrGPUTimeout
	}

	raw := make([]byte, stagingSize)
	if err := a.queue.ReadBuffer(staging, 0, raw); err != nil {
		return nil, fmt.Errorf("native: readback: %w", err)
	}
	return unpackRows(raw, l.width, l.height, pitch)
}

// CreateCommandEncoder begins recording a command buffer.
func (a *Adapter) CreateCommandEncoder(label string) (gpucore.CommandEncoder, error) {
	a.mu.RLock()
	closed := a.closed
	a.mu.RUnlock()
	if closed {
		return nil, ErrAdapterClosed
	}

	enc, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("native: create command encoder: %w", err)
	}
	if err := enc.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("native: begin encoding: %w", err)
	}
	return &encoder{adapter: a, label: label, enc: enc, res: &submission{}}, nil
}

// track records a submitted command buffer and reclaims finished ones.
func (a *Adapter) track(s *submission) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pending := a.inflight[:0]
	for _, prev := range a.inflight {
		done, err := a.device.Wait(prev.fence, 1, 0)
		if err == nil && done {
			prev.release(a.device)
			continue
		}
		pending = append(pending, prev)
	}
	a.inflight = append(pending, s)
}

// waitIdle waits for every tracked submission and releases it.
func (a *Adapter) waitIdle() error {
	a.mu.Lock()
	inflight := a.inflight
	a.inflight = nil
	a.mu.Unlock()

	var firstErr error
	for _, s := range inflight {
		ok, err := a.device.Wait(s.fence, 1, fenceTimeout)
		switch {
		case err != nil && firstErr == nil:
			firstErr = fmt.Errorf("native: wait for GPU: %w", err)
		case !ok && err == nil && firstErr == nil:
			firstErr = ErrGPUTimeout
		}
		s.release(a.device)
	}
	return firstErr
}

// Close waits for outstanding work, destroys all resources and, when the
// adapter opened its own device, releases the device. Close is idempotent.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	err := a.waitIdle()

	a.mu.Lock()
	textures, programs := a.textures, a.programs
	a.textures = make(map[gpucore.TextureID]*texture)
	a.programs = make(map[gpucore.ProgramID]*program)
	a.mu.Unlock()

	for _, t := range textures {
		a.destroyLevels(t.levels)
	}
	for _, p := range programs {
		p.destroy(a.device)
	}
	if a.release != nil {
		a.release()
		a.release = nil
	}
	return err
}

var _ gpucore.GPUAdapter = (*Adapter)(nil)
