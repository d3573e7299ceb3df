package software

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/hiz/gpucore"
	"github.com/gogpu/hiz/internal/parallel"
)

// Default limits, matching the WebGPU defaults.
const (
	DefaultMaxTextureDimension2D            = 8192
	DefaultMaxWorkgroupInvocations          = 256
	DefaultMaxComputeWorkgroupsPerDimension = 65535
)

// Option configures an Adapter.
type Option func(*options)

type options struct {
	workers      int
	memoryBudget int64
	noCompute    bool
	maxTexDim    uint32
	name         string
}

// WithWorkers sets the number of goroutines executing workgroups.
// Zero or negative means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithMemoryBudget limits the bytes of texture memory the adapter hands
// out. CreateTexture fails with gpucore.ErrOutOfMemory beyond the budget.
// Zero means unlimited.
func WithMemoryBudget(bytes int64) Option {
	return func(o *options) { o.memoryBudget = bytes }
}

// WithoutCompute makes the adapter report no compute support, like a
// device without compute shaders.
func WithoutCompute() Option {
	return func(o *options) { o.noCompute = true }
}

// WithMaxTextureDimension sets the largest texture edge the adapter accepts.
func WithMaxTextureDimension(n uint32) Option {
	return func(o *options) { o.maxTexDim = n }
}

// WithName sets the adapter name reported by Capabilities.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

type texture struct {
	desc   gpucore.TextureDesc
	levels [][]float32
	writes [][]uint32
	bytes  int64
}

type program struct {
	desc gpucore.ProgramDesc
}

// Adapter is a CPU GPUAdapter.
//
// Adapter is safe for concurrent use.
type Adapter struct {
	opts options
	pool *parallel.Pool

	mu        sync.RWMutex
	textures  map[gpucore.TextureID]*texture
	programs  map[gpucore.ProgramID]*program
	nextID    uint64
	allocated int64

	outOfBounds atomic.Uint64
	submits     atomic.Uint64
	dispatches  atomic.Uint64

	logger atomic.Pointer[slog.Logger]
}

// New creates a software adapter.
func New(opts ...Option) *Adapter {
	o := options{
		maxTexDim: DefaultMaxTextureDimension2D,
		name:      "software",
	}
	for _, opt := range opts {
		opt(&o)
	}
	a := &Adapter{
		opts:     o,
		pool:     parallel.NewPool(o.workers),
		textures: make(map[gpucore.TextureID]*texture),
		programs: make(map[gpucore.ProgramID]*program),
	}
	a.logger.Store(slog.New(slog.DiscardHandler))
	return a
}

// SetLogger sets the adapter logger. Nil restores the silent default.
func (a *Adapter) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	a.logger.Store(l)
}

func (a *Adapter) log() *slog.Logger {
	return a.logger.Load()
}

// SupportsCompute reports whether compute dispatch is available.
func (a *Adapter) SupportsCompute() bool {
	return !a.opts.noCompute
}

// Capabilities returns the adapter limits.
func (a *Adapter) Capabilities() gpucore.AdapterCapabilities {
	return gpucore.AdapterCapabilities{
		Name:                             a.opts.name,
		SupportsCompute:                  !a.opts.noCompute,
		MaxTextureDimension2D:            a.opts.maxTexDim,
		MaxWorkgroupInvocations:          DefaultMaxWorkgroupInvocations,
		MaxComputeWorkgroupsPerDimension: DefaultMaxComputeWorkgroupsPerDimension,
	}
}

func (a *Adapter) newID() uint64 {
	a.nextID++
	return a.nextID
}

// CreateProgram registers a program. There is nothing to compile: the
// kernels are Go functions parameterized by the descriptor.
func (a *Adapter) CreateProgram(desc *gpucore.ProgramDesc) (gpucore.ProgramID, error) {
	if a.opts.noCompute {
		return gpucore.InvalidID, gpucore.ErrComputeUnsupported
	}
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("software: nil program descriptor")
	}
	d := *desc
	if d.TileSize == 0 {
		d.TileSize = gpucore.DefaultTileSize
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	id := gpucore.ProgramID(a.newID())
	a.programs[id] = &program{desc: d}
	return id, nil
}

// DestroyProgram releases a program.
func (a *Adapter) DestroyProgram(id gpucore.ProgramID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.programs, id)
}

// CreateTexture allocates every mip level of a texture.
func (a *Adapter) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	if err := desc.Validate(); err != nil {
		return gpucore.InvalidID, err
	}
	if uint32(desc.Width) > a.opts.maxTexDim || uint32(desc.Height) > a.opts.maxTexDim { //nolint:gosec // validated positive
		return gpucore.InvalidID, fmt.Errorf("software: texture %dx%d exceeds max dimension %d",
			desc.Width, desc.Height, a.opts.maxTexDim)
	}

	tex := &texture{
		desc:   *desc,
		levels: make([][]float32, desc.MipLevelCount),
		writes: make([][]uint32, desc.MipLevelCount),
	}
	for level := range desc.MipLevelCount {
		w, h := desc.MipSize(level)
		tex.bytes += int64(w) * int64(h) * 4
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.opts.memoryBudget > 0 && a.allocated+tex.bytes > a.opts.memoryBudget {
		return gpucore.InvalidID, fmt.Errorf("%w: %q needs %d bytes, %d of %d in use",
			gpucore.ErrOutOfMemory, desc.Label, tex.bytes, a.allocated, a.opts.memoryBudget)
	}
	for level := range desc.MipLevelCount {
		w, h := desc.MipSize(level)
		tex.levels[level] = make([]float32, w*h)
		tex.writes[level] = make([]uint32, w*h)
	}
	a.allocated += tex.bytes

	id := gpucore.TextureID(a.newID())
	a.textures[id] = tex
	a.log().Debug("software: texture created",
		"id", uint64(id), "label", desc.Label,
		"size", fmt.Sprintf("%dx%d", desc.Width, desc.Height),
		"mips", desc.MipLevelCount, "format", desc.Format)
	return id, nil
}

// DestroyTexture releases a texture. Unknown IDs are ignored.
func (a *Adapter) DestroyTexture(id gpucore.TextureID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if tex, ok := a.textures[id]; ok {
		a.allocated -= tex.bytes
		delete(a.textures, id)
	}
}

func (a *Adapter) level(id gpucore.TextureID, mip int) (*texture, error) {
	tex, ok := a.textures[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", gpucore.ErrTextureNotFound, id)
	}
	if mip < 0 || mip >= len(tex.levels) {
		return nil, fmt.Errorf("software: texture %d has no mip %d", id, mip)
	}
	return tex, nil
}

// WriteTexture uploads one mip level.
func (a *Adapter) WriteTexture(id gpucore.TextureID, mip int, data []float32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	tex, err := a.level(id, mip)
	if err != nil {
		return err
	}
	if len(data) != len(tex.levels[mip]) {
		w, h := tex.desc.MipSize(mip)
		return fmt.Errorf("software: mip %d is %dx%d, got %d values", mip, w, h, len(data))
	}
	copy(tex.levels[mip], data)
	return nil
}

// ReadTexture returns a copy of one mip level.
func (a *Adapter) ReadTexture(id gpucore.TextureID, mip int) ([]float32, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	tex, err := a.level(id, mip)
	if err != nil {
		return nil, err
	}
	return append([]float32(nil), tex.levels[mip]...), nil
}

// CreateCommandEncoder returns an encoder executing on this adapter.
func (a *Adapter) CreateCommandEncoder(label string) (gpucore.CommandEncoder, error) {
	if a.opts.noCompute {
		return nil, gpucore.ErrComputeUnsupported
	}
	return &encoder{adapter: a, label: label}, nil
}

// WriteCounts returns how many times each texel of a mip level has been
// written by kernels since creation or the last ResetCounters.
func (a *Adapter) WriteCounts(id gpucore.TextureID, mip int) ([]uint32, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	tex, err := a.level(id, mip)
	if err != nil {
		return nil, err
	}
	counts := make([]uint32, len(tex.writes[mip]))
	for i := range counts {
		counts[i] = atomic.LoadUint32(&tex.writes[mip][i])
	}
	return counts, nil
}

// OutOfBounds returns the number of kernel reads and writes that fell
// outside their texture.
func (a *Adapter) OutOfBounds() uint64 {
	return a.outOfBounds.Load()
}

// ResetCounters zeroes all write counters and the out-of-bounds counter.
func (a *Adapter) ResetCounters() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, tex := range a.textures {
		for _, w := range tex.writes {
			clear(w)
		}
	}
	a.outOfBounds.Store(0)
}

// Stats is a snapshot of adapter usage.
type Stats struct {
	Textures       int
	Programs       int
	AllocatedBytes int64
	Submits        uint64
	Dispatches     uint64
}

// Stats returns a snapshot of adapter usage.
func (a *Adapter) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Stats{
		Textures:       len(a.textures),
		Programs:       len(a.programs),
		AllocatedBytes: a.allocated,
		Submits:        a.submits.Load(),
		Dispatches:     a.dispatches.Load(),
	}
}

// Close stops the worker pool. Resources are dropped with the adapter.
func (a *Adapter) Close() error {
	a.pool.Close()
	return nil
}

var _ gpucore.GPUAdapter = (*Adapter)(nil)
