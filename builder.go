package hiz

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/hiz/gpucore"
)

// Builder builds the Hi-Z pyramid of one camera. It is a FrameStage.
//
// The builder owns the pyramid texture exclusively. The texture persists
// across frames and is reallocated only when the viewport-derived size
// changes, or released by Close. Call Close when done: the adapter does not
// reclaim the texture of a builder that is merely dropped.
//
// Builder is safe for concurrent use, but frames are expected to be
// driven from a single goroutine (see FrameGraph).
type Builder struct {
	mu      sync.Mutex
	adapter gpucore.GPUAdapter
	program gpucore.Program
	opts    builderOptions

	pyramid gpucore.TextureID
	desc    Descriptor

	encoder   gpucore.CommandEncoder
	frameOpen bool
	published *Registry

	stats  Stats
	closed bool
}

// NewBuilder creates a builder that dispatches program on adapter.
//
// Returns ErrComputeUnsupported if the adapter cannot run compute kernels
// and ErrInvalidProgram for a zero program. Both are initialization-time
// failures; no frame can run without compute.
func NewBuilder(adapter gpucore.GPUAdapter, program gpucore.Program, opts ...BuilderOption) (*Builder, error) {
	if adapter == nil {
		return nil, fmt.Errorf("%w: nil adapter", ErrComputeUnsupported)
	}
	if !adapter.SupportsCompute() {
		return nil, fmt.Errorf("%w: %s", ErrComputeUnsupported, adapter.Capabilities().Name)
	}
	if !program.IsValid() {
		return nil, ErrInvalidProgram
	}

	o := defaultBuilderOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	b := &Builder{
		adapter: adapter,
		program: program,
		opts:    o,
	}
	propagateLogger(adapter, b.logger())
	trackBuilder(b)

	b.logger().Debug("hiz: builder created",
		"adapter", adapter.Capabilities().Name,
		"policy", program.Desc.Policy,
		"tile", program.Desc.TileSize,
		"batch", o.batchSize,
		"slot", o.slotName)
	return b, nil
}

func (b *Builder) logger() *slog.Logger {
	if b.opts.logger != nil {
		return b.opts.logger
	}
	return Logger()
}

// Name returns the builder label.
func (b *Builder) Name() string {
	return b.opts.label
}

// SlotName returns the registry slot the pyramid is published under.
func (b *Builder) SlotName() string {
	return b.opts.slotName
}

// OnFrameBegin validates the frame and acquires the transient command
// encoder for it.
func (b *Builder) OnFrameBegin(fc *FrameContext) error {
	if err := fc.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBuilderClosed
	}
	if b.encoder != nil {
		b.logger().Warn("hiz: previous frame not ended, discarding its commands", "frame", fc.Index)
		b.releaseEncoder()
	}

	enc, err := b.adapter.CreateCommandEncoder(fmt.Sprintf("%s frame %d", b.opts.label, fc.Index))
	if err != nil {
		return fmt.Errorf("hiz: create command encoder: %w", err)
	}
	b.encoder = enc
	b.frameOpen = true
	return nil
}

// Execute runs Reconcile, the base reduction, the mip chain and Publish
// for the frame. Dispatches are submitted on a single command stream and
// are not awaited.
//
// On any failure, including cancellation of ctx before submission, the
// recorded commands are discarded and nothing is published.
func (b *Builder) Execute(ctx context.Context, fc *FrameContext) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBuilderClosed
	}
	if !b.frameOpen || b.encoder == nil {
		return ErrFrameNotBegun
	}

	if err := b.execute(ctx, fc); err != nil {
		b.releaseEncoder()
		b.stats.FramesAborted++
		return err
	}
	return nil
}

func (b *Builder) execute(ctx context.Context, fc *FrameContext) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	desc := ComputeDescriptor(fc.ViewportWidth, fc.ViewportHeight)
	if _, err := b.reconcile(desc); err != nil {
		return err
	}

	dw, dh := fc.DepthSize()
	plan := PlanDispatches(PlanParams{
		Descriptor:  b.desc,
		Pyramid:     b.pyramid,
		Depth:       fc.Depth,
		DepthWidth:  dw,
		DepthHeight: dh,
		BatchSize:   b.opts.batchSize,
		TileSize:    b.program.Desc.TileSize,
		Label:       b.opts.label,
	})
	for i := range plan {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.encoder.Dispatch(b.program.ID, &plan[i]); err != nil {
			return fmt.Errorf("hiz: record %s: %w", plan[i].Label, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.encoder.Submit(); err != nil {
		return fmt.Errorf("hiz: submit frame %d: %w", fc.Index, err)
	}
	b.stats.Dispatches += uint64(len(plan))

	if fc.Registry != nil {
		err := fc.Registry.Publish(b.opts.slotName, b.opts.label, Binding{
			Texture:    b.pyramid,
			Descriptor: b.desc,
			Filter:     gpucore.FilterPoint,
		})
		if err != nil {
			return err
		}
		b.published = fc.Registry
	}
	b.stats.FramesBuilt++
	b.stats.Last = b.desc

	b.logger().Debug("hiz: pyramid built",
		"frame", fc.Index,
		"size", b.desc.String(),
		"depth", fmt.Sprintf("%dx%d", dw, dh),
		"dispatches", len(plan))
	return nil
}

// OnFrameEnd releases the frame's command encoder. It is idempotent.
func (b *Builder) OnFrameEnd(*FrameContext) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releaseEncoder()
	b.frameOpen = false
}

func (b *Builder) releaseEncoder() {
	if b.encoder != nil {
		b.encoder.Release()
		b.encoder = nil
	}
}

// Reconcile makes the owned pyramid match desc. It keeps the existing
// texture when the dimensions are unchanged; otherwise it releases the old
// texture and allocates a new one. It reports whether it reallocated.
//
// An allocation failure leaves the builder without a pyramid and returns
// an error wrapping ErrAllocationFailed.
func (b *Builder) Reconcile(desc Descriptor) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false, ErrBuilderClosed
	}
	return b.reconcile(desc)
}

func (b *Builder) reconcile(desc Descriptor) (bool, error) {
	if b.pyramid != gpucore.InvalidID && b.desc.SameSize(desc) {
		return false, nil
	}
	b.releasePyramid()

	td := desc.TextureDesc(b.opts.label)
	id, err := b.adapter.CreateTexture(&td)
	if err != nil {
		b.stats.AllocationFailures++
		b.logger().Error("hiz: pyramid allocation failed", "size", desc.String(), "err", err)
		return false, fmt.Errorf("%w: %s: %w", ErrAllocationFailed, desc, err)
	}
	b.pyramid = id
	b.desc = desc
	b.stats.Reallocations++
	b.logger().Info("hiz: pyramid allocated", "size", desc.String(), "texture", uint64(id))
	return true, nil
}

func (b *Builder) releasePyramid() {
	if b.pyramid == gpucore.InvalidID {
		return
	}
	if b.published != nil && b.published.Revoke(b.opts.slotName, b.pyramid) {
		b.logger().Warn("hiz: releasing pyramid while published", "slot", b.opts.slotName)
	}
	b.adapter.DestroyTexture(b.pyramid)
	b.pyramid = gpucore.InvalidID
	b.desc = Descriptor{}
}

// Resource returns the current pyramid texture and its descriptor.
// The texture is gpucore.InvalidID before the first frame or after an
// allocation failure.
func (b *Builder) Resource() (gpucore.TextureID, Descriptor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pyramid, b.desc
}

// Stats returns a snapshot of the builder counters.
func (b *Builder) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Close releases the pyramid and any pending commands. The builder cannot
// be used afterwards. Close is safe to call multiple times.
func (b *Builder) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.releaseEncoder()
	b.releasePyramid()
	untrackBuilder(b)
	return nil
}
