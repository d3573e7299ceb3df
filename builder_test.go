package hiz

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/gogpu/hiz/backend/software"
	"github.com/gogpu/hiz/gpucore"
)

type fixture struct {
	adapter *software.Adapter
	program gpucore.Program
	depth   gpucore.TextureID
	values  []float32
	dw, dh  int
}

func newFixture(t *testing.T, policy ReductionPolicy, dw, dh int, opts ...software.Option) *fixture {
	t.Helper()
	a := software.New(opts...)
	t.Cleanup(func() { _ = a.Close() })

	prog, err := gpucore.NewProgram(a, gpucore.ProgramDesc{Label: "hiz", Policy: policy})
	if err != nil {
		t.Fatalf("NewProgram: %v", err)
	}
	depth, err := a.CreateTexture(&gpucore.TextureDesc{
		Label: "depth", Width: dw, Height: dh, MipLevelCount: 1,
		Format: gpucore.TextureFormatDepth32Float,
		Usage:  gpucore.TextureUsageTextureBinding | gpucore.TextureUsageCopyDst,
	})
	if err != nil {
		t.Fatalf("create depth: %v", err)
	}
	rng := rand.New(rand.NewSource(int64(dw*7919 + dh)))
	values := make([]float32, dw*dh)
	for i := range values {
		values[i] = rng.Float32()
	}
	if err := a.WriteTexture(depth, 0, values); err != nil {
		t.Fatalf("upload depth: %v", err)
	}
	return &fixture{adapter: a, program: prog, depth: depth, values: values, dw: dw, dh: dh}
}

func (f *fixture) frame(vw, vh int) *FrameContext {
	return &FrameContext{
		ViewportWidth: vw, ViewportHeight: vh,
		Depth: f.depth, DepthWidth: f.dw, DepthHeight: f.dh,
	}
}

// expected reduces the full depth-buffer footprint of a pyramid texel.
func (f *fixture) expected(policy ReductionPolicy, d Descriptor, level, x, y int) float32 {
	bw, bh := d.MipSize(0)
	lw, lh := d.MipSize(level)
	bx0, bx1 := x*bw/lw, (x+1)*bw/lw
	by0, by1 := y*bh/lh, (y+1)*bh/lh
	sx0, _ := gpucore.Footprint(bx0, f.dw, bw)
	_, sx1 := gpucore.Footprint(bx1-1, f.dw, bw)
	sy0, _ := gpucore.Footprint(by0, f.dh, bh)
	_, sy1 := gpucore.Footprint(by1-1, f.dh, bh)

	acc := policy.Identity()
	for sy := sy0; sy < sy1; sy++ {
		for sx := sx0; sx < sx1; sx++ {
			acc = policy.Reduce(acc, f.values[sy*f.dw+sx])
		}
	}
	return acc
}

func newTestBuilder(t *testing.T, f *fixture, opts ...BuilderOption) *Builder {
	t.Helper()
	b, err := NewBuilder(f.adapter, f.program, opts...)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestNewBuilder_Errors(t *testing.T) {
	f := newFixture(t, PolicyMax, 4, 4)

	t.Run("no compute", func(t *testing.T) {
		a := software.New(software.WithoutCompute())
		defer a.Close()
		_, err := NewBuilder(a, f.program)
		if !errors.Is(err, ErrComputeUnsupported) {
			t.Errorf("err = %v, want ErrComputeUnsupported", err)
		}
	})
	t.Run("nil adapter", func(t *testing.T) {
		if _, err := NewBuilder(nil, f.program); !errors.Is(err, ErrComputeUnsupported) {
			t.Errorf("err = %v, want ErrComputeUnsupported", err)
		}
	})
	t.Run("zero program", func(t *testing.T) {
		if _, err := NewBuilder(f.adapter, gpucore.Program{}); !errors.Is(err, ErrInvalidProgram) {
			t.Errorf("err = %v, want ErrInvalidProgram", err)
		}
	})
	t.Run("batch size", func(t *testing.T) {
		for _, n := range []int{0, gpucore.MaxBatchSize + 1} {
			if _, err := NewBuilder(f.adapter, f.program, WithBatchSize(n)); !errors.Is(err, ErrInvalidOption) {
				t.Errorf("WithBatchSize(%d): err = %v, want ErrInvalidOption", n, err)
			}
		}
	})
	t.Run("empty slot", func(t *testing.T) {
		if _, err := NewBuilder(f.adapter, f.program, WithSlotName("")); !errors.Is(err, ErrInvalidOption) {
			t.Errorf("err = %v, want ErrInvalidOption", err)
		}
	})
}

func TestBuilder_ReductionCorrectness(t *testing.T) {
	for _, policy := range []ReductionPolicy{PolicyMax, PolicyMin} {
		for batch := 1; batch <= gpucore.MaxBatchSize; batch++ {
			t.Run(fmt.Sprintf("%s/batch%d", policy, batch), func(t *testing.T) {
				// 200x120 has a non-integer base ratio and edge tiles.
				f := newFixture(t, policy, 200, 120)
				b := newTestBuilder(t, f, WithBatchSize(batch))
				g := NewFrameGraph(b)

				if err := g.RunFrame(context.Background(), f.frame(200, 120)); err != nil {
					t.Fatalf("RunFrame: %v", err)
				}

				binding, ok := g.Registry().Lookup(DefaultSlotName)
				if !ok {
					t.Fatal("pyramid not published")
				}
				d := binding.Descriptor
				if d != (Descriptor{128, 64, 7}) {
					t.Fatalf("descriptor = %v", d)
				}

				for level := range d.MipCount {
					got, err := f.adapter.ReadTexture(binding.Texture, level)
					if err != nil {
						t.Fatal(err)
					}
					counts, _ := f.adapter.WriteCounts(binding.Texture, level)
					lw, lh := d.MipSize(level)
					for y := range lh {
						for x := range lw {
							i := y*lw + x
							if counts[i] != 1 {
								t.Fatalf("mip %d (%d,%d) written %d times", level, x, y, counts[i])
							}
							if want := f.expected(policy, d, level, x, y); got[i] != want {
								t.Fatalf("mip %d (%d,%d) = %v, want %v", level, x, y, got[i], want)
							}
						}
					}
				}
				if n := f.adapter.OutOfBounds(); n != 0 {
					t.Errorf("OutOfBounds() = %d", n)
				}

				wantDispatches := 1 + (d.MipCount-1+batch-1)/batch
				if s := b.Stats(); s.Dispatches != uint64(wantDispatches) || s.FramesBuilt != 1 {
					t.Errorf("Stats() = %+v, want %d dispatches", s, wantDispatches)
				}
			})
		}
	}
}

func TestBuilder_SingleLevelPyramid(t *testing.T) {
	f := newFixture(t, PolicyMax, 3, 3)
	b := newTestBuilder(t, f)
	g := NewFrameGraph(b)

	if err := g.RunFrame(context.Background(), f.frame(3, 3)); err != nil {
		t.Fatal(err)
	}
	if s := b.Stats(); s.Dispatches != 1 {
		t.Errorf("3x3 viewport dispatched %d passes, want only the blit", s.Dispatches)
	}
	tex, d := b.Resource()
	got, _ := f.adapter.ReadTexture(tex, 0)
	for y := range 2 {
		for x := range 2 {
			if want := f.expected(PolicyMax, d, 0, x, y); got[y*2+x] != want {
				t.Errorf("(%d,%d) = %v, want %v", x, y, got[y*2+x], want)
			}
		}
	}
}

func TestBuilder_ReconcileIdempotent(t *testing.T) {
	f := newFixture(t, PolicyMax, 4, 4)
	b := newTestBuilder(t, f)

	d := ComputeDescriptor(640, 480)
	realloc, err := b.Reconcile(d)
	if err != nil || !realloc {
		t.Fatalf("first Reconcile = %v, %v", realloc, err)
	}
	first, _ := b.Resource()

	realloc, err = b.Reconcile(d)
	if err != nil || realloc {
		t.Fatalf("second Reconcile = %v, %v, want no reallocation", realloc, err)
	}
	if same, _ := b.Resource(); same != first {
		t.Error("texture identity changed without a size change")
	}

	textures := f.adapter.Stats().Textures
	realloc, err = b.Reconcile(ComputeDescriptor(1920, 1017))
	if err != nil || !realloc {
		t.Fatalf("resize Reconcile = %v, %v", realloc, err)
	}
	tex, got := b.Resource()
	if tex == first {
		t.Error("resize kept the old texture")
	}
	if got != (Descriptor{1024, 512, 10}) {
		t.Errorf("descriptor = %v", got)
	}
	if f.adapter.Stats().Textures != textures {
		t.Error("old pyramid was not released")
	}
	if s := b.Stats(); s.Reallocations != 2 {
		t.Errorf("Reallocations = %d, want 2", s.Reallocations)
	}
}

func TestBuilder_PersistsAcrossFrames(t *testing.T) {
	f := newFixture(t, PolicyMax, 64, 64)
	b := newTestBuilder(t, f)
	g := NewFrameGraph(b)

	var first gpucore.TextureID
	for i := range 3 {
		if err := g.RunFrame(context.Background(), f.frame(64, 64)); err != nil {
			t.Fatal(err)
		}
		binding, ok := g.Registry().Lookup(DefaultSlotName)
		if !ok {
			t.Fatalf("frame %d not published", i)
		}
		if binding.Frame != uint64(i) {
			t.Errorf("binding frame = %d, want %d", binding.Frame, i)
		}
		if i == 0 {
			first = binding.Texture
		} else if binding.Texture != first {
			t.Errorf("frame %d reallocated the pyramid", i)
		}
	}
	if s := b.Stats(); s.Reallocations != 1 || s.FramesBuilt != 3 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestBuilder_AllocationFailureIsNotPublished(t *testing.T) {
	// Depth 64x64 (16384 bytes) plus an 8x8 pyramid (336 bytes) fit,
	// a 32x32 pyramid (5456 bytes) does not.
	f := newFixture(t, PolicyMax, 64, 64, software.WithMemoryBudget(16384+336+1000))
	b := newTestBuilder(t, f)
	g := NewFrameGraph(b)

	if err := g.RunFrame(context.Background(), f.frame(16, 16)); err != nil {
		t.Fatalf("small frame: %v", err)
	}
	if _, ok := g.Registry().Lookup(DefaultSlotName); !ok {
		t.Fatal("small frame not published")
	}

	err := g.RunFrame(context.Background(), f.frame(64, 64))
	if !errors.Is(err, ErrAllocationFailed) {
		t.Fatalf("large frame = %v, want ErrAllocationFailed", err)
	}
	if !errors.Is(err, gpucore.ErrOutOfMemory) {
		t.Errorf("error should carry the adapter cause: %v", err)
	}
	if _, ok := g.Registry().Lookup(DefaultSlotName); ok {
		t.Error("failed frame left a binding in the registry")
	}
	if tex, _ := b.Resource(); tex != gpucore.InvalidID {
		t.Error("builder kept a texture after a failed allocation")
	}
	s := b.Stats()
	if s.AllocationFailures != 1 || s.FramesAborted != 1 || s.FramesBuilt != 1 {
		t.Errorf("Stats() = %+v", s)
	}

	// A later frame that fits recovers.
	if err := g.RunFrame(context.Background(), f.frame(16, 16)); err != nil {
		t.Fatalf("recovery frame: %v", err)
	}
}

func TestBuilder_CancelledFrameIsDiscarded(t *testing.T) {
	f := newFixture(t, PolicyMax, 32, 32)
	b := newTestBuilder(t, f)
	reg := NewRegistry()
	fc := f.frame(32, 32)
	fc.Registry = reg

	if err := b.OnFrameBegin(fc); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Execute(ctx, fc); !errors.Is(err, context.Canceled) {
		t.Fatalf("Execute = %v, want context.Canceled", err)
	}
	b.OnFrameEnd(fc)
	b.OnFrameEnd(fc)

	if _, ok := reg.Lookup(DefaultSlotName); ok {
		t.Error("cancelled frame was published")
	}
	if s := f.adapter.Stats(); s.Submits != 0 {
		t.Errorf("cancelled frame submitted %d times", s.Submits)
	}
	if s := b.Stats(); s.FramesAborted != 1 {
		t.Errorf("FramesAborted = %d, want 1", s.FramesAborted)
	}
}

func TestBuilder_FrameContract(t *testing.T) {
	f := newFixture(t, PolicyMax, 8, 8)
	b := newTestBuilder(t, f)

	if err := b.Execute(context.Background(), f.frame(8, 8)); !errors.Is(err, ErrFrameNotBegun) {
		t.Errorf("Execute without begin = %v, want ErrFrameNotBegun", err)
	}
	if err := b.OnFrameBegin(f.frame(0, 8)); !errors.Is(err, ErrInvalidViewport) {
		t.Errorf("zero width = %v, want ErrInvalidViewport", err)
	}
	fc := f.frame(8, 8)
	fc.Depth = gpucore.InvalidID
	if err := b.OnFrameBegin(fc); !errors.Is(err, ErrNoDepthSource) {
		t.Errorf("no depth = %v, want ErrNoDepthSource", err)
	}

	// Without a registry the pyramid is built but not published.
	fc = f.frame(8, 8)
	if err := b.OnFrameBegin(fc); err != nil {
		t.Fatal(err)
	}
	if err := b.Execute(context.Background(), fc); err != nil {
		t.Fatal(err)
	}
	b.OnFrameEnd(fc)
	if err := b.Execute(context.Background(), fc); !errors.Is(err, ErrFrameNotBegun) {
		t.Errorf("Execute after end = %v, want ErrFrameNotBegun", err)
	}
}

func TestBuilder_Close(t *testing.T) {
	f := newFixture(t, PolicyMax, 16, 16)
	b, err := NewBuilder(f.adapter, f.program)
	if err != nil {
		t.Fatal(err)
	}
	g := NewFrameGraph(b)
	if err := g.RunFrame(context.Background(), f.frame(16, 16)); err != nil {
		t.Fatal(err)
	}
	before := f.adapter.Stats().Textures

	if err := g.Close(); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
	if got := f.adapter.Stats().Textures; got != before-1 {
		t.Errorf("textures after Close = %d, want %d", got, before-1)
	}
	if _, ok := g.Registry().Lookup(DefaultSlotName); ok {
		t.Error("closed builder left its pyramid published")
	}
	if err := b.OnFrameBegin(f.frame(16, 16)); !errors.Is(err, ErrBuilderClosed) {
		t.Errorf("OnFrameBegin after Close = %v, want ErrBuilderClosed", err)
	}
}

func TestBuilder_SlotConflicts(t *testing.T) {
	f := newFixture(t, PolicyMax, 16, 16)
	a := newTestBuilder(t, f, WithLabel("left"))
	b := newTestBuilder(t, f, WithLabel("right"))

	g := NewFrameGraph(a, b)
	if err := g.RunFrame(context.Background(), f.frame(16, 16)); !errors.Is(err, ErrSlotAlreadyPublished) {
		t.Fatalf("same slot = %v, want ErrSlotAlreadyPublished", err)
	}

	c := newTestBuilder(t, f, WithLabel("right"), WithSlotName("_HizMapRight"))
	g = NewFrameGraph(a, c)
	if err := g.RunFrame(context.Background(), f.frame(16, 16)); err != nil {
		t.Fatalf("distinct slots: %v", err)
	}
	if names := g.Registry().Names(); len(names) != 2 {
		t.Errorf("Names() = %v", names)
	}
}

// failingAdapter fails the n-th recorded dispatch of every encoder.
type failingAdapter struct {
	*software.Adapter
	failAt int
}

func (a *failingAdapter) CreateCommandEncoder(label string) (gpucore.CommandEncoder, error) {
	enc, err := a.Adapter.CreateCommandEncoder(label)
	if err != nil {
		return nil, err
	}
	return &failingEncoder{CommandEncoder: enc, failAt: a.failAt}, nil
}

type failingEncoder struct {
	gpucore.CommandEncoder
	failAt int
	n      int
}

func (e *failingEncoder) Dispatch(id gpucore.ProgramID, d *gpucore.DispatchDesc) error {
	e.n++
	if e.n == e.failAt {
		return errors.New("device lost")
	}
	return e.CommandEncoder.Dispatch(id, d)
}

func TestBuilder_RecordingFailureDiscardsFrame(t *testing.T) {
	f := newFixture(t, PolicyMax, 64, 64)
	fa := &failingAdapter{Adapter: f.adapter, failAt: 3}
	b, err := NewBuilder(fa, f.program)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	g := NewFrameGraph(b)

	if err := g.RunFrame(context.Background(), f.frame(64, 64)); err == nil {
		t.Fatal("RunFrame should fail")
	}
	if _, ok := g.Registry().Lookup(DefaultSlotName); ok {
		t.Error("failed frame was published")
	}
	tex, _ := b.Resource()
	counts, _ := f.adapter.WriteCounts(tex, 0)
	for i, c := range counts {
		if c != 0 {
			t.Fatalf("texel %d written although the frame was discarded", i)
		}
	}
}
