package native

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/hiz/gpucore"
	"github.com/gogpu/wgpu/hal"
)

// submission owns the per-encoder resources that must outlive recording
// until the GPU has finished with them.
type submission struct {
	fence      hal.Fence
	cmdBuf     hal.CommandBuffer
	bindGroups []hal.BindGroup
	buffers    []hal.Buffer
}

func (s *submission) release(device hal.Device) {
	if s.fence != nil {
		device.DestroyFence(s.fence)
		s.fence = nil
	}
	if s.cmdBuf != nil {
		device.FreeCommandBuffer(s.cmdBuf)
		s.cmdBuf = nil
	}
	for _, g := range s.bindGroups {
		device.DestroyBindGroup(g)
	}
	s.bindGroups = nil
	for _, b := range s.buffers {
		device.DestroyBuffer(b)
	}
	s.buffers = nil
}

// encoder implements gpucore.CommandEncoder. Each dispatch is recorded as
// its own compute pass with a fresh uniform buffer and bind group.
type encoder struct {
	adapter *Adapter
	label   string

	mu    sync.Mutex
	enc   hal.CommandEncoder
	res   *submission
	count int
	done  bool

	// prior holds the usage of each level before this encoder first
	// transitioned it, restored if the recording is discarded.
	prior map[*levelTexture]gputypes.TextureUsage
}

// restore rewinds level usage to what it was before recording.
func (e *encoder) restore() {
	if len(e.prior) == 0 {
		return
	}
	e.adapter.mu.Lock()
	for l, u := range e.prior {
		l.usage = u
	}
	e.adapter.mu.Unlock()
	e.prior = nil
}

func (e *encoder) transition(l *levelTexture, want gputypes.TextureUsage, barriers []hal.TextureBarrier) []hal.TextureBarrier {
	if _, seen := e.prior[l]; !seen {
		if e.prior == nil {
			e.prior = make(map[*levelTexture]gputypes.TextureUsage)
		}
		e.prior[l] = l.usage
	}
	if b, ok := l.transition(want); ok {
		barriers = append(barriers, b)
	}
	return barriers
}

// outputSlots maps the MaxBatchSize storage bindings to output indices.
// Slots past the last output repeat output 0; the kernel never writes them.
func outputSlots(n int) [gpucore.MaxBatchSize]int {
	var slots [gpucore.MaxBatchSize]int
	for i := range slots {
		if i < n {
			slots[i] = i
		}
	}
	return slots
}

func (e *encoder) Dispatch(id gpucore.ProgramID, d *gpucore.DispatchDesc) error {
	if err := d.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return gpucore.ErrEncoderFinished
	}

	a := e.adapter
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.programs[id]
	if !ok {
		return fmt.Errorf("%w: %d", gpucore.ErrProgramNotFound, id)
	}
	inTex, in, err := a.lookupLevel(d.Input)
	if err != nil {
		return fmt.Errorf("native: %s input: %w", d.Label, err)
	}
	if inTex.desc.Usage&gpucore.TextureUsageTextureBinding == 0 {
		return fmt.Errorf("native: %s: input texture lacks TextureBinding usage", d.Label)
	}
	outs := make([]*levelTexture, len(d.Outputs))
	for i, o := range d.Outputs {
		t, l, err := a.lookupLevel(o)
		if err != nil {
			return fmt.Errorf("native: %s output %d: %w", d.Label, i, err)
		}
		if t.desc.Usage&gpucore.TextureUsageStorageBinding == 0 || t.desc.Format != gpucore.TextureFormatR32Float {
			return fmt.Errorf("native: %s: output %d is not an R32Float storage texture", d.Label, i)
		}
		outs[i] = l
	}

	params, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: d.Label + " params",
		Size:  gpucore.KernelParamsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("native: %s: create params buffer: %w", d.Label, err)
	}
	e.res.buffers = append(e.res.buffers, params)
	a.queue.WriteBuffer(params, 0, gpucore.ParamsFor(d).Bytes())

	entries := make([]gputypes.BindGroupEntry, 0, gpucore.BindingsPerPass)
	entries = append(entries,
		gputypes.BindGroupEntry{
			Binding:  gpucore.BindingParams,
			Resource: gputypes.BufferBinding{Buffer: params.NativeHandle(), Offset: 0, Size: gpucore.KernelParamsSize},
		},
		gputypes.BindGroupEntry{
			Binding:  gpucore.BindingInput,
			Resource: gputypes.TextureViewBinding{TextureView: in.view.NativeHandle()},
		},
	)
	for slot, idx := range outputSlots(len(outs)) {
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(gpucore.BindingOutput0 + slot),
			Resource: gputypes.TextureViewBinding{TextureView: outs[idx].view.NativeHandle()},
		})
	}

	bg, err := a.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   d.Label,
		Layout:  p.bgLayout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("native: %s: create bind group: %w", d.Label, err)
	}
	e.res.bindGroups = append(e.res.bindGroups, bg)

	barriers := e.transition(in, gputypes.TextureUsageTextureBinding, nil)
	for _, l := range outs {
		barriers = e.transition(l, gputypes.TextureUsageStorageBinding, barriers)
	}
	if len(barriers) > 0 {
		e.enc.TransitionTextures(barriers)
	}

	pass := e.enc.BeginComputePass(&hal.ComputePassDescriptor{Label: d.Label})
	pass.SetPipeline(p.pipelines[d.Kernel])
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(d.Groups[0], d.Groups[1], d.Groups[2])
	pass.End()

	e.count++
	return nil
}

func (e *encoder) Submit() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return gpucore.ErrEncoderFinished
	}
	e.done = true

	a := e.adapter
	cmdBuf, err := e.enc.EndEncoding()
	if err != nil {
		e.res.release(a.device)
		e.restore()
		return fmt.Errorf("native: %s: end encoding: %w", e.label, err)
	}
	e.res.cmdBuf = cmdBuf

	fence, err := a.device.CreateFence()
	if err != nil {
		e.res.release(a.device)
		e.restore()
		return fmt.Errorf("native: %s: create fence: %w", e.label, err)
	}
	e.res.fence = fence

	if err := a.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		e.res.release(a.device)
		e.restore()
		return fmt.Errorf("native: %s: submit: %w", e.label, err)
	}
	a.track(e.res)
	a.log().Debug("native: submitted", "label", e.label, "dispatches", e.count)
	return nil
}

func (e *encoder) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return
	}
	e.done = true
	e.enc.DiscardEncoding()
	e.res.release(e.adapter.device)
	e.restore()
}

func (e *encoder) DispatchCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}
