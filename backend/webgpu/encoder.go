//go:build webgpu

package webgpu

import (
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gogpu/hiz/gpucore"
)

// encoder implements gpucore.CommandEncoder. Each dispatch is its own
// compute pass with a fresh uniform buffer and bind group.
type encoder struct {
	adapter *Adapter
	label   string

	mu         sync.Mutex
	enc        *wgpu.CommandEncoder
	bindGroups []*wgpu.BindGroup
	buffers    []*wgpu.Buffer
	count      int
	done       bool
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
	a.mu.RLock()
	p, ok := a.programs[id]
	a.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %d", gpucore.ErrProgramNotFound, id)
	}
	in, err := a.lookup(d.Input)
	if err != nil {
		return fmt.Errorf("webgpu: %s input: %w", d.Label, err)
	}
	if in.desc.Usage&gpucore.TextureUsageTextureBinding == 0 {
		return fmt.Errorf("webgpu: %s: input texture lacks TextureBinding usage", d.Label)
	}
	outViews := make([]*wgpu.TextureView, len(d.Outputs))
	for i, o := range d.Outputs {
		t, err := a.lookup(o)
		if err != nil {
			return fmt.Errorf("webgpu: %s output %d: %w", d.Label, i, err)
		}
		if t.desc.Usage&gpucore.TextureUsageStorageBinding == 0 || t.desc.Format != gpucore.TextureFormatR32Float {
			return fmt.Errorf("webgpu: %s: output %d is not an R32Float storage texture", d.Label, i)
		}
		outViews[i] = t.views[o.MipLevel]
	}

	params, err := a.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: d.Label + " params",
		Size:  gpucore.KernelParamsSize,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("webgpu: %s: create params buffer: %w", d.Label, err)
	}
	e.buffers = append(e.buffers, params)
	a.queue.WriteBuffer(params, 0, gpucore.ParamsFor(d).Bytes())

	entries := []wgpu.BindGroupEntry{
		{Binding: gpucore.BindingParams, Buffer: params, Offset: 0, Size: gpucore.KernelParamsSize},
		{Binding: gpucore.BindingInput, TextureView: in.views[d.Input.MipLevel]},
	}
	// Unused output slots repeat output 0; the kernel never writes them.
	for slot := range gpucore.MaxBatchSize {
		view := outViews[0]
		if slot < len(outViews) {
			view = outViews[slot]
		}
		entries = append(entries, wgpu.BindGroupEntry{
			Binding:     uint32(gpucore.BindingOutput0 + slot),
			TextureView: view,
		})
	}

	bg, err := a.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   d.Label,
		Layout:  p.bgLayout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("webgpu: %s: create bind group: %w", d.Label, err)
	}
	e.bindGroups = append(e.bindGroups, bg)

	pass := e.enc.BeginComputePass(&wgpu.ComputePassDescriptor{Label: d.Label})
	pass.SetPipeline(p.pipelines[d.Kernel])
	pass.SetBindGroup(0, bg, nil)
	pass.DispatchWorkgroups(d.Groups[0], d.Groups[1], d.Groups[2])
	pass.End()
	pass.Release()

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
	defer e.releaseLocked()

	cmd, err := e.enc.Finish(nil)
	if err != nil {
		return fmt.Errorf("webgpu: %s: finish: %w", e.label, err)
	}
	e.adapter.queue.Submit(cmd)
	cmd.Release()
	e.adapter.log().Debug("webgpu: submitted", "label", e.label, "dispatches", e.count)
	return nil
}

// releaseLocked drops the encoder's references. wgpu-native keeps the
// objects alive until submitted work using them has finished.
func (e *encoder) releaseLocked() {
	for _, bg := range e.bindGroups {
		bg.Release()
	}
	e.bindGroups = nil
	for _, b := range e.buffers {
		b.Release()
	}
	e.buffers = nil
	if e.enc != nil {
		e.enc.Release()
		e.enc = nil
	}
}

func (e *encoder) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return
	}
	e.done = true
	e.releaseLocked()
}

func (e *encoder) DispatchCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}
