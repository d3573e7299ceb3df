package software

import (
	"fmt"
	"sync"

	"github.com/gogpu/hiz/gpucore"
)

type command struct {
	program gpucore.ProgramID
	desc    gpucore.DispatchDesc
}

// encoder records dispatches and runs them on Submit.
type encoder struct {
	adapter *Adapter
	label   string

	mu       sync.Mutex
	commands []command
	finished bool
}

// Dispatch validates and records one dispatch. Resource errors are
// reported here, before anything executes.
func (e *encoder) Dispatch(id gpucore.ProgramID, d *gpucore.DispatchDesc) error {
	if err := d.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished {
		return gpucore.ErrEncoderFinished
	}
	if err := e.adapter.checkDispatch(id, d); err != nil {
		return fmt.Errorf("software: %s: %w", e.label, err)
	}

	c := command{program: id, desc: *d}
	c.desc.Outputs = append([]gpucore.TextureBinding(nil), d.Outputs...)
	e.commands = append(e.commands, c)
	return nil
}

// Submit executes the recorded dispatches in order.
func (e *encoder) Submit() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished {
		return gpucore.ErrEncoderFinished
	}
	e.finished = true
	cmds := e.commands
	e.commands = nil
	return e.adapter.execute(e.label, cmds)
}

// Release drops unsubmitted dispatches.
func (e *encoder) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finished = true
	e.commands = nil
}

// DispatchCount returns the number of recorded, unsubmitted dispatches.
func (e *encoder) DispatchCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.commands)
}

// checkDispatch applies the binding rules a GPU validation layer would.
func (a *Adapter) checkDispatch(id gpucore.ProgramID, d *gpucore.DispatchDesc) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if _, ok := a.programs[id]; !ok {
		return fmt.Errorf("%w: %d", gpucore.ErrProgramNotFound, id)
	}
	in, err := a.level(d.Input.Texture, d.Input.MipLevel)
	if err != nil {
		return fmt.Errorf("input: %w", err)
	}
	if in.desc.Usage&gpucore.TextureUsageTextureBinding == 0 {
		return fmt.Errorf("input texture %d lacks TextureBinding usage", d.Input.Texture)
	}
	for _, out := range d.Outputs {
		tex, err := a.level(out.Texture, out.MipLevel)
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		if tex.desc.Usage&gpucore.TextureUsageStorageBinding == 0 {
			return fmt.Errorf("output texture %d lacks StorageBinding usage", out.Texture)
		}
		if tex.desc.Format != gpucore.TextureFormatR32Float {
			return fmt.Errorf("output texture %d is %s, want R32Float", out.Texture, tex.desc.Format)
		}
	}
	for i, g := range d.Groups {
		if g > DefaultMaxComputeWorkgroupsPerDimension {
			return fmt.Errorf("workgroup count %d in dimension %d exceeds %d", g, i, DefaultMaxComputeWorkgroupsPerDimension)
		}
	}
	return nil
}

var _ gpucore.CommandEncoder = (*encoder)(nil)
