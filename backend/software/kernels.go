package software

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/hiz/gpucore"
)

// execute runs commands in order. Each dispatch completes before the next
// starts, which is the ordering a single GPU queue guarantees.
func (a *Adapter) execute(label string, cmds []command) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for i := range cmds {
		c := &cmds[i]
		prog, ok := a.programs[c.program]
		if !ok {
			return fmt.Errorf("%w: %d", gpucore.ErrProgramNotFound, c.program)
		}
		inv, err := a.bind(prog, &c.desc)
		if err != nil {
			return fmt.Errorf("software: %s: %s: %w", label, c.desc.Label, err)
		}
		a.run(inv)
		a.dispatches.Add(1)
	}
	a.submits.Add(1)
	a.log().Debug("software: submitted", "label", label, "dispatches", len(cmds))
	return nil
}

// surface is one bound mip level.
type surface struct {
	data   []float32
	writes []uint32
	width  int
	height int
}

// invocation is a dispatch with its bindings resolved.
type invocation struct {
	kernel  gpucore.KernelID
	policy  gpucore.ReductionPolicy
	tile    int
	groupsX int
	groupsY int

	in   surface
	outs []surface

	// Sizes seen by the kernel, recovered from the texel sizes exactly as
	// the WGSL does. They need not match the bound textures.
	srcW, srcH int
	dstW, dstH int

	oob *atomic.Uint64
}

func (a *Adapter) bind(prog *program, d *gpucore.DispatchDesc) (*invocation, error) {
	in, err := a.level(d.Input.Texture, d.Input.MipLevel)
	if err != nil {
		return nil, err
	}
	inv := &invocation{
		kernel:  d.Kernel,
		policy:  prog.desc.Policy,
		tile:    int(prog.desc.TileSize),
		groupsX: int(d.Groups[0]),
		groupsY: int(d.Groups[1]),
		in:      bindSurface(in, d.Input.MipLevel),
		oob:     &a.outOfBounds,
	}
	for _, o := range d.Outputs {
		tex, err := a.level(o.Texture, o.MipLevel)
		if err != nil {
			return nil, err
		}
		inv.outs = append(inv.outs, bindSurface(tex, o.MipLevel))
	}
	inv.srcW, inv.srcH = gpucore.DimFromTexelSize(d.SrcTexelSize)
	inv.dstW, inv.dstH = gpucore.DimFromTexelSize(d.DstTexelSize)
	return inv, nil
}

func bindSurface(tex *texture, mip int) surface {
	w, h := tex.desc.MipSize(mip)
	return surface{data: tex.levels[mip], writes: tex.writes[mip], width: w, height: h}
}

// run executes every invocation of the grid. Rows of invocations are
// independent, so they are spread over the pool.
func (a *Adapter) run(inv *invocation) {
	rows := inv.groupsY * inv.tile
	cols := inv.groupsX * inv.tile
	a.pool.ForEach(rows, func(y int) {
		for x := range cols {
			inv.invoke(x, y)
		}
	})
}

// invoke is one kernel invocation at global id (x, y).
func (inv *invocation) invoke(x, y int) {
	if x >= inv.dstW || y >= inv.dstH {
		return
	}
	inv.store(0, x, y, inv.extremum(x, y, inv.dstW, inv.dstH))
	if inv.kernel != gpucore.KernelReduce {
		return
	}

	for j := 1; j < len(inv.outs); j++ {
		mask := 1<<j - 1
		if x&mask != 0 || y&mask != 0 {
			return
		}
		dw, dh := gpucore.MipDim(inv.dstW, j), gpucore.MipDim(inv.dstH, j)
		cx, cy := x>>j, y>>j
		if cx >= dw || cy >= dh {
			return
		}
		inv.store(j, cx, cy, inv.extremum(cx, cy, dw, dh))
	}
}

// extremum reduces the footprint of destination texel (x, y) in the input.
func (inv *invocation) extremum(x, y, dstW, dstH int) float32 {
	x0, x1 := gpucore.Footprint(x, inv.srcW, dstW)
	y0, y1 := gpucore.Footprint(y, inv.srcH, dstH)
	acc := inv.policy.Identity()
	for sy := y0; sy < y1; sy++ {
		for sx := x0; sx < x1; sx++ {
			acc = inv.policy.Reduce(acc, inv.load(sx, sy))
		}
	}
	return acc
}

func (inv *invocation) load(x, y int) float32 {
	s := &inv.in
	if x < 0 || y < 0 || x >= s.width || y >= s.height {
		inv.oob.Add(1)
		return inv.policy.Identity()
	}
	return s.data[y*s.width+x]
}

func (inv *invocation) store(out, x, y int, v float32) {
	s := &inv.outs[out]
	if x < 0 || y < 0 || x >= s.width || y >= s.height {
		inv.oob.Add(1)
		return
	}
	i := y*s.width + x
	s.data[i] = v
	atomic.AddUint32(&s.writes[i], 1)
}
