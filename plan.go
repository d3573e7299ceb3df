package hiz

import (
	"fmt"

	"github.com/gogpu/hiz/gpucore"
)

// PlanParams are the inputs of PlanDispatches.
type PlanParams struct {
	// Descriptor sizes the pyramid.
	Descriptor Descriptor

	// Pyramid is the texture the plan writes.
	Pyramid gpucore.TextureID

	// Depth is the source depth texture, DepthWidth x DepthHeight texels.
	Depth       gpucore.TextureID
	DepthWidth  int
	DepthHeight int

	// BatchSize is the number of levels per reduce dispatch (1..4).
	// Values outside the range are clamped.
	BatchSize int

	// TileSize is the workgroup edge. Zero means gpucore.DefaultTileSize.
	TileSize uint32

	// Label prefixes dispatch labels.
	Label string
}

// PlanDispatches returns the ordered dispatches that build a pyramid: one
// blit into mip 0, then reduce dispatches covering mips 1..MipCount-1 in
// ascending order, each reading the level below its first output.
//
// Workgroup counts are rounded up, so edge tiles are covered when a level
// is not a multiple of the tile size.
func PlanDispatches(p PlanParams) []gpucore.DispatchDesc {
	tile := p.TileSize
	if tile == 0 {
		tile = gpucore.DefaultTileSize
	}
	batch := min(max(p.BatchSize, 1), gpucore.MaxBatchSize)
	d := p.Descriptor

	plan := make([]gpucore.DispatchDesc, 0, 1+(d.MipCount-1+batch-1)/batch)

	bw, bh := d.MipSize(0)
	plan = append(plan, gpucore.DispatchDesc{
		Label:        fmt.Sprintf("%s blit", p.Label),
		Kernel:       gpucore.KernelBlit,
		Input:        gpucore.TextureBinding{Texture: p.Depth},
		Outputs:      []gpucore.TextureBinding{{Texture: p.Pyramid}},
		SrcTexelSize: gpucore.TexelSize(p.DepthWidth, p.DepthHeight),
		DstTexelSize: gpucore.TexelSize(bw, bh),
		Groups:       [3]uint32{gpucore.WorkgroupCount(bw, tile), gpucore.WorkgroupCount(bh, tile), 1},
	})

	for k := 1; k < d.MipCount; k += batch {
		n := min(batch, d.MipCount-k)
		outputs := make([]gpucore.TextureBinding, n)
		for j := range outputs {
			outputs[j] = gpucore.TextureBinding{Texture: p.Pyramid, MipLevel: k + j}
		}
		sw, sh := d.MipSize(k - 1)
		dw, dh := d.MipSize(k)
		label := fmt.Sprintf("%s reduce mip %d", p.Label, k)
		if n > 1 {
			label = fmt.Sprintf("%s reduce mips %d-%d", p.Label, k, k+n-1)
		}
		plan = append(plan, gpucore.DispatchDesc{
			Label:        label,
			Kernel:       gpucore.KernelReduce,
			Input:        gpucore.TextureBinding{Texture: p.Pyramid, MipLevel: k - 1},
			Outputs:      outputs,
			SrcTexelSize: gpucore.TexelSize(sw, sh),
			DstTexelSize: gpucore.TexelSize(dw, dh),
			Groups:       [3]uint32{gpucore.WorkgroupCount(dw, tile), gpucore.WorkgroupCount(dh, tile), 1},
		})
	}
	return plan
}
