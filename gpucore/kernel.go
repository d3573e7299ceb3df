package gpucore

import (
	"encoding/binary"
	"fmt"
	"math"
)

// KernelID identifies a kernel entry point of the Hi-Z program.
type KernelID uint32

// Kernel indices.
const (
	// KernelBlit reduces the source depth buffer into mip 0.
	KernelBlit KernelID = 0

	// KernelReduce reduces mip k-1 into mip k (and optionally further levels).
	KernelReduce KernelID = 1
)

// String returns the kernel entry point name.
func (k KernelID) String() string {
	switch k {
	case KernelBlit:
		return "blit"
	case KernelReduce:
		return "reduce"
	default:
		return fmt.Sprintf("KernelID(%d)", uint32(k))
	}
}

// Kernel slot names.
const (
	SlotInTex         = "inTex"
	SlotOutTex        = "outTex"
	SlotSrcTexelSize  = "srcTexelSize"
	SlotDestTexelSize = "destTexelSize"
)

// OutTextureSlots name the batched outputs of KernelReduce.
var OutTextureSlots = [MaxBatchSize]string{"OutTextures_0", "OutTextures_1", "OutTextures_2", "OutTextures_3"}

// MaxBatchSize is the maximum number of mip levels one reduce dispatch writes.
const MaxBatchSize = 4

// DefaultTileSize is the edge length of a workgroup in output texels.
const DefaultTileSize = 8

// ReductionPolicy selects the depth extremum kept by each reduction.
type ReductionPolicy uint32

// Reduction policies.
const (
	// PolicyMax keeps the farthest depth (conventional Z). This is the
	// conservative choice for occlusion culling: an occluder test against
	// the max never hides something that is in front of it.
	PolicyMax ReductionPolicy = iota

	// PolicyMin keeps the nearest depth (reversed Z, or screen-space tracing).
	PolicyMin
)

// String returns the policy name.
func (p ReductionPolicy) String() string {
	switch p {
	case PolicyMax:
		return "max"
	case PolicyMin:
		return "min"
	default:
		return fmt.Sprintf("ReductionPolicy(%d)", uint32(p))
	}
}

// ParsePolicy parses "max" or "min".
func ParsePolicy(s string) (ReductionPolicy, error) {
	switch s {
	case "max", "MAX", "Max":
		return PolicyMax, nil
	case "min", "MIN", "Min":
		return PolicyMin, nil
	default:
		return 0, fmt.Errorf("gpucore: unknown reduction policy %q", s)
	}
}

// Reduce combines two depth samples under the policy.
func (p ReductionPolicy) Reduce(a, b float32) float32 {
	if p == PolicyMin {
		if b < a {
			return b
		}
		return a
	}
	if b > a {
		return b
	}
	return a
}

// Identity returns the neutral element of Reduce.
func (p ReductionPolicy) Identity() float32 {
	if p == PolicyMin {
		return float32(math.Inf(1))
	}
	return float32(math.Inf(-1))
}

// wgslOp returns the WGSL builtin implementing the policy.
func (p ReductionPolicy) wgslOp() string {
	if p == PolicyMin {
		return "min"
	}
	return "max"
}

// Footprint returns the half-open range [lo, hi) of source texels covered by
// destination texel x when src texels are reduced into dst texels. Partially
// covered source texels are included, so the range is never empty.
func Footprint(x, src, dst int) (lo, hi int) {
	lo = x * src / dst
	hi = ((x+1)*src + dst - 1) / dst
	if hi > src {
		hi = src
	}
	if lo >= hi {
		lo = hi - 1
	}
	if lo < 0 {
		lo = 0
	}
	return lo, hi
}

// TexelSize returns the reciprocal resolution of a width x height surface.
func TexelSize(width, height int) Vec2 {
	return Vec2{1 / float32(width), 1 / float32(height)}
}

// DimFromTexelSize recovers an integer resolution from a texel size.
func DimFromTexelSize(ts Vec2) (width, height int) {
	return int(math.Round(1 / float64(ts[0]))), int(math.Round(1 / float64(ts[1])))
}

// WorkgroupCount returns ceil(dim / tile), so edge tiles are still covered
// when dim is not a multiple of tile.
func WorkgroupCount(dim int, tile uint32) uint32 {
	if dim <= 0 {
		return 0
	}
	return (uint32(dim) + tile - 1) / tile //nolint:gosec // dim > 0
}

// KernelParams is the uniform block of a dispatch.
// Must match Params in hiz.wgsl.
type KernelParams struct {
	SrcTexelSize Vec2
	DstTexelSize Vec2
	Levels       uint32 // number of outputs written (1..MaxBatchSize)
	Padding1     uint32
	Padding2     uint32
	Padding3     uint32
}

// KernelParamsSize is the size of KernelParams in bytes.
const KernelParamsSize = 32

// ParamsFor builds the uniform block for a dispatch.
func ParamsFor(d *DispatchDesc) KernelParams {
	return KernelParams{
		SrcTexelSize: d.SrcTexelSize,
		DstTexelSize: d.DstTexelSize,
		Levels:       uint32(len(d.Outputs)), //nolint:gosec // at most MaxBatchSize
	}
}

// Bytes encodes the params in little-endian std140 layout.
func (p KernelParams) Bytes() []byte {
	b := make([]byte, KernelParamsSize)
	binary.LittleEndian.PutUint32(b[0:], math.Float32bits(p.SrcTexelSize[0]))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(p.SrcTexelSize[1]))
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(p.DstTexelSize[0]))
	binary.LittleEndian.PutUint32(b[12:], math.Float32bits(p.DstTexelSize[1]))
	binary.LittleEndian.PutUint32(b[16:], p.Levels)
	return b
}

// ProgramDesc describes the Hi-Z compute program.
type ProgramDesc struct {
	// Label is an optional debug label.
	Label string

	// Policy is the reduction operator baked into both kernels.
	Policy ReductionPolicy

	// TileSize is the workgroup edge length. If 0, defaults to DefaultTileSize.
	TileSize uint32
}

// Program is the opaque handle the Builder is constructed with.
type Program struct {
	ID   ProgramID
	Desc ProgramDesc
}

// IsValid reports whether the program refers to a created resource.
func (p Program) IsValid() bool {
	return p.ID != InvalidID
}

// NewProgram applies defaults and creates the program on the adapter.
func NewProgram(adapter GPUAdapter, desc ProgramDesc) (Program, error) {
	if adapter == nil {
		return Program{}, fmt.Errorf("gpucore: adapter is required")
	}
	if !adapter.SupportsCompute() {
		return Program{}, ErrComputeUnsupported
	}
	if desc.TileSize == 0 {
		desc.TileSize = DefaultTileSize
	}
	caps := adapter.Capabilities()
	if caps.MaxWorkgroupInvocations != 0 && desc.TileSize*desc.TileSize > caps.MaxWorkgroupInvocations {
		return Program{}, fmt.Errorf("%w: tile %dx%d exceeds %d invocations",
			ErrComputeUnsupported, desc.TileSize, desc.TileSize, caps.MaxWorkgroupInvocations)
	}
	if desc.Policy != PolicyMax && desc.Policy != PolicyMin {
		return Program{}, fmt.Errorf("gpucore: unknown reduction policy %d", desc.Policy)
	}
	id, err := adapter.CreateProgram(&desc)
	if err != nil {
		return Program{}, fmt.Errorf("gpucore: create program: %w", err)
	}
	return Program{ID: id, Desc: desc}, nil
}
