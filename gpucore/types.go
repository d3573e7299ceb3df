package gpucore

import "fmt"

// Resource IDs
//
// These opaque IDs represent GPU resources. Each adapter implementation
// maintains a mapping between IDs and actual backend resources.

// TextureID is an opaque handle to a GPU texture.
type TextureID uint64

// ProgramID is an opaque handle to a compiled Hi-Z compute program
// (shader module, layouts and one pipeline per kernel).
type ProgramID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// TextureFormat specifies the format of texture data.
type TextureFormat uint32

// Texture formats.
const (
	// TextureFormatR32Float is 32-bit red channel only, floating point.
	// Pyramid levels are always stored in this format.
	TextureFormatR32Float TextureFormat = iota + 1

	// TextureFormatDepth32Float is a 32-bit floating point depth buffer.
	// Accepted as a blit source only.
	TextureFormatDepth32Float
)

// String returns the format name.
func (f TextureFormat) String() string {
	switch f {
	case TextureFormatR32Float:
		return "R32Float"
	case TextureFormatDepth32Float:
		return "Depth32Float"
	default:
		return fmt.Sprintf("TextureFormat(%d)", uint32(f))
	}
}

// TextureUsage is a bitmask specifying how a texture will be used.
type TextureUsage uint32

// Texture usage flags.
const (
	// TextureUsageCopySrc indicates the texture can be used as a copy source.
	TextureUsageCopySrc TextureUsage = 1 << 0

	// TextureUsageCopyDst indicates the texture can be used as a copy destination.
	TextureUsageCopyDst TextureUsage = 1 << 1

	// TextureUsageTextureBinding indicates the texture can be bound as a sampled texture.
	TextureUsageTextureBinding TextureUsage = 1 << 2

	// TextureUsageStorageBinding indicates the texture can be bound as a
	// storage texture (random write access from compute).
	TextureUsageStorageBinding TextureUsage = 1 << 3
)

// PyramidUsage is the usage every Hi-Z pyramid is created with.
const PyramidUsage = TextureUsageStorageBinding | TextureUsageTextureBinding |
	TextureUsageCopySrc | TextureUsageCopyDst

// FilterMode selects how consumers sample a texture.
type FilterMode uint32

// Filter modes.
const (
	// FilterPoint samples the nearest texel. Required for depth extrema:
	// linear filtering would blend extrema across texels.
	FilterPoint FilterMode = iota

	// FilterLinear blends neighboring texels.
	FilterLinear
)

// TextureDesc describes a texture allocation.
type TextureDesc struct {
	// Label is an optional debug label.
	Label string

	// Width and Height are the dimensions of mip level 0 in texels.
	Width  int
	Height int

	// MipLevelCount is the number of mip levels (>= 1).
	MipLevelCount int

	// Format is the texel format.
	Format TextureFormat

	// Usage is a bitmask of TextureUsage flags.
	Usage TextureUsage

	// Filter is the sampling mode consumers should use.
	Filter FilterMode
}

// Validate reports whether the descriptor can be allocated.
func (d *TextureDesc) Validate() error {
	if d == nil {
		return fmt.Errorf("gpucore: nil texture descriptor")
	}
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("gpucore: invalid texture size: %dx%d", d.Width, d.Height)
	}
	if d.MipLevelCount < 1 {
		return fmt.Errorf("gpucore: invalid mip level count: %d", d.MipLevelCount)
	}
	return nil
}

// MipSize returns the dimensions of the given mip level of the texture.
func (d *TextureDesc) MipSize(level int) (width, height int) {
	return MipDim(d.Width, level), MipDim(d.Height, level)
}

// MipDim returns max(1, dim >> level).
func MipDim(dim, level int) int {
	d := dim >> level
	if d < 1 {
		return 1
	}
	return d
}

// TextureBinding binds one mip level of a texture to a kernel slot.
type TextureBinding struct {
	Texture  TextureID
	MipLevel int
}

// Vec2 is a 2-component vector matching a WGSL vec2<f32>.
type Vec2 [2]float32

// DispatchDesc describes a single kernel dispatch.
type DispatchDesc struct {
	// Label is an optional debug label.
	Label string

	// Kernel selects the entry point.
	Kernel KernelID

	// Input is bound to the inTex slot.
	Input TextureBinding

	// Outputs are bound to outTex (blit) or OutTextures_0..n-1 (reduce).
	// Reduce outputs are consecutive mip levels of one texture.
	Outputs []TextureBinding

	// SrcTexelSize is the reciprocal resolution of Input.
	SrcTexelSize Vec2

	// DstTexelSize is the reciprocal resolution of Outputs[0].
	DstTexelSize Vec2

	// Groups is the workgroup count in each dimension.
	Groups [3]uint32
}

// Validate checks the structural constraints of the kernel contract.
func (d *DispatchDesc) Validate() error {
	if d == nil {
		return fmt.Errorf("gpucore: nil dispatch descriptor")
	}
	if d.Input.Texture == InvalidID {
		return fmt.Errorf("gpucore: dispatch %q: no input texture", d.Label)
	}
	n := len(d.Outputs)
	switch d.Kernel {
	case KernelBlit:
		if n != 1 {
			return fmt.Errorf("gpucore: dispatch %q: blit writes exactly one output, got %d", d.Label, n)
		}
	case KernelReduce:
		if n < 1 || n > MaxBatchSize {
			return fmt.Errorf("gpucore: dispatch %q: reduce writes 1..%d outputs, got %d", d.Label, MaxBatchSize, n)
		}
		for i := 1; i < n; i++ {
			if d.Outputs[i].Texture != d.Outputs[0].Texture || d.Outputs[i].MipLevel != d.Outputs[0].MipLevel+i {
				return fmt.Errorf("gpucore: dispatch %q: reduce outputs must be consecutive levels", d.Label)
			}
		}
	default:
		return fmt.Errorf("gpucore: dispatch %q: unknown kernel %d", d.Label, d.Kernel)
	}
	if d.Outputs[0].Texture == InvalidID {
		return fmt.Errorf("gpucore: dispatch %q: no output texture", d.Label)
	}
	if d.Outputs[0].Texture == d.Input.Texture && d.Outputs[0].MipLevel <= d.Input.MipLevel {
		return fmt.Errorf("gpucore: dispatch %q: output level %d overlaps input level %d",
			d.Label, d.Outputs[0].MipLevel, d.Input.MipLevel)
	}
	if d.SrcTexelSize[0] <= 0 || d.SrcTexelSize[1] <= 0 || d.DstTexelSize[0] <= 0 || d.DstTexelSize[1] <= 0 {
		return fmt.Errorf("gpucore: dispatch %q: texel sizes must be positive", d.Label)
	}
	if d.Groups[0] == 0 || d.Groups[1] == 0 || d.Groups[2] == 0 {
		return fmt.Errorf("gpucore: dispatch %q: workgroup count must be greater than zero", d.Label)
	}
	return nil
}
