package hiz

import (
	"fmt"
	"math/bits"

	"github.com/gogpu/hiz/gpucore"
)

// DefaultLabel is the debug label of the pyramid texture.
const DefaultLabel = "HizMap"

// Descriptor is the size of a Hi-Z pyramid, derived from the viewport.
type Descriptor struct {
	// BaseWidth and BaseHeight are the dimensions of mip 0. Both are
	// powers of two.
	BaseWidth  int
	BaseHeight int

	// MipCount is the number of mip levels (>= 1).
	MipCount int
}

// ComputeDescriptor sizes the pyramid for a viewport.
//
// Each dimension is rounded up to the next power of two and halved, floored
// at 1. MipCount is floor(log2) of the larger base dimension, at least 1.
// For example 1920x1017 yields 1024x512 with 10 mips and 3x3 yields 2x2 with
// a single mip.
//
// Both dimensions must be positive; non-positive input is a caller error and
// is treated as 1.
func ComputeDescriptor(viewportWidth, viewportHeight int) Descriptor {
	bw := baseDim(viewportWidth)
	bh := baseDim(viewportHeight)
	mips := max(log2Floor(bw), log2Floor(bh), 1)
	return Descriptor{BaseWidth: bw, BaseHeight: bh, MipCount: mips}
}

func baseDim(viewport int) int {
	return max(1, NextPowerOfTwo(viewport)>>1)
}

// NextPowerOfTwo returns the smallest power of two >= n. Powers of two map
// to themselves; n <= 1 yields 1.
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

func log2Floor(n int) int {
	if n <= 0 {
		return 0
	}
	return bits.Len(uint(n)) - 1
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// MipSize returns the dimensions of a mip level: max(1, base >> level).
func (d Descriptor) MipSize(level int) (width, height int) {
	return gpucore.MipDim(d.BaseWidth, level), gpucore.MipDim(d.BaseHeight, level)
}

// SameSize reports whether two descriptors describe the same texture
// dimensions. MipCount follows from the dimensions.
func (d Descriptor) SameSize(o Descriptor) bool {
	return d.BaseWidth == o.BaseWidth && d.BaseHeight == o.BaseHeight
}

// IsZero reports whether d is the zero descriptor (no pyramid).
func (d Descriptor) IsZero() bool {
	return d == Descriptor{}
}

// TextureDesc returns the allocation descriptor of the pyramid texture:
// R32Float, every mip writable from compute, point filtered.
func (d Descriptor) TextureDesc(label string) gpucore.TextureDesc {
	return gpucore.TextureDesc{
		Label:         label,
		Width:         d.BaseWidth,
		Height:        d.BaseHeight,
		MipLevelCount: d.MipCount,
		Format:        gpucore.TextureFormatR32Float,
		Usage:         gpucore.PyramidUsage,
		Filter:        gpucore.FilterPoint,
	}
}

// String implements fmt.Stringer.
func (d Descriptor) String() string {
	return fmt.Sprintf("%dx%d/%d", d.BaseWidth, d.BaseHeight, d.MipCount)
}
