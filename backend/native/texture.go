package native

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/hiz/gpucore"
	"github.com/gogpu/wgpu/hal"
)

// copyPitchAlignment is the BytesPerRow alignment required by
// texture-to-buffer copies.
const copyPitchAlignment = 256

// texelBytes is the size of an R32Float texel.
const texelBytes = 4

// levelTexture is the device texture backing one mip level.
type levelTexture struct {
	tex    hal.Texture
	view   hal.TextureView
	width  uint32
	height uint32

	// usage is the last usage recorded for the level. Zero means the
	// contents are undefined.
	usage gputypes.TextureUsage
}

type texture struct {
	desc   gpucore.TextureDesc
	levels []*levelTexture
}

func (t *texture) level(mip int) (*levelTexture, error) {
	if mip < 0 || mip >= len(t.levels) {
		return nil, fmt.Errorf("native: mip level %d out of range [0,%d)", mip, len(t.levels))
	}
	return t.levels[mip], nil
}

// transition moves a level to want and returns the barrier to record.
// It reports false when the level is already in the wanted usage.
func (l *levelTexture) transition(want gputypes.TextureUsage) (hal.TextureBarrier, bool) {
	if l.usage == want {
		return hal.TextureBarrier{}, false
	}
	b := hal.TextureBarrier{
		Texture: l.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: l.usage,
			NewUsage: want,
		},
	}
	l.usage = want
	return b, true
}

// convertFormat maps a gpucore format to the stored device format.
// Depth sources are uploaded by the host, so they are stored as R32Float
// and read through texture_2d<f32> like the pyramid itself.
func convertFormat(f gpucore.TextureFormat) (gputypes.TextureFormat, error) {
	switch f {
	case gpucore.TextureFormatR32Float, gpucore.TextureFormatDepth32Float:
		return gputypes.TextureFormatR32Float, nil
	default:
		return gputypes.TextureFormatUndefined, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
}

// convertUsage converts gpucore.TextureUsage to gputypes.TextureUsage.
func convertUsage(usage gpucore.TextureUsage) gputypes.TextureUsage {
	var result gputypes.TextureUsage

	if usage&gpucore.TextureUsageCopySrc != 0 {
		result |= gputypes.TextureUsageCopySrc
	}
	if usage&gpucore.TextureUsageCopyDst != 0 {
		result |= gputypes.TextureUsageCopyDst
	}
	if usage&gpucore.TextureUsageTextureBinding != 0 {
		result |= gputypes.TextureUsageTextureBinding
	}
	if usage&gpucore.TextureUsageStorageBinding != 0 {
		result |= gputypes.TextureUsageStorageBinding
	}

	return result
}

// alignedRowPitch returns the padded bytes per row for a copy of width texels.
func alignedRowPitch(width uint32) uint32 {
	return (width*texelBytes + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
}

// packTexels encodes float32 texels as tightly packed little-endian bytes.
func packTexels(data []float32) []byte {
	b := make([]byte, len(data)*texelBytes)
	for i, v := range data {
		binary.LittleEndian.PutUint32(b[i*texelBytes:], math.Float32bits(v))
	}
	return b
}

// unpackRows decodes a row-padded readback into width*height texels.
func unpackRows(raw []byte, width, height, pitch uint32) ([]float32, error) {
	if uint64(len(raw)) < uint64(pitch)*uint64(height) || pitch < width*texelBytes {
		return nil, fmt.Errorf("native: readback of %d bytes too small for %dx%d at pitch %d", len(raw), width, height, pitch)
	}
	out := make([]float32, int(width)*int(height))
	for y := range height {
		row := raw[y*pitch:]
		for x := range width {
			out[y*width+x] = math.Float32frombits(binary.LittleEndian.Uint32(row[x*texelBytes:]))
		}
	}
	return out, nil
}
