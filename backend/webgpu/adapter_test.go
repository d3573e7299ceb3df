//go:build webgpu

package webgpu

import (
	"context"
	"math/rand"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gogpu/hiz"
	"github.com/gogpu/hiz/backend/software"
	"github.com/gogpu/hiz/gpucore"
)

func openOrSkip(t *testing.T) *Adapter {
	t.Helper()
	a, err := New()
	if err != nil {
		t.Skipf("no GPU available: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

// buildPyramid runs one frame on adapter and reads back every level.
func buildPyramid(t *testing.T, adapter gpucore.GPUAdapter, w, h int, depth []float32, batch int) [][]float32 {
	t.Helper()
	prog, err := gpucore.NewProgram(adapter, gpucore.ProgramDesc{Label: "hiz"})
	if err != nil {
		t.Fatal(err)
	}
	src, err := adapter.CreateTexture(&gpucore.TextureDesc{
		Label: "depth", Width: w, Height: h, MipLevelCount: 1,
		Format: gpucore.TextureFormatDepth32Float,
		Usage:  gpucore.TextureUsageTextureBinding | gpucore.TextureUsageCopyDst,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer adapter.DestroyTexture(src)
	if err := adapter.WriteTexture(src, 0, depth); err != nil {
		t.Fatal(err)
	}

	b, err := hiz.NewBuilder(adapter, prog, hiz.WithBatchSize(batch))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	g := hiz.NewFrameGraph(b)
	fc := &hiz.FrameContext{ViewportWidth: w, ViewportHeight: h, Depth: src}
	if err := g.RunFrame(context.Background(), fc); err != nil {
		t.Fatal(err)
	}

	tex, desc := b.Resource()
	levels := make([][]float32, desc.MipCount)
	for mip := range levels {
		if levels[mip], err = adapter.ReadTexture(tex, mip); err != nil {
			t.Fatalf("ReadTexture(mip %d): %v", mip, err)
		}
	}
	return levels
}

func TestWebGPUMatchesSoftware(t *testing.T) {
	a := openOrSkip(t)
	sw := software.New()
	defer sw.Close()

	const w, h = 200, 120
	rng := rand.New(rand.NewSource(7))
	depth := make([]float32, w*h)
	for i := range depth {
		depth[i] = rng.Float32()
	}

	for _, batch := range []int{1, 4} {
		want := buildPyramid(t, sw, w, h, depth, batch)
		got := buildPyramid(t, a, w, h, depth, batch)
		if len(got) != len(want) {
			t.Fatalf("batch %d: %d levels, want %d", batch, len(got), len(want))
		}
		for mip := range want {
			for i := range want[mip] {
				if got[mip][i] != want[mip][i] {
					t.Fatalf("batch %d mip %d texel %d = %v, want %v", batch, mip, i, got[mip][i], want[mip][i])
				}
			}
		}
	}
}

func TestConvertUsage(t *testing.T) {
	got := convertUsage(gpucore.PyramidUsage)
	want := wgpu.TextureUsageCopySrc | wgpu.TextureUsageCopyDst |
		wgpu.TextureUsageTextureBinding | wgpu.TextureUsageStorageBinding
	if got != want {
		t.Errorf("convertUsage(PyramidUsage) = %v, want %v", got, want)
	}
}

func TestConvertFormat(t *testing.T) {
	if f, err := convertFormat(gpucore.TextureFormatDepth32Float); err != nil || f != wgpu.TextureFormatR32Float {
		t.Errorf("convertFormat(Depth32Float) = %v, %v", f, err)
	}
	if _, err := convertFormat(gpucore.TextureFormat(99)); err == nil {
		t.Error("unknown format should fail")
	}
}

func TestBindGroupLayoutEntries(t *testing.T) {
	entries := bindGroupLayoutEntries()
	if len(entries) != gpucore.BindingsPerPass {
		t.Fatalf("entries = %d, want %d", len(entries), gpucore.BindingsPerPass)
	}
	for i := gpucore.BindingOutput0; i < gpucore.BindingsPerPass; i++ {
		if entries[i].StorageTexture.Format != wgpu.TextureFormatR32Float {
			t.Errorf("output binding %d is not r32float storage", i)
		}
	}
}
