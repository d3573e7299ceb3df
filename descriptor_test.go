package hiz

import (
	"testing"

	"github.com/gogpu/hiz/gpucore"
)

func TestComputeDescriptor(t *testing.T) {
	tests := []struct {
		w, h int
		want Descriptor
	}{
		{1920, 1017, Descriptor{1024, 512, 10}},
		{3, 3, Descriptor{2, 2, 1}},
		{1, 1, Descriptor{1, 1, 1}},
		{2, 2, Descriptor{1, 1, 1}},
		{4, 4, Descriptor{2, 2, 1}},
		{5, 5, Descriptor{4, 4, 2}},
		{1024, 1024, Descriptor{512, 512, 9}},
		{1025, 1, Descriptor{1024, 1, 10}},
		{1280, 720, Descriptor{1024, 512, 10}},
		{3840, 2160, Descriptor{2048, 2048, 11}},
	}
	for _, tt := range tests {
		if got := ComputeDescriptor(tt.w, tt.h); got != tt.want {
			t.Errorf("ComputeDescriptor(%d, %d) = %v, want %v", tt.w, tt.h, got, tt.want)
		}
	}
}

func TestComputeDescriptor_Properties(t *testing.T) {
	for w := 1; w <= 300; w++ {
		for _, h := range []int{1, 2, 3, 7, 64, 65, 255, 1017} {
			d := ComputeDescriptor(w, h)
			if !IsPowerOfTwo(d.BaseWidth) || !IsPowerOfTwo(d.BaseHeight) {
				t.Fatalf("(%d,%d): base %dx%d not powers of two", w, h, d.BaseWidth, d.BaseHeight)
			}
			bound := NextPowerOfTwo(max(w, h))
			if d.BaseWidth > bound || d.BaseHeight > bound {
				t.Fatalf("(%d,%d): base %dx%d exceeds %d", w, h, d.BaseWidth, d.BaseHeight, bound)
			}
			if d.MipCount < 1 {
				t.Fatalf("(%d,%d): MipCount %d", w, h, d.MipCount)
			}
			if single := max(d.BaseWidth, d.BaseHeight) <= 2; single != (d.MipCount == 1) {
				t.Fatalf("(%d,%d): base %v has MipCount %d", w, h, d, d.MipCount)
			}
		}
	}
}

func TestNextPowerOfTwo(t *testing.T) {
	tests := map[int]int{-3: 1, 0: 1, 1: 1, 2: 2, 3: 4, 4: 4, 5: 8, 1017: 1024, 1024: 1024, 1920: 2048}
	for in, want := range tests {
		if got := NextPowerOfTwo(in); got != want {
			t.Errorf("NextPowerOfTwo(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestDescriptor_MipSize(t *testing.T) {
	d := ComputeDescriptor(1920, 1017)
	tests := []struct{ level, w, h int }{
		{0, 1024, 512},
		{1, 512, 256},
		{8, 4, 2},
		{9, 2, 1},
	}
	for _, tt := range tests {
		w, h := d.MipSize(tt.level)
		if w != tt.w || h != tt.h {
			t.Errorf("MipSize(%d) = %dx%d, want %dx%d", tt.level, w, h, tt.w, tt.h)
		}
	}
}

func TestDescriptor_TextureDesc(t *testing.T) {
	td := ComputeDescriptor(640, 480).TextureDesc(DefaultLabel)
	if td.Format != gpucore.TextureFormatR32Float {
		t.Errorf("Format = %v, want R32Float", td.Format)
	}
	if td.Usage&gpucore.TextureUsageStorageBinding == 0 {
		t.Error("pyramid must be writable from compute")
	}
	if td.Filter != gpucore.FilterPoint {
		t.Error("pyramid must be point filtered")
	}
	if td.Width != 512 || td.Height != 256 || td.MipLevelCount != 9 {
		t.Errorf("TextureDesc = %+v", td)
	}
	if err := td.Validate(); err != nil {
		t.Error(err)
	}
}

func TestDescriptor_SameSize(t *testing.T) {
	a := ComputeDescriptor(1920, 1017)
	b := ComputeDescriptor(1800, 1000)
	if !a.SameSize(b) {
		t.Errorf("%v and %v round to the same pyramid", a, b)
	}
	if a.SameSize(ComputeDescriptor(800, 600)) {
		t.Error("different pyramids reported as same size")
	}
	if !(Descriptor{}).IsZero() || a.IsZero() {
		t.Error("IsZero")
	}
}
