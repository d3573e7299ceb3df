// Package native implements gpucore.GPUAdapter on the Pure Go gogpu/wgpu
// hardware abstraction layer.
//
// The Hi-Z program is compiled from WGSL to SPIR-V with naga and runs as two
// compute pipelines (blit and reduce) sharing one bind group layout:
//
//	@binding(0) uniform params
//	@binding(1) texture_2d<f32>            input level
//	@binding(2..5) texture_storage_2d<r32float, write>  output levels
//
// Each mip level of a gpucore texture is backed by its own single-level
// device texture. Layout transitions are therefore always whole-texture
// barriers, recorded as a level moves between sampled, storage and copy use.
//
// Submit is asynchronous. Finished submissions are reclaimed on the next
// Submit; ReadTexture and Close wait for all outstanding work.
//
// Usage with a standalone Vulkan device:
//
//	a, err := native.New()
//	if err != nil {
//	    // no GPU, fall back to software
//	}
//	defer a.Close()
//
// Usage with a device shared by a host application:
//
//	a, err := native.NewFromProvider(provider)
package native
