// Package software provides a CPU implementation of gpucore.GPUAdapter.
//
// The adapter executes the Hi-Z kernel contract on the host, invocation for
// invocation: each dispatch runs Groups[0] x Groups[1] workgroups of
// TileSize x TileSize invocations, and each invocation does exactly what
// the WGSL kernels do. Workgroup rows are spread over an internal worker
// pool.
//
// It serves two purposes:
//   - a fallback for hosts without a GPU, and
//   - a reference for tests. Every texel write is counted, and writes
//     or reads outside a texture are recorded instead of panicking, so
//     tests can assert that each output texel is written exactly once.
//
// Submit executes the recorded dispatches synchronously, in recording order.
//
// Example:
//
//	a := software.New(software.WithMemoryBudget(64 << 20))
//	defer a.Close()
//
//	depth, _ := a.CreateTexture(&gpucore.TextureDesc{
//	    Width: 640, Height: 480, MipLevelCount: 1,
//	    Format: gpucore.TextureFormatDepth32Float,
//	    Usage:  gpucore.TextureUsageTextureBinding | gpucore.TextureUsageCopyDst,
//	})
//	_ = a.WriteTexture(depth, 0, values)
package software
