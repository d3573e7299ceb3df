// Package gpucore provides the GPU abstractions shared by the Hi-Z builder
// and its backends.
//
// This package defines the [GPUAdapter] interface, which abstracts over the
// different device implementations, allowing the same pyramid construction
// to run on:
//   - gogpu/wgpu (Pure Go WebGPU via HAL), see backend/native
//   - cogentcore/webgpu (wgpu-native), see backend/webgpu
//   - the host CPU, see backend/software
//
// # Architecture
//
//	               +-----------------+
//	               |       hiz       |
//	               |    (Builder)    |
//	               +--------+--------+
//	                        |
//	                  gpucore.GPUAdapter
//	                        |
//	     +------------------+------------------+
//	     |                  |                  |
//	+----v-----+      +-----v----+      +------v-----+
//	|  native  |      |  webgpu  |      |  software  |
//	| (hal)    |      | (wgpu-   |      | (CPU ref)  |
//	|          |      |  native) |      |            |
//	+----------+      +----------+      +------------+
//
// # Kernel Contract
//
// The compute program exposes two kernels identified by index:
//
//  1. [KernelBlit] reduces the source depth buffer into mip 0. The source is
//     generally larger than mip 0 by a non-integer ratio, so every output
//     texel takes the extremum over its full [Footprint] in the source.
//
//  2. [KernelReduce] reduces mip k-1 into mip k, optionally writing up to
//     [MaxBatchSize] consecutive levels from a single dispatch.
//
// Each dispatch receives an input texture binding, one or more output
// bindings at explicit mip levels, and the source and destination texel
// sizes. Nothing else crosses the boundary. The reduction operator
// ([ReductionPolicy]) is fixed when the program is created.
//
// # Resource Management
//
// GPU resources are managed via opaque IDs ([TextureID], [ProgramID]).
// Adapters are responsible for tracking the mapping between IDs and the
// actual backend resources.
//
// # Usage Example
//
//	adapter := software.New()
//	program, err := gpucore.NewProgram(adapter, gpucore.ProgramDesc{
//	    Label:  "hiz",
//	    Policy: gpucore.PolicyMax,
//	})
//	if err != nil {
//	    return err
//	}
//	defer adapter.DestroyProgram(program.ID)
package gpucore
