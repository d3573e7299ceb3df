// Package hiz builds hierarchical depth pyramids (Hi-Z) from a camera's
// depth buffer, once per frame, for GPU algorithms that need fast min/max
// depth queries at several resolutions (occlusion culling, screen-space
// tracing).
//
// # Overview
//
// A frame runs four steps in strict order on a single command stream:
//
//  1. Reconcile: size the pyramid from the viewport (see [ComputeDescriptor])
//     and reallocate the texture only when its dimensions changed.
//  2. Base reduction: the blit kernel reduces the depth buffer into mip 0.
//  3. Mip chain: the reduce kernel produces mip k from mip k-1, one level
//     per dispatch or up to [gpucore.MaxBatchSize] levels per dispatch.
//  4. Publish: the pyramid is bound to a named slot of the frame's
//     [Registry] (conventionally "_HizMap").
//
// Each output texel holds the extremum (max by default, see
// [gpucore.ReductionPolicy]) of every source texel it overlaps, so queries
// against the pyramid stay conservative even where the base level does not
// divide the depth buffer evenly.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/hiz"
//	    "github.com/gogpu/hiz/backend/software"
//	    "github.com/gogpu/hiz/gpucore"
//	)
//
//	adapter := software.New()
//	program, err := gpucore.NewProgram(adapter, gpucore.ProgramDesc{Label: "hiz"})
//	if err != nil {
//	    return err
//	}
//	builder, err := hiz.NewBuilder(adapter, program)
//	if err != nil {
//	    return err
//	}
//	graph := hiz.NewFrameGraph(builder)
//	defer graph.Close()
//
//	err = graph.RunFrame(ctx, &hiz.FrameContext{
//	    ViewportWidth:  1920,
//	    ViewportHeight: 1017,
//	    Depth:          depthTexture,
//	})
//
//	if b, ok := graph.Registry().Lookup(hiz.DefaultSlotName); ok {
//	    // sample b.Texture, mips 0..b.Descriptor.MipCount-1
//	}
//
// # Failure Model
//
// Missing compute support is reported by [NewBuilder] before any frame runs.
// Allocation failure aborts the frame: nothing is published, and consumers
// must treat a missing slot as "no occlusion data".
//
// # Logging
//
// The package logs through [log/slog] and is silent by default. See
// [SetLogger].
package hiz
