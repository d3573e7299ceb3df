package hiz

import (
	"context"
	"fmt"

	"github.com/gogpu/hiz/gpucore"
)

// FrameContext is the per-frame input supplied by the host renderer.
// Stages read it and must not modify it.
type FrameContext struct {
	// Index is the frame number. FrameGraph assigns it.
	Index uint64

	// ViewportWidth and ViewportHeight are the viewport size in pixels.
	ViewportWidth  int
	ViewportHeight int

	// Depth is the source depth texture (R32Float or Depth32Float).
	Depth gpucore.TextureID

	// DepthWidth and DepthHeight are the resolution of Depth.
	// Zero means the depth buffer matches the viewport.
	DepthWidth  int
	DepthHeight int

	// Registry receives published textures. FrameGraph fills it in.
	Registry *Registry
}

// Validate checks the host contract for a frame.
func (fc *FrameContext) Validate() error {
	if fc == nil {
		return fmt.Errorf("hiz: nil frame context")
	}
	if fc.ViewportWidth <= 0 || fc.ViewportHeight <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidViewport, fc.ViewportWidth, fc.ViewportHeight)
	}
	if fc.DepthWidth < 0 || fc.DepthHeight < 0 {
		return fmt.Errorf("%w: depth buffer %dx%d", ErrInvalidViewport, fc.DepthWidth, fc.DepthHeight)
	}
	if fc.Depth == gpucore.InvalidID {
		return ErrNoDepthSource
	}
	return nil
}

// DepthSize returns the resolution of the depth texture.
func (fc *FrameContext) DepthSize() (width, height int) {
	width, height = fc.DepthWidth, fc.DepthHeight
	if width == 0 {
		width = fc.ViewportWidth
	}
	if height == 0 {
		height = fc.ViewportHeight
	}
	return width, height
}

// FrameStage is a pipeline stage driven by a FrameGraph.
//
// Per frame the graph calls OnFrameBegin, then Execute if OnFrameBegin
// succeeded, then OnFrameEnd. OnFrameEnd runs for every stage whose
// OnFrameBegin succeeded, even if a later step failed or the frame was
// cancelled.
type FrameStage interface {
	// Name identifies the stage in logs and as registry publisher.
	Name() string

	// OnFrameBegin validates the frame and acquires transient resources.
	OnFrameBegin(fc *FrameContext) error

	// Execute records and submits the stage's GPU work.
	Execute(ctx context.Context, fc *FrameContext) error

	// OnFrameEnd releases transient resources. It must be idempotent.
	OnFrameEnd(fc *FrameContext)
}
