package hiz

import (
	"errors"

	"github.com/gogpu/hiz/gpucore"
)

// Errors returned by the builder, registry and frame graph.
var (
	// ErrInvalidViewport is returned for a frame with a non-positive
	// viewport dimension. This is a host contract violation.
	ErrInvalidViewport = errors.New("hiz: viewport dimensions must be positive")

	// ErrNoDepthSource is returned for a frame without a depth texture.
	ErrNoDepthSource = errors.New("hiz: frame has no depth source")

	// ErrComputeUnsupported is returned by NewBuilder when the adapter
	// cannot dispatch compute kernels.
	ErrComputeUnsupported = gpucore.ErrComputeUnsupported

	// ErrInvalidProgram is returned by NewBuilder for a zero program handle.
	ErrInvalidProgram = errors.New("hiz: invalid compute program")

	// ErrAllocationFailed is returned when the pyramid texture cannot be
	// allocated. The frame is aborted and nothing is published.
	ErrAllocationFailed = errors.New("hiz: pyramid allocation failed")

	// ErrSlotAlreadyPublished is returned when a slot is published twice in
	// one frame.
	ErrSlotAlreadyPublished = errors.New("hiz: slot already published this frame")

	// ErrFrameNotBegun is returned by Execute without a matching OnFrameBegin.
	ErrFrameNotBegun = errors.New("hiz: frame not begun")

	// ErrBuilderClosed is returned when using a closed builder.
	ErrBuilderClosed = errors.New("hiz: builder is closed")

	// ErrInvalidOption is returned by NewBuilder for an out-of-range option.
	ErrInvalidOption = errors.New("hiz: invalid option")
)
