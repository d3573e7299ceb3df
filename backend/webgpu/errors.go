package webgpu

import "errors"

// Package errors for the webgpu backend.
var (
	// ErrNotBuilt is returned when the binary was built without the webgpu tag.
	ErrNotBuilt = errors.New("webgpu: backend not built (use -tags webgpu)")

	// ErrNoGPU is returned when no GPU adapter is available.
	ErrNoGPU = errors.New("webgpu: no GPU adapter available")

	// ErrMapFailed is returned when a readback buffer cannot be mapped.
	ErrMapFailed = errors.New("webgpu: buffer map failed")

	// ErrAdapterClosed is returned by operations on a closed adapter.
	ErrAdapterClosed = errors.New("webgpu: adapter closed")
)
