package native

import "errors"

// Package errors for the native backend.
var (
	// ErrNoGPU is returned when no GPU adapter is available.
	ErrNoGPU = errors.New("native: no GPU adapter available")

	// ErrNilHALDevice is returned when a provider exposes no HAL device.
	ErrNilHALDevice = errors.New("native: HAL device is nil")

	// ErrAdapterClosed is returned by operations on a closed adapter.
	ErrAdapterClosed = errors.New("native: adapter closed")

	// ErrGPUTimeout is returned when submitted work does not finish in time.
	ErrGPUTimeout = errors.New("native: timed out waiting for GPU")

	// ErrUnsupportedFormat is returned for texture formats the backend cannot store.
	ErrUnsupportedFormat = errors.New("native: unsupported texture format")
)
