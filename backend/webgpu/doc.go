// Package webgpu implements gpucore.GPUAdapter on wgpu-native through the
// cogentcore/webgpu bindings.
//
// The implementation requires cgo and the wgpu-native library, so it is
// compiled only with the webgpu build tag:
//
//	go build -tags webgpu ./...
//
// Without the tag the package still registers the backend, but opening it
// fails with ErrNotBuilt and backend.Default moves on to the next backend.
//
// Unlike the native backend, a pyramid is one texture with a view per mip
// level; wgpu-native tracks per-subresource usage itself. Programs are
// created from the specialized WGSL source directly.
package webgpu
