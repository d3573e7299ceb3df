// Package backend selects a gpucore.GPUAdapter implementation by name.
//
// Backend packages register a factory from their init function, so a
// program links in the backends it imports:
//
//	import (
//	    "github.com/gogpu/hiz/backend"
//	    _ "github.com/gogpu/hiz/backend/native"
//	    _ "github.com/gogpu/hiz/backend/software"
//	)
//
//	adapter, name, err := backend.Default()
//
// # Available Backends
//
//   - "native": Vulkan through gogpu/wgpu HAL
//   - "webgpu": wgpu-native through cogentcore/webgpu
//   - "software": CPU reference (always available)
//
// Default tries them in that order and returns the first that opens.
package backend
