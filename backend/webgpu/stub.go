//go:build !webgpu

package webgpu

import (
	"github.com/gogpu/hiz/backend"
	"github.com/gogpu/hiz/gpucore"
)

// init registers a factory that always fails when the webgpu tag is not
// set, so backend.Open(backend.BackendWebGPU) reports why.
func init() {
	backend.Register(backend.BackendWebGPU, func() (gpucore.GPUAdapter, error) {
		return nil, ErrNotBuilt
	})
}
