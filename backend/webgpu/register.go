//go:build webgpu

package webgpu

import (
	"github.com/gogpu/hiz/backend"
	"github.com/gogpu/hiz/gpucore"
)

func init() {
	backend.Register(backend.BackendWebGPU, func() (gpucore.GPUAdapter, error) {
		a, err := New()
		if err != nil {
			return nil, err
		}
		return a, nil
	})
}
