package software

import (
	"github.com/gogpu/hiz/backend"
	"github.com/gogpu/hiz/gpucore"
)

func init() {
	backend.Register(backend.BackendSoftware, func() (gpucore.GPUAdapter, error) {
		return New(), nil
	})
}
