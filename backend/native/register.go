//go:build !nogpu

package native

import (
	"github.com/gogpu/hiz/backend"
	"github.com/gogpu/hiz/gpucore"
)

func init() {
	backend.Register(backend.BackendNative, func() (gpucore.GPUAdapter, error) {
		a, err := New()
		if err != nil {
			return nil, err
		}
		return a, nil
	})
}
