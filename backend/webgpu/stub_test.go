//go:build !webgpu

package webgpu

import (
	"errors"
	"testing"

	"github.com/gogpu/hiz/backend"
)

func TestStubRegistered(t *testing.T) {
	if !backend.IsRegistered(backend.BackendWebGPU) {
		t.Fatal("webgpu backend should be registered")
	}
	if _, err := backend.Open(backend.BackendWebGPU); !errors.Is(err, ErrNotBuilt) {
		t.Errorf("Open = %v, want ErrNotBuilt", err)
	}
}
