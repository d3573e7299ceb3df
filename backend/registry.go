package backend

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/gogpu/hiz/gpucore"
)

// Backend names.
const (
	BackendNative   = "native"
	BackendWebGPU   = "webgpu"
	BackendSoftware = "software"
)

// ErrBackendNotAvailable is returned when no requested backend can be opened.
var ErrBackendNotAvailable = errors.New("backend: not available")

// Factory opens a new adapter. It returns an error when the backend cannot
// run on this machine (no driver, no compute-capable device).
type Factory func() (gpucore.GPUAdapter, error)

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
	// Priority order for Default (first that opens wins).
	backendPriority = []string{BackendNative, BackendWebGPU, BackendSoftware}
)

// Register registers a backend factory under name, replacing any previous
// factory with the same name. Typically called from init().
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = factory
}

// Unregister removes a backend. Useful for tests.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// Available returns the registered backend names in sorted order.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered reports whether a backend is registered under name.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := factories[name]
	return ok
}

// Open opens the named backend.
func Open(name string) (gpucore.GPUAdapter, error) {
	registryMu.RLock()
	factory, ok := factories[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q is not registered", ErrBackendNotAvailable, name)
	}
	a, err := factory()
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", name, err)
	}
	return a, nil
}

// Default opens the best available backend by priority, then any other
// registered backend. It returns the adapter and the backend name.
func Default() (gpucore.GPUAdapter, string, error) {
	registryMu.RLock()
	order := make([]string, 0, len(factories))
	for _, name := range backendPriority {
		if _, ok := factories[name]; ok {
			order = append(order, name)
		}
	}
	rest := make([]string, 0, len(factories))
	for name := range factories {
		if !slices.Contains(backendPriority, name) {
			rest = append(rest, name)
		}
	}
	registryMu.RUnlock()
	sort.Strings(rest)

	var errs []error
	for _, name := range append(order, rest...) {
		a, err := Open(name)
		if err == nil {
			return a, name, nil
		}
		errs = append(errs, err)
	}
	return nil, "", errors.Join(append([]error{ErrBackendNotAvailable}, errs...)...)
}

// MustDefault returns the default backend or panics.
func MustDefault() gpucore.GPUAdapter {
	a, _, err := Default()
	if err != nil {
		panic(err)
	}
	return a
}
