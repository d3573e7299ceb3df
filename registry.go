package hiz

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gogpu/hiz/gpucore"
)

// Binding is a texture published to a named slot for downstream passes.
type Binding struct {
	// Texture is the published texture. Consumers bind it read-only.
	Texture gpucore.TextureID

	// Descriptor describes the mip chain of Texture.
	Descriptor Descriptor

	// Filter is the sampling mode consumers must use.
	Filter gpucore.FilterMode

	// Publisher names the stage that published the binding.
	Publisher string

	// Frame is the frame index the binding was published in.
	Frame uint64
}

// Registry holds the textures published during the current frame, keyed by
// slot name. Each slot has a single writer per frame.
//
// A registry is scoped to a FrameGraph. BeginFrame clears every slot, so a
// stage that fails leaves its slot empty rather than stale. Consumers must
// treat a missing slot as "no data" (for Hi-Z: skip the occlusion test and
// assume visible).
//
// Registry is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	frame uint64
	slots map[string]Binding
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{slots: make(map[string]Binding)}
}

// BeginFrame starts a new frame and clears all bindings.
func (r *Registry) BeginFrame(index uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frame = index
	clear(r.slots)
}

// Frame returns the current frame index.
func (r *Registry) Frame() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frame
}

// Publish binds b to a slot for the rest of the current frame.
// Returns ErrSlotAlreadyPublished if the slot was already published this
// frame.
func (r *Registry) Publish(name, publisher string, b Binding) error {
	if b.Texture == gpucore.InvalidID {
		return fmt.Errorf("hiz: publish %q: invalid texture", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.slots[name]; ok {
		return fmt.Errorf("%w: %q by %q", ErrSlotAlreadyPublished, name, prev.Publisher)
	}
	b.Publisher = publisher
	b.Frame = r.frame
	r.slots[name] = b
	return nil
}

// Lookup returns the binding of a slot in the current frame.
func (r *Registry) Lookup(name string) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.slots[name]
	return b, ok
}

// Revoke removes a slot if it still refers to tex. It reports whether a
// binding was removed. Publishers call it before releasing a texture.
func (r *Registry) Revoke(name string, tex gpucore.TextureID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.slots[name]; ok && b.Texture == tex {
		delete(r.slots, name)
		return true
	}
	return false
}

// Names returns the published slot names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.slots))
	for name := range r.slots {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
