package hiz

import (
	"errors"
	"sync"
	"testing"

	"github.com/gogpu/hiz/gpucore"
)

func TestRegistry_PublishLookup(t *testing.T) {
	r := NewRegistry()
	r.BeginFrame(7)

	if _, ok := r.Lookup(DefaultSlotName); ok {
		t.Fatal("empty registry returned a binding")
	}
	if err := r.Publish(DefaultSlotName, "hiz", Binding{Texture: 3}); err != nil {
		t.Fatal(err)
	}
	b, ok := r.Lookup(DefaultSlotName)
	if !ok || b.Texture != 3 || b.Publisher != "hiz" || b.Frame != 7 {
		t.Errorf("Lookup = %+v, %v", b, ok)
	}
}

func TestRegistry_SingleWriterPerFrame(t *testing.T) {
	r := NewRegistry()
	r.BeginFrame(1)
	if err := r.Publish("slot", "a", Binding{Texture: 1}); err != nil {
		t.Fatal(err)
	}
	err := r.Publish("slot", "b", Binding{Texture: 2})
	if !errors.Is(err, ErrSlotAlreadyPublished) {
		t.Fatalf("second publish = %v, want ErrSlotAlreadyPublished", err)
	}
	if b, _ := r.Lookup("slot"); b.Texture != 1 {
		t.Error("second publish replaced the first binding")
	}

	r.BeginFrame(2)
	if err := r.Publish("slot", "b", Binding{Texture: 2}); err != nil {
		t.Errorf("publish in new frame: %v", err)
	}
}

func TestRegistry_BeginFrameClears(t *testing.T) {
	r := NewRegistry()
	r.BeginFrame(1)
	_ = r.Publish("x", "p", Binding{Texture: 1})
	_ = r.Publish("y", "p", Binding{Texture: 2})
	if got := r.Names(); len(got) != 2 || got[0] != "x" || got[1] != "y" {
		t.Errorf("Names() = %v", got)
	}

	r.BeginFrame(2)
	if len(r.Names()) != 0 {
		t.Error("BeginFrame did not clear bindings")
	}
	if r.Frame() != 2 {
		t.Errorf("Frame() = %d, want 2", r.Frame())
	}
}

func TestRegistry_InvalidTexture(t *testing.T) {
	r := NewRegistry()
	if err := r.Publish("slot", "p", Binding{}); err == nil {
		t.Error("publishing an invalid texture should fail")
	}
}

func TestRegistry_Revoke(t *testing.T) {
	r := NewRegistry()
	_ = r.Publish("slot", "p", Binding{Texture: 5})
	if r.Revoke("slot", 6) {
		t.Error("Revoke removed a binding for another texture")
	}
	if !r.Revoke("slot", 5) {
		t.Error("Revoke did not remove the binding")
	}
	if _, ok := r.Lookup("slot"); ok {
		t.Error("binding still present after Revoke")
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	r.BeginFrame(1)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Publish("slot", "p", Binding{Texture: gpucore.TextureID(1 + i)}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
			r.Lookup("slot")
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("%d publishers won the slot, want 1", wins)
	}
}
