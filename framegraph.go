package hiz

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// FrameGraph runs an ordered list of stages once per frame and owns the
// registry their outputs are published to.
//
// Frames are single-buffered: RunFrame retires one frame before the next
// may begin.
type FrameGraph struct {
	mu       sync.Mutex
	registry *Registry
	stages   []FrameStage
	next     uint64
	closed   bool
}

// NewFrameGraph creates a frame graph running stages in the given order.
func NewFrameGraph(stages ...FrameStage) *FrameGraph {
	return &FrameGraph{
		registry: NewRegistry(),
		stages:   append([]FrameStage(nil), stages...),
	}
}

// Add appends a stage.
func (g *FrameGraph) Add(stage FrameStage) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stages = append(g.stages, stage)
}

// Registry returns the registry stages publish to.
func (g *FrameGraph) Registry() *Registry {
	return g.registry
}

// Frames returns the number of frames started so far.
func (g *FrameGraph) Frames() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.next
}

// RunFrame runs one frame. It assigns fc.Index and fc.Registry, clears the
// registry, then runs each stage in order. It returns the first error;
// stages after a failed stage do not run. OnFrameEnd runs in reverse order
// for every stage that began.
func (g *FrameGraph) RunFrame(ctx context.Context, fc *FrameContext) error {
	if fc == nil {
		return fmt.Errorf("hiz: nil frame context")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return errors.New("hiz: frame graph is closed")
	}

	fc.Index = g.next
	fc.Registry = g.registry
	g.next++
	g.registry.BeginFrame(fc.Index)

	begun := make([]FrameStage, 0, len(g.stages))
	defer func() {
		for i := len(begun) - 1; i >= 0; i-- {
			begun[i].OnFrameEnd(fc)
		}
	}()

	for _, s := range g.stages {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("hiz: frame %d aborted: %w", fc.Index, err)
		}
		if err := s.OnFrameBegin(fc); err != nil {
			return fmt.Errorf("hiz: stage %s: begin frame %d: %w", s.Name(), fc.Index, err)
		}
		begun = append(begun, s)
		if err := s.Execute(ctx, fc); err != nil {
			return fmt.Errorf("hiz: stage %s: frame %d: %w", s.Name(), fc.Index, err)
		}
	}
	return nil
}

// Close closes every stage implementing io.Closer, in reverse order.
// Close is safe to call multiple times.
func (g *FrameGraph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true

	var errs []error
	for i := len(g.stages) - 1; i >= 0; i-- {
		if c, ok := g.stages[i].(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("hiz: close stage %s: %w", g.stages[i].Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
