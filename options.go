package hiz

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/hiz/gpucore"
)

// DefaultSlotName is the registry slot the pyramid is published under.
const DefaultSlotName = "_HizMap"

// BuilderOption configures a Builder during creation.
//
// Example:
//
//	b, err := hiz.NewBuilder(adapter, program,
//	    hiz.WithBatchSize(4),
//	    hiz.WithSlotName("_HizMapLeft"),
//	)
type BuilderOption func(*builderOptions)

// builderOptions holds optional configuration for Builder creation.
type builderOptions struct {
	batchSize int
	slotName  string
	label     string
	logger    *slog.Logger
}

// defaultBuilderOptions returns the default builder options.
func defaultBuilderOptions() builderOptions {
	return builderOptions{
		batchSize: 1,
		slotName:  DefaultSlotName,
		label:     DefaultLabel,
	}
}

func (o *builderOptions) validate() error {
	if o.batchSize < 1 || o.batchSize > gpucore.MaxBatchSize {
		return fmt.Errorf("%w: batch size %d not in 1..%d", ErrInvalidOption, o.batchSize, gpucore.MaxBatchSize)
	}
	if o.slotName == "" {
		return fmt.Errorf("%w: empty slot name", ErrInvalidOption)
	}
	return nil
}

// WithBatchSize sets how many mip levels one reduce dispatch writes
// (1..gpucore.MaxBatchSize). The result is identical for every batch size;
// larger batches issue fewer dispatches.
func WithBatchSize(n int) BuilderOption {
	return func(o *builderOptions) {
		o.batchSize = n
	}
}

// WithSlotName sets the registry slot the pyramid is published under.
// Use distinct slots when one frame graph builds several pyramids.
func WithSlotName(name string) BuilderOption {
	return func(o *builderOptions) {
		o.slotName = name
	}
}

// WithLabel sets the debug label of the pyramid texture and of the
// builder's command encoders.
func WithLabel(label string) BuilderOption {
	return func(o *builderOptions) {
		if label != "" {
			o.label = label
		}
	}
}

// WithLogger sets a builder-specific logger. By default the builder uses
// the package logger (see SetLogger).
func WithLogger(l *slog.Logger) BuilderOption {
	return func(o *builderOptions) {
		o.logger = l
	}
}
