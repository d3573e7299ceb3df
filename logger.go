package hiz

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"weak"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

// liveBuilders tracks open builders so SetLogger reaches their adapters.
// Entries are weak: a builder dropped without Close is still collected,
// and its entry is pruned on the next walk.
var (
	liveMu       sync.Mutex
	liveBuilders = make(map[weak.Pointer[Builder]]struct{})
)

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for hiz and the adapters of all open
// builders. By default, hiz produces no log output.
//
// SetLogger is safe for concurrent use. Pass nil to restore the default
// silent behavior.
//
// Log levels used by hiz:
//   - [slog.LevelDebug]: per-frame dispatch detail
//   - [slog.LevelInfo]: pyramid (re)allocation, adapter selection
//   - [slog.LevelWarn]: a pyramid released while still published
//   - [slog.LevelError]: pyramid allocation failure
//
// Example:
//
//	hiz.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	for _, b := range openBuilders() {
		if b.opts.logger == nil {
			propagateLogger(b.adapter, l)
		}
	}
}

// Logger returns the current logger used by hiz.
// Backend packages call this to share the same configuration.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by adapters that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger passes the logger to an adapter if it implements
// loggerSetter.
func propagateLogger(a any, l *slog.Logger) {
	if ls, ok := a.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}

func trackBuilder(b *Builder) {
	liveMu.Lock()
	liveBuilders[weak.Make(b)] = struct{}{}
	liveMu.Unlock()
}

func untrackBuilder(b *Builder) {
	liveMu.Lock()
	delete(liveBuilders, weak.Make(b))
	liveMu.Unlock()
}

// openBuilders returns the tracked builders that are still reachable and
// drops entries of collected ones.
func openBuilders() []*Builder {
	liveMu.Lock()
	defer liveMu.Unlock()

	builders := make([]*Builder, 0, len(liveBuilders))
	for wp := range liveBuilders {
		if b := wp.Value(); b != nil {
			builders = append(builders, b)
		} else {
			delete(liveBuilders, wp)
		}
	}
	return builders
}
