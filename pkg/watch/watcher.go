// Package watch reloads the interpreter context whenever the route script
// has been fully rewritten.
package watch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/joeydtaylor/steeze-script/pkg/middleware/metrics"
	"go.uber.org/zap"
)

// Event is one finalized change to the watched file.
type Event struct {
	Path string
	At   time.Time
}

// Source yields change events for one file. Each Events call starts a fresh
// sequence; both channels are closed once ctx is done.
type Source interface {
	Events(ctx context.Context) (<-chan Event, <-chan error, error)
}

// Reloader rebuilds and installs the route table. script.Context implements it.
type Reloader interface {
	Reload(ctx context.Context) error
}

type State int32

const (
	Idle State = iota
	ChangeDetected
	Rebuilding
	Installed
	RebuildFailed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ChangeDetected:
		return "change-detected"
	case Rebuilding:
		return "rebuilding"
	case Installed:
		return "installed"
	case RebuildFailed:
		return "rebuild-failed"
	}
	return "unknown"
}

type Option func(*Watcher)

func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// WithTransitionHook observes every state change; tests use it to follow
// the state machine.
func WithTransitionHook(fn func(from, to State)) Option {
	return func(w *Watcher) { w.onTransition = fn }
}

type Watcher struct {
	src    Source
	target Reloader
	log    *zap.Logger

	state        atomic.Int32
	onTransition func(from, to State)
}

func New(src Source, target Reloader, opts ...Option) *Watcher {
	w := &Watcher{src: src, target: target, log: zap.NewNop()}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *Watcher) State() State { return State(w.state.Load()) }

// Run consumes events until ctx is cancelled or the source ends. Reload
// failures are logged and never stop the loop.
func (w *Watcher) Run(ctx context.Context) error {
	events, errs, err := w.src.Events(ctx)
	if err != nil {
		return err
	}
	w.log.Info("watcher started")
	defer w.log.Info("watcher stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.log.Warn("watch source error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev Event) {
	w.transition(ChangeDetected)
	w.log.Info("change detected, reloading", zap.String("path", ev.Path))

	w.transition(Rebuilding)
	if err := w.target.Reload(ctx); err != nil {
		w.transition(RebuildFailed)
		metrics.ObserveReload(metrics.ReloadFailed)
		w.log.Error("reload failed, keeping previous routes",
			zap.String("path", ev.Path),
			zap.Error(err),
		)
	} else {
		w.transition(Installed)
		metrics.ObserveReload(metrics.ReloadInstalled)
	}
	w.transition(Idle)
}

func (w *Watcher) transition(to State) {
	from := State(w.state.Swap(int32(to)))
	w.log.Debug("watcher state", zap.Stringer("from", from), zap.Stringer("to", to))
	if w.onTransition != nil {
		w.onTransition(from, to)
	}
}
