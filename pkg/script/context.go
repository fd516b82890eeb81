// Package script owns the single interpreter environment and the route table
// it produced. All access goes through Context.WithExclusiveAccess.
package script

import (
	"context"
	"sync"

	"github.com/joeydtaylor/steeze-script/pkg/core"
	"go.uber.org/zap"
)

// Snapshot is one fully built environment: the route table plus whatever
// engine state its handlers are bound to.
type Snapshot struct {
	Routes core.RouteTable
	close  func()
}

// NewSnapshot wraps a route table; closeFn releases engine state and may be nil.
func NewSnapshot(routes core.RouteTable, closeFn func()) *Snapshot {
	return &Snapshot{Routes: routes, close: closeFn}
}

func (s *Snapshot) Close() {
	if s != nil && s.close != nil {
		s.close()
	}
}

// Loader builds a fresh Snapshot from the configuration source.
// Failures must be *core.LoadError.
type Loader interface {
	Load(ctx context.Context) (*Snapshot, error)
	Source() string
}

// InstallHook is called, under the lock, every time a snapshot is installed.
type InstallHook func(routes int, generation uint64)

type Option func(*Context)

func WithLogger(l *zap.Logger) Option {
	return func(c *Context) {
		if l != nil {
			c.log = l
		}
	}
}

func WithInstallHook(h InstallHook) Option {
	return func(c *Context) { c.onInstall = h }
}

// Context is the process-wide interpreter context. One mutex guards it:
// a dispatch and a reload install never overlap, and neither do two dispatches.
type Context struct {
	mu         sync.Mutex
	loader     Loader
	cur        *Snapshot
	generation uint64

	log       *zap.Logger
	onInstall InstallHook
}

// Open performs the startup load. Unlike Reload, a failure here leaves no
// usable context and is returned to the caller.
func Open(ctx context.Context, loader Loader, opts ...Option) (*Context, error) {
	c := &Context{loader: loader, log: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	snap, err := loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	_ = c.WithExclusiveAccess(func(s *Session) error {
		s.install(snap)
		return nil
	})
	c.log.Info("routes loaded",
		zap.String("source", loader.Source()),
		zap.Int("routes", len(snap.Routes)),
	)
	return c, nil
}

// Session is the handle passed to WithExclusiveAccess callbacks. It stops
// working once the callback returns.
type Session struct {
	c *Context
}

// CurrentRouteTable returns the installed table, or nil when the session has
// ended or nothing is installed.
func (s *Session) CurrentRouteTable() core.RouteTable {
	if s.c == nil || s.c.cur == nil {
		return nil
	}
	return s.c.cur.Routes
}

// Generation counts installs; the startup load is generation 1.
func (s *Session) Generation() uint64 {
	if s.c == nil {
		return 0
	}
	return s.c.generation
}

func (s *Session) install(next *Snapshot) *Snapshot {
	prev := s.c.cur
	s.c.cur = next
	s.c.generation++
	if s.c.onInstall != nil {
		s.c.onInstall(len(next.Routes), s.c.generation)
	}
	return prev
}

// WithExclusiveAccess runs fn while holding the context lock. The lock is
// released on every path out of fn, panics included.
func (c *Context) WithExclusiveAccess(fn func(*Session) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Session{c: c}
	defer func() { s.c = nil }()
	return fn(s)
}

// Reload builds a candidate snapshot without holding the lock, then swaps it
// in. On error the installed table is left exactly as it was.
func (c *Context) Reload(ctx context.Context) error {
	next, err := c.loader.Load(ctx)
	if err != nil {
		return err
	}

	var prev *Snapshot
	var gen uint64
	_ = c.WithExclusiveAccess(func(s *Session) error {
		prev = s.install(next)
		gen = s.Generation()
		return nil
	})
	// Nothing can reach prev any more: every handler call happens under the lock.
	prev.Close()

	c.log.Info("routes reloaded",
		zap.String("source", c.loader.Source()),
		zap.Int("routes", len(next.Routes)),
		zap.Uint64("generation", gen),
	)
	return nil
}

// Close releases the installed snapshot. Later dispatches see an empty table.
func (c *Context) Close() error {
	return c.WithExclusiveAccess(func(s *Session) error {
		s.c.cur.Close()
		s.c.cur = nil
		return nil
	})
}
