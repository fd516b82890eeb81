// core/handlers.go
package core

import (
	"context"
	"sync"
)

// Handler is anything that can answer a dispatched Request. Lua functions,
// inproc Go handlers and WASM modules all satisfy it.
type Handler interface {
	Invoke(ctx context.Context, req Request) (Response, error)
}

// HandlerFunc adapts a plain func to Handler.
type HandlerFunc func(ctx context.Context, req Request) (Response, error)

func (f HandlerFunc) Invoke(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// RouteTable maps exact, case-sensitive paths to handlers. A table is built
// once and then only read; reloads install a new table instead of editing one.
type RouteTable map[string]Handler

// Lookup returns the handler for path, treating nil entries as absent.
func (t RouteTable) Lookup(path string) (Handler, bool) {
	h, ok := t[path]
	if !ok || h == nil {
		return nil, false
	}
	return h, true
}

// Paths lists the registered paths (unordered).
func (t RouteTable) Paths() []string {
	out := make([]string, 0, len(t))
	for p := range t {
		out = append(out, p)
	}
	return out
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Handler{}
)

// Register makes a handler available under a name referenced in manifest.toml
// (handler.type = "inproc").
func Register(name string, h Handler) {
	registryMu.Lock()
	registry[name] = h
	registryMu.Unlock()
}

// Lookup retrieves a registered in-proc handler by name.
func Lookup(name string) (Handler, bool) {
	registryMu.RLock()
	h, ok := registry[name]
	registryMu.RUnlock()
	return h, ok
}
