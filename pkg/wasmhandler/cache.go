// Package wasmhandler runs WASI modules as route handlers. A module reads the
// JSON encoded request on stdin and writes {"code": ..., "body": ...} to
// stdout.
package wasmhandler

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/joeydtaylor/steeze-script/pkg/core"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// ModuleCache compiles each module file once and shares one wazero runtime
// between all handlers.
type ModuleCache struct {
	mu    sync.RWMutex
	cache map[string]wazero.CompiledModule
	rt    wazero.Runtime
}

func NewModuleCache(ctx context.Context) *ModuleCache {
	rt := wazero.NewRuntime(ctx)
	wasi_snapshot_preview1.MustInstantiate(ctx, rt)

	return &ModuleCache{
		cache: make(map[string]wazero.CompiledModule),
		rt:    rt,
	}
}

// Compiled returns the cached module for path, compiling it on first use.
// Read and compile failures come back as *core.LoadError.
func (mc *ModuleCache) Compiled(ctx context.Context, path string) (wazero.CompiledModule, error) {
	mc.mu.RLock()
	cm, found := mc.cache[path]
	mc.mu.RUnlock()
	if found {
		return cm, nil
	}

	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, &core.LoadError{Source: path, Err: err}
	}
	cm, err = mc.rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, &core.LoadError{Source: path, Err: fmt.Errorf("compile: %w", err)}
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	if prev, ok := mc.cache[path]; ok {
		_ = cm.Close(ctx)
		return prev, nil
	}
	mc.cache[path] = cm
	return cm, nil
}

// Len reports how many modules are compiled.
func (mc *ModuleCache) Len() int {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return len(mc.cache)
}

// Close releases every compiled module and the runtime.
func (mc *ModuleCache) Close(ctx context.Context) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for p, cm := range mc.cache {
		_ = cm.Close(ctx)
		delete(mc.cache, p)
	}
	return mc.rt.Close(ctx)
}
