package manifest

import (
	"context"
	"fmt"
	"net/http"

	"github.com/joeydtaylor/steeze-script/pkg/core"
	"github.com/joeydtaylor/steeze-script/pkg/wasmhandler"
	"go.uber.org/zap"
)

// NativeRoutes resolves the manifest's [[route]] entries into handlers. The
// result is merged underneath every script load.
func (c *Config) NativeRoutes(ctx context.Context, modules *wasmhandler.ModuleCache, log *zap.Logger) (core.RouteTable, error) {
	if log == nil {
		log = zap.NewNop()
	}
	out := make(core.RouteTable, len(c.Routes))
	for i, r := range c.Routes {
		h, err := buildHandler(ctx, r, modules, log)
		if err != nil {
			return nil, fmt.Errorf("route %d (%s): %w", i, r.Path, err)
		}
		if r.Method != "" {
			h = methodOnly(r.Method, h)
		}
		out[r.Path] = h
		log.Debug("native route",
			zap.String("path", r.Path),
			zap.String("type", string(r.Handler.Type)),
			zap.Strings("tags", r.Tags),
		)
	}
	return out, nil
}

func buildHandler(ctx context.Context, r Route, modules *wasmhandler.ModuleCache, log *zap.Logger) (core.Handler, error) {
	switch r.Handler.Type {
	case HandlerInproc:
		h, ok := core.Lookup(r.Handler.Name)
		if !ok {
			return nil, fmt.Errorf("inproc handler %q not registered", r.Handler.Name)
		}
		return h, nil
	case HandlerWasm:
		if modules == nil {
			return nil, fmt.Errorf("wasm handler %q: no module cache", r.Handler.Module)
		}
		return wasmhandler.New(ctx, modules, r.Handler.Module,
			wasmhandler.WithLogger(log.With(zap.String("route", r.Path))))
	}
	return nil, fmt.Errorf("unknown handler type %q", r.Handler.Type)
}

func methodOnly(method string, next core.Handler) core.Handler {
	return core.HandlerFunc(func(ctx context.Context, req core.Request) (core.Response, error) {
		if req.Method != method {
			return core.Response{
				Code: http.StatusMethodNotAllowed,
				Body: http.StatusText(http.StatusMethodNotAllowed),
			}, nil
		}
		return next.Invoke(ctx, req)
	})
}
