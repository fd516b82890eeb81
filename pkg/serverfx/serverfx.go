// Package serverfx assembles the HTTP server, interpreter context and
// reload watcher into one fx application.
package serverfx

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/joeydtaylor/steeze-script/pkg/dispatch"
	"github.com/joeydtaylor/steeze-script/pkg/manifest"
	"github.com/joeydtaylor/steeze-script/pkg/middleware/logger"
	"github.com/joeydtaylor/steeze-script/pkg/middleware/metrics"
	"github.com/joeydtaylor/steeze-script/pkg/script"
	"github.com/joeydtaylor/steeze-script/pkg/transport/httpx"
	"github.com/joeydtaylor/steeze-script/pkg/wasmhandler"
	"github.com/joeydtaylor/steeze-script/pkg/watch"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ---- Tracing ----

func provideTracerProvider(lc fx.Lifecycle, cfg manifest.Config) (trace.TracerProvider, error) {
	if !cfg.Tracing.Stdout {
		return noop.NewTracerProvider(), nil
	}
	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
	lc.Append(fx.StopHook(tp.Shutdown))
	return tp, nil
}

// ---- Interpreter ----

func provideModuleCache(lc fx.Lifecycle) *wasmhandler.ModuleCache {
	mc := wasmhandler.NewModuleCache(context.Background())
	lc.Append(fx.StopHook(mc.Close))
	return mc
}

// provideInterpreter performs the startup load; an error here aborts fx start.
func provideInterpreter(lc fx.Lifecycle, cfg manifest.Config, modules *wasmhandler.ModuleCache, log *zap.Logger) (*script.Context, error) {
	ctx := context.Background()
	native, err := cfg.NativeRoutes(ctx, modules, log)
	if err != nil {
		return nil, err
	}
	loader := &script.LuaLoader{Path: cfg.Server.Script, Native: native, Log: log}
	c, err := script.Open(ctx, loader,
		script.WithLogger(log),
		script.WithInstallHook(metrics.SetRouteTable),
	)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(c.Close))
	return c, nil
}

func provideDispatcher(cfg manifest.Config, c *script.Context, tp trace.TracerProvider, log *zap.Logger) *dispatch.Dispatcher {
	return dispatch.New(c,
		dispatch.WithLogger(log),
		dispatch.WithTracerProvider(tp),
		dispatch.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
	)
}

// provideWatcher returns nil when watching is switched off.
func provideWatcher(cfg manifest.Config, c *script.Context, log *zap.Logger) *watch.Watcher {
	var src watch.Source
	switch cfg.Watch.Mode {
	case manifest.WatchOff:
		return nil
	case manifest.WatchPoll:
		src = watch.NewPoll(cfg.Server.Script, cfg.Watch.PollInterval())
	default:
		src = watch.NewFSNotify(cfg.Server.Script, cfg.Watch.Debounce())
	}
	return watch.New(src, c, watch.WithLogger(log.With(zap.String("component", "watcher"))))
}

// ---- Router ----

type routerDeps struct {
	fx.In

	Cfg   manifest.Config
	LogMW *logger.Middleware

	Metrics http.Handler `name:"metrics"`

	Dispatcher *dispatch.Dispatcher
	R          httpx.Router
	Tracer     trace.TracerProvider
}

func provideRouter(d routerDeps) http.Handler {
	return BuildRouter(d.Cfg, BuildDeps{
		LogMW:      d.LogMW,
		Metrics:    d.Metrics,
		Dispatcher: d.Dispatcher,
		Router:     d.R,
		Tracer:     d.Tracer,
	})
}

// ---- Server lifecycle ----

type serverDeps struct {
	fx.In
	Opts     Options
	Cfg      manifest.Config
	Logger   *zap.Logger
	App      http.Handler `name:"app"`
	Watcher  *watch.Watcher
	Shutdown fx.Shutdowner
}

func registerHooks(lc fx.Lifecycle, d serverDeps) {
	srv := &http.Server{
		Addr:              d.Cfg.Server.Listen,
		Handler:           d.App,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	runCtx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(runCtx)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			// Bind synchronously so a busy port fails startup.
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				cancel()
				return err
			}
			d.Logger.Info("server starting",
				zap.String("service", d.Opts.Service),
				zap.String("addr", ln.Addr().String()),
				zap.String("script", d.Cfg.Server.Script),
				zap.String("watch", string(d.Cfg.Watch.Mode)),
			)

			g.Go(func() error {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					d.Logger.Error("server failed", zap.Error(err))
					_ = d.Shutdown.Shutdown(fx.ExitCode(1))
					return err
				}
				return nil
			})
			if d.Watcher != nil {
				g.Go(func() error {
					if err := d.Watcher.Run(gctx); err != nil {
						// Reloads stop but the server keeps serving the last table.
						d.Logger.Error("watcher failed", zap.Error(err))
					}
					return nil
				})
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			d.Logger.Info("server stopping", zap.String("service", d.Opts.Service))
			err := srv.Shutdown(ctx)
			cancel()
			if werr := g.Wait(); err == nil {
				err = werr
			}
			return err
		},
	})
}
