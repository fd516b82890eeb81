package serverfx

import (
	"net/http"

	chimd "github.com/go-chi/chi/v5/middleware"
	"github.com/joeydtaylor/steeze-script/pkg/dispatch"
	"github.com/joeydtaylor/steeze-script/pkg/manifest"
	"github.com/joeydtaylor/steeze-script/pkg/middleware/logger"
	hmetrics "github.com/joeydtaylor/steeze-script/pkg/middleware/metrics"
	httpx "github.com/joeydtaylor/steeze-script/pkg/transport/httpx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

type BuildDeps struct {
	LogMW      *logger.Middleware
	Metrics    http.Handler
	Dispatcher *dispatch.Dispatcher
	Router     httpx.Router
	Tracer     trace.TracerProvider
}

// BuildRouter mounts the reserved endpoints ahead of the dispatcher, which
// receives every other path and method.
func BuildRouter(cfg manifest.Config, d BuildDeps) http.Handler {
	r := d.Router
	r.Use(chimd.RequestID, chimd.Recoverer, chimd.Heartbeat(manifest.HeartbeatPath))
	if d.LogMW != nil {
		r.Use(d.LogMW.Middleware())
	}
	hmetrics.AddMetricsSkipPaths(cfg.Server.MetricsPath)
	r.Use(hmetrics.Collect())

	if d.Metrics != nil {
		r.Get(cfg.Server.MetricsPath, d.Metrics)
	}
	if dir := cfg.Server.StaticDir; dir != "" {
		prefix := cfg.Server.StaticPrefix
		r.Mount(prefix, http.StripPrefix(prefix, http.FileServer(http.Dir(dir))))
	}
	r.Fallback(d.Dispatcher)

	opts := []otelhttp.Option{
		otelhttp.WithFilter(func(req *http.Request) bool {
			return req.URL.Path != manifest.HeartbeatPath && req.URL.Path != cfg.Server.MetricsPath
		}),
	}
	if d.Tracer != nil {
		opts = append(opts, otelhttp.WithTracerProvider(d.Tracer))
	}
	return otelhttp.NewHandler(r.Mux(), "http.server", opts...)
}
