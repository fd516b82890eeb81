package serverfx

import (
	"github.com/joeydtaylor/steeze-script/pkg/bundlefx"
	"github.com/joeydtaylor/steeze-script/pkg/manifest"
	"github.com/joeydtaylor/steeze-script/pkg/transport/httpx"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Options carry per-binary settings that are not part of the manifest.
type Options struct {
	Service string // for logs only
}

type Option func(*Options)

func WithService(s string) Option { return func(o *Options) { o.Service = s } }

// Module returns the complete fx option set for serving cfg.
func Module(cfg manifest.Config, opts ...Option) fx.Option {
	o := Options{Service: "steeze-script"}
	for _, opt := range opts {
		opt(&o)
	}
	return fx.Options(
		fx.Supply(o, cfg),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),

		// logger + metrics middleware
		bundlefx.Module,

		fx.Provide(
			provideTracerProvider,
			provideModuleCache,
			provideInterpreter,
			provideDispatcher,
			provideWatcher,
			httpx.NewChi,
		),

		// Router (named "app")
		fx.Provide(
			fx.Annotate(
				provideRouter,
				fx.ResultTags(`name:"app"`),
			),
		),

		fx.Invoke(registerHooks),
	)
}
