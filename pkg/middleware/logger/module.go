package logger

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("logger",
	fx.Provide(ProvideLogger, ProvideLoggerMiddleware),
	fx.Invoke(flushOnStop),
)

func flushOnStop(lc fx.Lifecycle, log *zap.Logger, m *Middleware) {
	lc.Append(fx.StopHook(func() {
		_ = log.Sync()
		_ = m.access.Sync()
	}))
}
