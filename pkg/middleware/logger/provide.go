package logger

import (
	"github.com/joeydtaylor/steeze-script/pkg/manifest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func options(cfg manifest.Config) (Options, error) {
	lvl, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		return Options{}, err
	}
	return Options{Dir: cfg.Log.Dir, Level: lvl}, nil
}

func ProvideLogger(cfg manifest.Config) (*zap.Logger, error) {
	o, err := options(cfg)
	if err != nil {
		return nil, err
	}
	return NewLog(SystemLogName, o)
}

// ProvideLoggerMiddleware always logs access at info, whatever log.level says.
func ProvideLoggerMiddleware(cfg manifest.Config) (*Middleware, error) {
	o, err := options(cfg)
	if err != nil {
		return nil, err
	}
	o.Level = zapcore.InfoLevel
	access, err := NewLog(AccessLogName, o)
	if err != nil {
		return nil, err
	}
	return NewMiddleware(access, cfg.Log.BodyPaths), nil
}
