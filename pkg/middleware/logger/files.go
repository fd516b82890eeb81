package logger

import (
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	SystemLogName = "system.log"
	AccessLogName = "http-access.log"
)

type Options struct {
	Dir   string
	Level zapcore.Level
	// Console receives the same JSON lines as the file; nil means stdout.
	Console io.Writer
}

// NewLog writes JSON lines to a rotated file under o.Dir and to the console.
func NewLog(name string, o Options) (*zap.Logger, error) {
	if o.Dir == "" {
		o.Dir = "log"
	}
	if err := os.MkdirAll(o.Dir, 0o755); err != nil {
		return nil, err
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder

	console := zapcore.Lock(os.Stdout)
	if o.Console != nil {
		console = zapcore.AddSync(o.Console)
	}

	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(o.Dir, name),
		MaxSize:    50, // MB
		MaxBackups: 3,
		MaxAge:     7, // days
	})

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(cfg), w, o.Level),
		zapcore.NewCore(zapcore.NewJSONEncoder(cfg), console, o.Level),
	)
	return zap.New(core), nil
}
