package manifest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// Config is the whole manifest. Every section is optional; Default fills in
// what a bare `steeze-script serve` needs.
type Config struct {
	Server  Server  `toml:"server"`
	Log     Log     `toml:"log"`
	Watch   Watch   `toml:"watch"`
	Tracing Tracing `toml:"tracing"`
	Routes  []Route `toml:"route"`
}

type Server struct {
	Listen       string `toml:"listen"`
	Script       string `toml:"script"`
	StaticDir    string `toml:"static_dir"`
	StaticPrefix string `toml:"static_prefix"`
	MetricsPath  string `toml:"metrics_path"`
	MaxBodyBytes int64  `toml:"max_body_bytes"`
}

type Log struct {
	Dir   string `toml:"dir"`
	Level string `toml:"level"`
	// BodyPaths lists request paths whose bodies are copied into the access log.
	BodyPaths []string `toml:"body_paths"`
}

type Watch struct {
	Mode           WatchMode `toml:"mode"`
	DebounceMS     int       `toml:"debounce_ms"`
	PollIntervalMS int       `toml:"poll_interval_ms"`
}

func (w Watch) Debounce() time.Duration {
	return time.Duration(w.DebounceMS) * time.Millisecond
}

func (w Watch) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalMS) * time.Millisecond
}

type Tracing struct {
	Stdout bool `toml:"stdout"`
}

const (
	HeartbeatPath = "/ping"

	defaultMaxBody = 1 << 20
)

func Default() Config {
	return Config{
		Server: Server{
			Listen:       ":8080",
			Script:       "routes.lua",
			StaticPrefix: "/static/",
			MetricsPath:  "/metrics",
			MaxBodyBytes: defaultMaxBody,
		},
		Log: Log{Dir: "log", Level: "info"},
		Watch: Watch{
			Mode:           WatchFSNotify,
			DebounceMS:     100,
			PollIntervalMS: 200,
		},
	}
}

// Validate normalizes the config in place and reports the first problem.
func (c *Config) Validate() error {
	s := &c.Server
	s.Listen = strings.TrimSpace(s.Listen)
	if s.Listen == "" {
		return errors.New("server.listen is required")
	}
	if strings.TrimSpace(s.Script) == "" {
		return errors.New("server.script is required")
	}
	if s.MaxBodyBytes <= 0 {
		return errors.New("server.max_body_bytes must be > 0")
	}
	if !strings.HasPrefix(s.MetricsPath, "/") {
		return fmt.Errorf("server.metrics_path %q must start with /", s.MetricsPath)
	}
	if s.StaticDir != "" {
		if !strings.HasPrefix(s.StaticPrefix, "/") {
			s.StaticPrefix = "/" + s.StaticPrefix
		}
		if !strings.HasSuffix(s.StaticPrefix, "/") {
			s.StaticPrefix += "/"
		}
		if s.StaticPrefix == "/" {
			return errors.New("server.static_prefix cannot be /")
		}
	}

	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	w := &c.Watch
	w.Mode = WatchMode(strings.ToLower(strings.TrimSpace(string(w.Mode))))
	switch w.Mode {
	case "":
		w.Mode = WatchFSNotify
	case WatchFSNotify, WatchPoll, WatchOff:
	default:
		return fmt.Errorf("watch.mode %q invalid (fsnotify, poll, off)", w.Mode)
	}
	if w.DebounceMS < 0 || w.PollIntervalMS < 0 {
		return errors.New("watch intervals must be >= 0")
	}

	return c.validateRoutes()
}

// Reserved reports whether p is served ahead of the script routes.
func (c *Config) Reserved(p string) bool {
	if p == HeartbeatPath || p == c.Server.MetricsPath {
		return true
	}
	return c.Server.StaticDir != "" && strings.HasPrefix(p, c.Server.StaticPrefix)
}
