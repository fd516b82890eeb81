package wasmhandler

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/joeydtaylor/steeze-script/pkg/codec"
	"github.com/joeydtaylor/steeze-script/pkg/core"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"
)

// Handler instantiates its module once per request. Instances are never
// reused, so module globals do not survive between requests.
type Handler struct {
	cache  *ModuleCache
	module wazero.CompiledModule
	path   string
	codec  codec.Codec
	log    *zap.Logger
}

type Option func(*Handler)

func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

func WithCodec(c codec.Codec) Option {
	return func(h *Handler) {
		if c != nil {
			h.codec = c
		}
	}
}

// New compiles path up front so a missing or invalid module is reported when
// the route is declared rather than on the first request.
func New(ctx context.Context, cache *ModuleCache, path string, opts ...Option) (*Handler, error) {
	cm, err := cache.Compiled(ctx, path)
	if err != nil {
		return nil, err
	}
	h := &Handler{cache: cache, module: cm, path: path, codec: codec.JSON, log: zap.NewNop()}
	for _, o := range opts {
		o(h)
	}
	return h, nil
}

func (h *Handler) Invoke(ctx context.Context, req core.Request) (core.Response, error) {
	in, err := h.codec.Marshal(req)
	if err != nil {
		return core.Response{}, &core.EvalError{Path: req.Path, Err: fmt.Errorf("encode request: %w", err)}
	}

	var stdout, stderr bytes.Buffer
	cfg := wazero.NewModuleConfig().
		WithName("").
		WithArgs(h.path).
		WithStdin(bytes.NewReader(in)).
		WithStdout(&stdout).
		WithStderr(&stderr)

	mod, err := h.cache.rt.InstantiateModule(ctx, h.module, cfg)
	if mod != nil {
		defer mod.Close(ctx)
	}
	if stderr.Len() > 0 {
		h.log.Warn("wasm handler stderr",
			zap.String("module", h.path),
			zap.String("stderr", stderr.String()),
		)
	}
	if err != nil && !cleanExit(err) {
		return core.Response{}, &core.EvalError{Path: req.Path, Err: err}
	}

	v, err := codec.DecodeValue(h.codec, stdout.Bytes())
	if err != nil {
		return core.Response{}, &core.ContractError{Observed: "invalid JSON output"}
	}
	return core.DecodeResponse(v)
}

// cleanExit treats proc_exit(0), which Go and TinyGo builds call on return
// from main, as success.
func cleanExit(err error) bool {
	var exit *sys.ExitError
	return errors.As(err, &exit) && exit.ExitCode() == 0
}
