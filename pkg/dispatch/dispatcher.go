// Package dispatch turns HTTP requests into handler calls against the
// interpreter context and handler results back into HTTP responses.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/joeydtaylor/steeze-script/pkg/core"
	"github.com/joeydtaylor/steeze-script/pkg/middleware/metrics"
	"github.com/joeydtaylor/steeze-script/pkg/script"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	NotFoundBody      = "Route not found"
	InternalErrorBody = "Internal Server Error"

	// ContentTypeHTML is sent with every successful handler response;
	// handlers can't pick their own content type.
	ContentTypeHTML = "text/html"
	contentTypeText = "text/plain; charset=utf-8"

	tracerName = "github.com/joeydtaylor/steeze-script/pkg/dispatch"
)

// Interpreter is the exclusive-access surface of script.Context.
type Interpreter interface {
	WithExclusiveAccess(fn func(*script.Session) error) error
}

// Result is everything needed to write the HTTP response.
type Result struct {
	Status int
	Body   string
	Header http.Header
}

type Option func(*Dispatcher)

func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(d *Dispatcher) {
		if tp != nil {
			d.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithMaxBodyBytes caps request bodies read by ServeHTTP. <= 0 means no cap.
func WithMaxBodyBytes(n int64) Option {
	return func(d *Dispatcher) { d.maxBody = n }
}

type Dispatcher struct {
	interp  Interpreter
	log     *zap.Logger
	tracer  trace.Tracer
	maxBody int64
}

func New(interp Interpreter, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		interp: interp,
		log:    zap.NewNop(),
		tracer: otel.Tracer(tracerName),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch looks up and runs the handler for req.Path while holding the
// interpreter lock for the whole call.
func (d *Dispatcher) Dispatch(ctx context.Context, req core.Request) Result {
	ctx, span := d.tracer.Start(ctx, "dispatch", trace.WithAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("http.route", req.Path),
	))
	defer span.End()

	var (
		res  core.Response
		err  error
		gen  uint64
		held time.Time
	)
	waitStart := time.Now()
	_ = d.interp.WithExclusiveAccess(func(s *script.Session) error {
		held = time.Now()
		metrics.ObserveLockWait(held.Sub(waitStart))
		gen = s.Generation()

		h, ok := s.CurrentRouteTable().Lookup(req.Path)
		if !ok {
			err = core.ErrRouteNotFound
			return nil
		}
		res, err = invoke(ctx, h, req)
		return nil
	})
	elapsed := time.Since(held)
	span.SetAttributes(attribute.Int64("route_table.generation", int64(gen)))

	out := d.toResult(req, res, err, elapsed)
	span.SetAttributes(attribute.Int("http.status_code", out.Status))
	if err != nil && !errors.Is(err, core.ErrRouteNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
	}
	return out
}

// invoke runs h and normalises every failure to *core.EvalError or
// *core.ContractError. A panicking native handler counts as an evaluation error.
func invoke(ctx context.Context, h core.Handler, req core.Request) (res core.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &core.EvalError{Path: req.Path, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	res, err = h.Invoke(ctx, req)
	if err != nil {
		var ee *core.EvalError
		var ce *core.ContractError
		if !errors.As(err, &ee) && !errors.As(err, &ce) {
			err = &core.EvalError{Path: req.Path, Err: err}
		}
		return core.Response{}, err
	}
	if err := core.CheckResponse(res); err != nil {
		return core.Response{}, err
	}
	return res, nil
}

func (d *Dispatcher) toResult(req core.Request, res core.Response, err error, elapsed time.Duration) Result {
	var ce *core.ContractError
	switch {
	case err == nil:
		metrics.ObserveDispatch(metrics.OutcomeOK, elapsed)
		return Result{Status: res.Code, Body: res.Body, Header: header(ContentTypeHTML)}

	case errors.Is(err, core.ErrRouteNotFound):
		metrics.ObserveDispatch(metrics.OutcomeNotFound, elapsed)
		d.log.Info("route not found",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
		)
		return Result{Status: http.StatusNotFound, Body: NotFoundBody, Header: header(contentTypeText)}

	case errors.As(err, &ce):
		metrics.ObserveDispatch(metrics.OutcomeContractViolation, elapsed)
		d.log.Error("handler contract violation",
			zap.String("path", req.Path),
			zap.String("field", ce.Field),
			zap.String("observed", ce.Observed),
		)

	default:
		metrics.ObserveDispatch(metrics.OutcomeEvalError, elapsed)
		d.log.Error("handler evaluation failed",
			zap.String("path", req.Path),
			zap.Error(err),
		)
	}
	return Result{Status: http.StatusInternalServerError, Body: InternalErrorBody, Header: header(contentTypeText)}
}

func header(contentType string) http.Header {
	return http.Header{"Content-Type": []string{contentType}}
}

// ServeHTTP marshals r, dispatches it and writes the Result.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := MarshalRequest(r, d.maxBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		d.log.Info("request rejected before dispatch",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		http.Error(w, http.StatusText(status), status)
		return
	}

	res := d.Dispatch(r.Context(), req)
	for k, v := range res.Header {
		w.Header()[k] = v
	}
	w.WriteHeader(res.Status)
	_, _ = io.WriteString(w, res.Body)
}
