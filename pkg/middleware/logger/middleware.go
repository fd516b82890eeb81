package logger

import (
	"bytes"
	"io"
	"net/http"
	"time"

	chimd "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Middleware writes one access log line per request.
type Middleware struct {
	access *zap.Logger
	bodies bodyAllowlist
}

func NewMiddleware(access *zap.Logger, bodyPaths []string) *Middleware {
	if access == nil {
		access = zap.NewNop()
	}
	return &Middleware{access: access, bodies: newBodyAllowlist(bodyPaths)}
}

func (m *Middleware) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimd.NewWrapResponseWriter(w, r.ProtoMajor)

			// Peek at most maxLoggedBody bytes and hand the rest through untouched.
			var body []byte
			if m.bodies.wants(r) && r.Body != nil {
				b, err := io.ReadAll(io.LimitReader(r.Body, maxLoggedBody+1))
				if err == nil && len(b) <= maxLoggedBody {
					body = b
				}
				r.Body = readCloser{io.MultiReader(bytes.NewReader(b), r.Body), r.Body}
			}

			scheme := "http"
			if r.TLS != nil {
				scheme = "https"
			}

			start := time.Now()
			defer func() {
				fields := []zap.Field{
					zap.String("requestId", chimd.GetReqID(r.Context())),
					zap.String("httpScheme", scheme),
					zap.String("httpProto", r.Proto),
					zap.String("httpMethod", r.Method),
					zap.String("remoteAddr", r.RemoteAddr),
					zap.String("uri", r.URL.Path),
					zap.Duration("lat", time.Since(start)),
					zap.Int("responseSize", ww.BytesWritten()),
					zap.Int("status", ww.Status()),
				}
				if len(body) > 0 {
					fields = append(fields, zap.ByteString("requestData", body))
				}
				m.access.Info("http request", fields...)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

type readCloser struct {
	io.Reader
	io.Closer
}
