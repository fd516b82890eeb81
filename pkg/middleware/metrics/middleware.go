package metrics

import (
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// Collect records per-request counters and latency. Requests waiting on the
// interpreter lock show up in requests_in_flight.
//
// The wrapper must come from the same chi major as the access logger: chi v1
// promotes any Flusher to a writer whose ReadFrom asserts io.ReaderFrom on the
// inner writer, which v5's flushWriter does not implement.
func Collect() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSkipPath(r) {
				next.ServeHTTP(w, r)
				return
			}

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			inFlight.Inc()

			defer func() {
				inFlight.Dec()
				status := ww.Status()
				code := strconv.Itoa(status)
				uri := normalizePath(r, status)

				totalHttpRequestsToUri.WithLabelValues(code, uri, r.Method).Inc()
				totalHttpRequests.WithLabelValues(code, r.Method).Inc()
				responseTime.Observe(time.Since(start).Seconds())
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
