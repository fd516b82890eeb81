package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewPromHttpHandler serves the default registry, including the dispatch and
// reload collectors, with OpenMetrics negotiation enabled.
func NewPromHttpHandler() http.Handler { return newHandler(zap.NewNop()) }

func newHandler(log *zap.Logger) http.Handler {
	return promhttp.InstrumentMetricHandler(
		prometheus.DefaultRegisterer,
		promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			ErrorLog:          zap.NewStdLog(log.Named("metrics")),
			EnableOpenMetrics: true,
		}),
	)
}

// ProvideMetrics is the Fx provider used by the server wiring; scrape errors
// go to the service log.
func ProvideMetrics(log *zap.Logger) http.Handler { return newHandler(log) }

var Module = fx.Options(
	fx.Provide(fx.Annotate(ProvideMetrics, fx.ResultTags(`name:"metrics"`))),
)
