package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Dispatch outcomes used as the "outcome" label.
const (
	OutcomeOK                = "ok"
	OutcomeNotFound          = "not_found"
	OutcomeEvalError         = "eval_error"
	OutcomeContractViolation = "contract_violation"
)

// Reload results used as the "result" label.
const (
	ReloadInstalled = "installed"
	ReloadFailed    = "failed"
)

var (
	responseTime = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "response_time",
			Help:    "http response time.",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60},
		},
	)

	totalHttpRequestsToUri = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "total_http_requests_to_uri", Help: "http requests to uri"},
		[]string{"code", "uri", "method"},
	)

	totalHttpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "total_http_requests", Help: "http requests by code, and method"},
		[]string{"code", "method"},
	)

	inFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "requests_in_flight", Help: "requests currently being served"},
	)

	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_total", Help: "dispatches by outcome"},
		[]string{"outcome"},
	)

	dispatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_duration_seconds",
			Help:    "time spent inside the interpreter lock per dispatch.",
			Buckets: prometheus.DefBuckets,
		},
	)

	lockWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "interpreter_lock_wait_seconds",
			Help:    "time a dispatch waited for the interpreter lock.",
			Buckets: prometheus.DefBuckets,
		},
	)

	reloadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "reload_total", Help: "route reloads by result"},
		[]string{"result"},
	)

	routeTableSize = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "route_table_size", Help: "routes in the installed table"},
	)

	routeTableGeneration = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "route_table_generation", Help: "number of route tables installed since start"},
	)
)

func init() {
	prometheus.MustRegister(
		responseTime,
		totalHttpRequestsToUri,
		totalHttpRequests,
		inFlight,
		dispatchTotal,
		dispatchDuration,
		lockWait,
		reloadTotal,
		routeTableSize,
		routeTableGeneration,
	)
}

func ObserveDispatch(outcome string, d time.Duration) {
	dispatchTotal.WithLabelValues(outcome).Inc()
	dispatchDuration.Observe(d.Seconds())
}

func ObserveLockWait(d time.Duration) { lockWait.Observe(d.Seconds()) }

func ObserveReload(result string) { reloadTotal.WithLabelValues(result).Inc() }

// SetRouteTable matches script.InstallHook.
func SetRouteTable(routes int, generation uint64) {
	routeTableSize.Set(float64(routes))
	routeTableGeneration.Set(float64(generation))
}
