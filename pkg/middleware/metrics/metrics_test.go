package metrics

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollect(t *testing.T) {
	h := Collect()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	before := testutil.ToFloat64(totalHttpRequestsToUri.WithLabelValues("201", "/made", "POST"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/made", nil))
	assert.Equal(t, before+1, testutil.ToFloat64(totalHttpRequestsToUri.WithLabelValues("201", "/made", "POST")))

	t.Run("collapses 404 paths", func(t *testing.T) {
		before := testutil.ToFloat64(totalHttpRequestsToUri.WithLabelValues("404", Unmatched, "GET"))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))
		assert.Equal(t, before+1, testutil.ToFloat64(totalHttpRequestsToUri.WithLabelValues("404", Unmatched, "GET")))
	})

	t.Run("skips configured paths", func(t *testing.T) {
		AddMetricsSkipPaths("/skipme", " ")
		before := testutil.ToFloat64(totalHttpRequests.WithLabelValues("201", "PUT"))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/skipme", nil))
		assert.Equal(t, before, testutil.ToFloat64(totalHttpRequests.WithLabelValues("201", "PUT")))
	})
}

// ResponseRecorder flushes but has no ReadFrom, like the access logger's
// wrapper. ServeContent copies through ReadFrom when the writer offers it.
func TestCollect_InnerWriterWithoutReadFrom(t *testing.T) {
	h := Collect()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "app.css", time.Time{}, bytes.NewReader([]byte("body{}")))
	}))

	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/app.css", nil))
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "body{}", rec.Body.String())
}

func TestCollect_InFlight(t *testing.T) {
	var during float64
	h := Collect()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = testutil.ToFloat64(inFlight)
	}))
	before := testutil.ToFloat64(inFlight)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/busy", nil))
	assert.Equal(t, before+1, during)
	assert.Equal(t, before, testutil.ToFloat64(inFlight))
}

func TestDomainCollectors(t *testing.T) {
	before := testutil.ToFloat64(dispatchTotal.WithLabelValues(OutcomeNotFound))
	ObserveDispatch(OutcomeNotFound, time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(dispatchTotal.WithLabelValues(OutcomeNotFound)))

	before = testutil.ToFloat64(reloadTotal.WithLabelValues(ReloadFailed))
	ObserveReload(ReloadFailed)
	assert.Equal(t, before+1, testutil.ToFloat64(reloadTotal.WithLabelValues(ReloadFailed)))

	SetRouteTable(3, 7)
	assert.Equal(t, 3.0, testutil.ToFloat64(routeTableSize))
	assert.Equal(t, 7.0, testutil.ToFloat64(routeTableGeneration))
}
