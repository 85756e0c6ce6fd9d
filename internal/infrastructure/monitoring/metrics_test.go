package monitoring

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SessionSpawned()
		m.SessionKilled("forced")
		m.RecordCommand("spawn_shell", "success", 0)
		m.IncOverflowKills()
		m.SetStatusListeners(1)
		NewTimer(m, "kill_session").StopErr(errors.New("boom"))
	})
}

func TestSessionGauge(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SessionSpawned()
	m.SessionSpawned()
	m.SessionKilled("graceful")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionsSpawned))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsKilled.WithLabelValues("graceful")))
}

func TestTimerRecordsStatus(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	NewTimer(m, "write_stdin").StopErr(nil)
	NewTimer(m, "write_stdin").StopErr(errors.New("closed"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandCalls.WithLabelValues("write_stdin", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandCalls.WithLabelValues("write_stdin", "error")))
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics(prometheus.NewRegistry())

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/sessions/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, id := range []string{"1", "2"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/"+id, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/sessions/:id", "204")))
}
