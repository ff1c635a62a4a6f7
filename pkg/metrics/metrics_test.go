package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareLabelsByRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New("test")
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/api/campaigns/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, id := range []string{"a", "b"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/campaigns/"+id, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/campaigns/:id", "200")))
}

func TestRecordJobAndEvent(t *testing.T) {
	m := New("test")
	m.RecordJob("logo_import", 20*time.Millisecond, true)
	m.RecordEvent("slot.booked")
	m.RecordEvent("slot.booked")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("logo_import", "true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("slot.booked")))

	var nilMetrics *Metrics
	nilMetrics.RecordEvent("ignored")
}
