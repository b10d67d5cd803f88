package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareCountsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()

	router := gin.New()
	router.Use(m.Middleware())
	router.GET("/api/v1/resources/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, id := range []string{"1", "2"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/resources/"+id, nil))
	}

	got := testutil.ToFloat64(m.httpRequests.WithLabelValues(http.MethodGet, "/api/v1/resources/:id", "200"))
	assert.Equal(t, 2.0, got)
}

func TestReservationCounters(t *testing.T) {
	m := New()
	m.ReservationTransition("approved")
	m.ReservationRefused("capacity_exceeded")
	m.ReservationRefused("capacity_exceeded")
	m.CacheLookup(true)
	m.EventPublished("reservation.created", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("approved")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.rejections.WithLabelValues("capacity_exceeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsPublished.WithLabelValues("reservation.created", "error")))

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), "reservation_rejections_total")
}
