package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"cycle_reminder_bot/internal/domain/notification"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct{ err error }

func (p stubPinger) PingContext(context.Context) error { return p.err }

func TestCollector(t *testing.T) {
	c := NewCollector()
	c.ObserveDelivery(notification.TypeOvulationStart, notification.StatusSent)
	c.ObserveDelivery(notification.TypeOvulationStart, notification.StatusSent)
	c.ObserveDelivery(notification.TypePeriodTomorrow, notification.StatusFailed)
	c.IncReschedules()
	c.SetPendingJobs(12)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.deliveries.WithLabelValues("OVULATION_START", "SENT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.deliveries.WithLabelValues("PERIOD_TOMORROW", "FAILED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reschedules))
	assert.Equal(t, 12.0, testutil.ToFloat64(c.pendingJobs))
}

func TestRouter(t *testing.T) {
	c := NewCollector()
	c.SetPendingJobs(3)

	router := NewRouter(c, stubPinger{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cycle_bot_pending_jobs 3")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	down := NewRouter(c, stubPinger{err: errors.New("no db")})
	rec = httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
