package metrics

import (
	"net/http"

	"cycle_reminder_bot/internal/domain/notification"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cycle_bot"

// Collector owns the bot's prometheus metrics and their registry.
type Collector struct {
	registry    *prometheus.Registry
	deliveries  *prometheus.CounterVec
	reschedules prometheus.Counter
	pendingJobs prometheus.Gauge
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Reminder fire outcomes by type and status",
		}, []string{"type", "status"}),
		reschedules: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reschedules_total",
			Help:      "Number of per-user reschedules",
		}),
		pendingJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_jobs",
			Help:      "Reminder jobs currently armed",
		}),
	}
	c.registry.MustRegister(
		c.deliveries,
		c.reschedules,
		c.pendingJobs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) ObserveDelivery(t notification.Type, status notification.Status) {
	c.deliveries.WithLabelValues(string(t), string(status)).Inc()
}

func (c *Collector) IncReschedules() {
	c.reschedules.Inc()
}

func (c *Collector) SetPendingJobs(n int) {
	c.pendingJobs.Set(float64(n))
}

// Handler serves the registry in the prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
