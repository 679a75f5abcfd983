package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eld-planner/internal/hos"
	"eld-planner/internal/logger"
)

type Collector struct {
	reg *prometheus.Registry

	Plans               *prometheus.CounterVec // result label: ok|invalid|busy|error
	PlanDuration        prometheus.Histogram
	PlannedDrivingHours prometheus.Histogram
	PlannedRestarts     prometheus.Counter
	Violations          *prometheus.CounterVec // rule label
	InFlight            prometheus.Gauge

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	DBErrors *prometheus.CounterVec // op label

	DriverAvailableHours *prometheus.GaugeVec   // driver label
	RecapRefreshes       *prometheus.CounterVec // result label: ok|error

	Workers         prometheus.Gauge
	RefreshInterval prometheus.Gauge // seconds
	CycleLimitHours prometheus.Gauge
}

func NewCollector(workers int, refreshInterval time.Duration, rules hos.Rules) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Plans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eld_plans_total",
			Help: "Plan requests handled, by result.",
		}, []string{"result"}),
		PlanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eld_plan_duration_seconds",
			Help:    "Time to plan, validate and store a trip.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		PlannedDrivingHours: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eld_planned_driving_hours",
			Help:    "Driving hours per planned trip.",
			Buckets: []float64{1, 2, 4, 8, 11, 16, 22, 33, 44, 66},
		}),
		PlannedRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eld_planned_restarts_total",
			Help: "34-hour restarts inserted by the planner.",
		}),
		Violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eld_plan_violations_total",
			Help: "HOS violations found when validating planned schedules.",
		}, []string{"rule"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eld_plans_in_flight",
			Help: "Plan requests currently being processed.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eld_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eld_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eld_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eld_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		DBErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eld_db_errors_total",
			Help: "Database errors, by operation.",
		}, []string{"op"}),
		DriverAvailableHours: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "eld_driver_available_cycle_hours",
			Help: "Cycle hours left per recently active driver.",
		}, []string{"driver"}),
		RecapRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eld_recap_refreshes_total",
			Help: "Driver recap recomputations, by result.",
		}, []string{"result"}),
		Workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eld_workers",
			Help: "Maximum concurrent plan requests.",
		}),
		RefreshInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eld_recap_refresh_interval_seconds",
			Help: "Recap refresh interval in seconds.",
		}),
		CycleLimitHours: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eld_cycle_limit_hours",
			Help: "On-duty hour limit of the configured cycle.",
		}),
	}

	reg.MustRegister(
		c.Plans, c.PlanDuration, c.PlannedDrivingHours, c.PlannedRestarts, c.Violations, c.InFlight,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.DBErrors, c.DriverAvailableHours, c.RecapRefreshes,
		c.Workers, c.RefreshInterval, c.CycleLimitHours,
	)

	c.Workers.Set(float64(workers))
	c.RefreshInterval.Set(refreshInterval.Seconds())
	c.CycleLimitHours.Set(rules.CycleLimit.Hours())

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Mux serves /metrics and /healthz. health may be nil.
func (c *Collector) Mux(health func(ctx context.Context) error) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health(r.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// Serve starts an HTTP server for Mux on the given address.
func (c *Collector) Serve(addr string, health func(ctx context.Context) error, lggr logger.Logger) *http.Server {
	srv := &http.Server{Addr: addr, Handler: c.Mux(health), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lggr.Errorf("metrics server error: %v", err)
		}
	}()
	lggr.Infof("metrics listening on %s", addr)
	return srv
}
