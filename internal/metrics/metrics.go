package metrics

import (
	"net/http"

	"keepsake-server/internal/engine"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics собирает счетчики прогрессии в собственном реестре,
// а не в prometheus.DefaultRegistry.
type Metrics struct {
	registry *prometheus.Registry

	eventsProcessed      *prometheus.CounterVec
	starsAwarded         prometheus.Counter
	tokensDropped        *prometheus.CounterVec
	itemsUnlocked        prometheus.Counter
	discoveriesCompleted prometheus.Counter
	eggHatches           prometheus.Counter
	saveFailures         prometheus.Counter
	activeSessions       prometheus.Gauge
}

// New регистрирует все коллекторы в новом реестре.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		eventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "keepsake_events_processed_total",
			Help: "Total number of progression events processed, by event type.",
		}, []string{"type"}),
		starsAwarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "keepsake_stars_awarded_total",
			Help: "Total number of gold stars awarded.",
		}),
		tokensDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "keepsake_tokens_dropped_total",
			Help: "Total number of tokens dropped, by color.",
		}, []string{"color"}),
		itemsUnlocked: factory.NewCounter(prometheus.CounterOpts{
			Name: "keepsake_items_unlocked_total",
			Help: "Total number of inventory items unlocked.",
		}),
		discoveriesCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "keepsake_discoveries_completed_total",
			Help: "Total number of multi-step discoveries completed.",
		}),
		eggHatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "keepsake_egg_hatches_total",
			Help: "Total number of egg hatch cinematics triggered.",
		}),
		saveFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "keepsake_state_save_failures_total",
			Help: "Total number of background progression writes that failed.",
		}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "keepsake_active_sessions",
			Help: "Number of player engines currently held in memory.",
		}),
	}
}

// ObserveResult - подписчик движка: учитывает один результат.
func (m *Metrics) ObserveResult(res engine.Result) {
	m.eventsProcessed.WithLabelValues(string(res.EventType)).Inc()
	if res.StarsAwarded > 0 {
		m.starsAwarded.Add(float64(res.StarsAwarded))
	}
	if res.BlueTokenAwarded {
		m.tokensDropped.WithLabelValues("blue").Inc()
	}
	if res.RedTokenAwarded {
		m.tokensDropped.WithLabelValues("red").Inc()
	}
	if n := len(res.ItemsUnlocked); n > 0 {
		m.itemsUnlocked.Add(float64(n))
	}
	if res.DiscoveryCompleted != "" {
		m.discoveriesCompleted.Inc()
	}
	if res.EggHatchTriggered {
		m.eggHatches.Inc()
	}
}

// SaveFailed подходит как обработчик ошибок записи шлюза.
func (m *Metrics) SaveFailed(string, error) {
	m.saveFailures.Inc()
}

func (m *Metrics) SessionOpened() { m.activeSessions.Inc() }

func (m *Metrics) SessionClosed() { m.activeSessions.Dec() }

// Registry открыт для тестов и дополнительных коллекторов.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler отдает метрики в формате Prometheus.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
