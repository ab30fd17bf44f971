package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "dca_console"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry *prometheus.Registry
	counters map[string]prometheus.Counter
}

var counterHelp = []struct {
	name string
	help string
}{
	{"refresh_total", "Total number of dashboard refreshes started."},
	{"refresh_failed_total", "Total number of refreshes that ended with a panel error."},
	{"whitelist_fallback_total", "Total number of whitelist failures that fell back to free text."},
	{"orders_submitted_total", "Total number of transactions handed to the gateway."},
	{"orders_succeeded_total", "Total number of transactions that executed."},
	{"orders_failed_total", "Total number of transactions that failed to build or execute."},
	{"drafts_saved_total", "Total number of strategy drafts saved."},
	{"stale_refresh_dropped_total", "Total number of refresh results discarded as stale."},
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	counters := make(map[string]prometheus.Counter, len(counterHelp))
	for _, c := range counterHelp {
		counter := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      c.name,
			Help:      c.help,
		})
		registry.MustRegister(counter)
		counters[c.name] = counter
	}

	m := &Metrics{
		Refresh:             promCounter{counters["refresh_total"]},
		RefreshFailed:       promCounter{counters["refresh_failed_total"]},
		WhitelistFallback:   promCounter{counters["whitelist_fallback_total"]},
		OrdersSubmitted:     promCounter{counters["orders_submitted_total"]},
		OrdersSucceeded:     promCounter{counters["orders_succeeded_total"]},
		OrdersFailed:        promCounter{counters["orders_failed_total"]},
		DraftsSaved:         promCounter{counters["drafts_saved_total"]},
		StaleRefreshDropped: promCounter{counters["stale_refresh_dropped_total"]},
	}

	return &Prometheus{
		Metrics:  m,
		registry: registry,
		counters: counters,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
