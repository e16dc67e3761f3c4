// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics is the Prometheus surface for the verdict engine and
// rate limiter: per-verdict packet counters, rate-limit hit/ban counters,
// and an active-ban gauge sampled from the limiter on scrape.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every Prometheus collector this program registers.
type Metrics struct {
	PacketsTotal  *prometheus.CounterVec
	RateLimitHits prometheus.Counter
	RateLimitBans prometheus.Counter
	ActiveBans    prometheus.Gauge
	RulesLoaded   prometheus.Gauge
}

// ActiveBanSource is sampled on every scrape for the active_bans gauge
// instead of being pushed, since the limiter already owns that count.
type ActiveBanSource interface {
	ActiveBans() int
}

// New builds an unregistered Metrics. Call Register to attach it to a
// prometheus.Registerer.
func New() *Metrics {
	return &Metrics{
		PacketsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ips_packets_total",
			Help: "Total number of packets evaluated by the verdict engine, by verdict.",
		}, []string{"verdict"}),
		RateLimitHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ips_rate_limit_hits_total",
			Help: "Total number of packets that tripped a rate-limit rule's threshold.",
		}),
		RateLimitBans: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ips_rate_limit_bans_total",
			Help: "Total number of bans issued by the rate limiter.",
		}),
		ActiveBans: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ips_active_bans",
			Help: "Number of source addresses currently under an active ban.",
		}),
		RulesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ips_rules_loaded",
			Help: "Number of rules currently loaded.",
		}),
	}
}

// Register attaches every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.PacketsTotal, m.RateLimitHits, m.RateLimitBans, m.ActiveBans, m.RulesLoaded,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveVerdict increments the packet counter for the given verdict label.
func (m *Metrics) ObserveVerdict(accepted bool) {
	if accepted {
		m.PacketsTotal.WithLabelValues("accept").Inc()
	} else {
		m.PacketsTotal.WithLabelValues("drop").Inc()
	}
}

// SampleActiveBans pulls the current ban count from src into the gauge.
// Called on demand before a scrape, since the limiter is the source of
// truth and nothing pushes ban/unban events to this package.
func (m *Metrics) SampleActiveBans(src ActiveBanSource) {
	m.ActiveBans.Set(float64(src.ActiveBans()))
}
