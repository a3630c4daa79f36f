package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "arena_cycles_total", Help: "Trading cycles by outcome"},
		[]string{"outcome"},
	)
	ProposalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "arena_proposals_total", Help: "Decision source answers by agent, prompt kind and source"},
		[]string{"agent", "kind", "source"},
	)
	MarketFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "arena_market_fetches_total", Help: "Market data requests by kind and source"},
		[]string{"kind", "source"},
	)
	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "arena_events_published_total", Help: "Events fanned out by type"},
		[]string{"type"},
	)
	SubscribersPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "arena_subscribers_pruned_total", Help: "Subscriptions dropped after a failed delivery"},
	)
	Subscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "arena_subscribers", Help: "Live event subscribers"},
	)
)

const (
	OutcomeStarted   = "started"
	OutcomeCompleted = "completed"
	OutcomeStopped   = "stopped"
	OutcomeFailed    = "failed"
)

func init() {
	prometheus.MustRegister(
		CyclesTotal,
		ProposalsTotal,
		MarketFetchesTotal,
		EventsPublishedTotal,
		SubscribersPrunedTotal,
		Subscribers,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
