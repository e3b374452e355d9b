// Package metrics registers the process's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TicksTotal counts scheduler minute ticks, labelled by origin
	// ("cron", "http", "update").
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relaybot",
		Name:      "ticks_total",
		Help:      "Scheduler ticks processed, by trigger origin.",
	}, []string{"origin"})

	// FiringsTotal counts schedule firings, labelled by outcome
	// ("ok", "partial", "failed", "skipped").
	FiringsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relaybot",
		Name:      "firings_total",
		Help:      "Schedule firings, by outcome.",
	}, []string{"outcome"})

	SendsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relaybot",
		Name:      "sends_total",
		Help:      "Messages delivered to destination channels.",
	})

	SendFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relaybot",
		Name:      "send_failures_total",
		Help:      "Delivery attempts that returned an error.",
	})

	StatesEvictedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relaybot",
		Name:      "conversation_states_evicted_total",
		Help:      "Stale conversation states removed by the janitor.",
	})

	UpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relaybot",
		Name:      "updates_total",
		Help:      "Inbound chat updates, by kind.",
	}, []string{"kind"})
)
