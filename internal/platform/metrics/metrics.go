// Package metrics exposes the process Prometheus registry and the
// governance request counters recorded at the HTTP edge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	registry *prometheus.Registry

	ProposalsCreated prometheus.Counter
	VotesSubmitted   prometheus.Counter
	VotesRejected    *prometheus.CounterVec
	Executions       *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		ProposalsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "agora_governance_proposals_created_total",
			Help: "proposals accepted into the active state",
		}),
		VotesSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "agora_governance_votes_submitted_total",
			Help: "ballots recorded in the vote ledger",
		}),
		VotesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agora_governance_votes_rejected_total",
			Help: "ballots rejected before recording",
		}, []string{"reason"}),
		Executions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agora_governance_executions_total",
			Help: "decision execution attempts by outcome",
		}, []string{"outcome"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agora_http_requests_total",
			Help: "http requests by route and status",
		}, []string{"route", "status"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
