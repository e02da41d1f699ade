package provisioning

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guestsync_scim_deliveries_total",
		Help: "Provisioning deliveries attempted, by channel, api and operation.",
	}, []string{"channel", "api", "operation"})

	failuresCapturedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guestsync_scim_failures_captured_total",
		Help: "Webhook delivery failures captured for operator replay.",
	}, []string{"api", "method"})

	replaysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guestsync_scim_replays_total",
		Help: "Operator-triggered failure replays, by outcome.",
	}, []string{"outcome"})
)
