package main

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus collectors, exposed at /metrics on the admin API.
var (
	metricConnectionsOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parley_connections_open",
		Help: "Number of open TCP connections.",
	})
	metricSessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parley_sessions_active",
		Help: "Number of live authenticated sessions.",
	})
	metricRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_requests_total",
		Help: "Requests processed, by verb.",
	}, []string{"verb"})
	metricPushesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_pushes_total",
		Help: "Push lines written, by subject.",
	}, []string{"subject"})
	metricMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_messages_total",
		Help: "Messages archived, by kind (pm or gm).",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(
		metricConnectionsOpen,
		metricSessionsActive,
		metricRequestsTotal,
		metricPushesTotal,
		metricMessagesTotal,
	)
}
