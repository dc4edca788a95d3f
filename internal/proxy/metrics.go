package proxy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsTotal   = promauto.NewCounter(prometheus.CounterOpts{Name: "cfproxy_connections_total", Help: "Client connections accepted"})
	activeConnections  = promauto.NewGauge(prometheus.GaugeOpts{Name: "cfproxy_active_connections", Help: "Client connections currently open"})
	failuresTotal      = promauto.NewCounterVec(prometheus.CounterOpts{Name: "cfproxy_connection_failures_total", Help: "Connections ended by an error, by stage"}, []string{"stage"})
	tunnelSetupSeconds = promauto.NewHistogram(prometheus.HistogramOpts{Name: "cfproxy_tunnel_setup_seconds", Help: "Time to establish a tunnel to the edge", Buckets: prometheus.ExponentialBuckets(0.01, 2, 12)})
	relayedBytesTotal  = promauto.NewCounterVec(prometheus.CounterOpts{Name: "cfproxy_relayed_bytes_total", Help: "Bytes relayed, by direction"}, []string{"direction"})

	sentBytes     = relayedBytesTotal.WithLabelValues("client_to_tunnel")
	receivedBytes = relayedBytesTotal.WithLabelValues("tunnel_to_client")
)
