// SPDX-License-Identifier: Apache-2.0

package emulator

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// prometheus metrics
var (
	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conbus",
			Name:      "EmulatorFramesReceived",
			Help:      "number of telegrams received from controllers, by function code",
		},
		[]string{"function"})

	framesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "conbus",
			Name:      "EmulatorFramesSent",
			Help:      "number of telegrams sent to controllers",
		})

	frameErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "conbus",
			Name:      "EmulatorFrameErrors",
			Help:      "number of unparseable or corrupted frames received",
		})

	connectionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "conbus",
			Name:      "EmulatorConnectionsOpen",
			Help:      "number of controller connections currently open",
		})
)

func init() {
	prometheus.MustRegister(framesReceived)
	prometheus.MustRegister(framesSent)
	prometheus.MustRegister(frameErrors)
	prometheus.MustRegister(connectionsOpen)
}

// MetricsHandler returns the HTTP handler serving the emulator's metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
