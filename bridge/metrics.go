// SPDX-License-Identifier: GPL-2.0-only

package bridge

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	transfersSubmitted *prometheus.CounterVec
	transfersCompleted *prometheus.CounterVec
	transfersCancelled prometheus.Counter
	openHandles        prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		transfersSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usb_bridge_transfers_submitted_total",
			Help: "The total number of asynchronous transfers handed to the device channel.",
		}, []string{"type"}),
		transfersCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usb_bridge_transfers_completed_total",
			Help: "The total number of transfer completions delivered to callers.",
		}, []string{"status"}),
		transfersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "usb_bridge_transfers_cancelled_total",
			Help: "The total number of transfers cancelled before completion.",
		}),
		openHandles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "usb_bridge_open_device_handles",
			Help: "The number of device handles currently open.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.transfersSubmitted, m.transfersCompleted, m.transfersCancelled, m.openHandles)
	}
	return m
}
