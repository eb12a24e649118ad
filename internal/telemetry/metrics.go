/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry exposes Prometheus metrics and OpenTelemetry tracing.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP API metrics.
var (
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prevue_api_requests_total",
		Help: "Total HTTP API requests by method, endpoint, and status code.",
	}, []string{"method", "endpoint", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "prevue_api_request_duration_seconds",
		Help:    "HTTP API request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "prevue_api_active_connections",
		Help: "In-flight HTTP requests.",
	})

	APIWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "prevue_api_websocket_connections",
		Help: "Connected WebSocket push clients.",
	})
)

// Database metrics.
var (
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "prevue_database_query_duration_seconds",
		Help:    "Database operation latency by operation and table.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prevue_database_errors_total",
		Help: "Database errors by operation and kind.",
	}, []string{"operation", "kind"})

	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "prevue_database_connections_active",
		Help: "Open database connections.",
	})
)

// Scheduler metrics.
var (
	ScheduleBlocksGeneratedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prevue_schedule_blocks_generated_total",
		Help: "Schedule blocks generated per channel.",
	}, []string{"channel"})

	ScheduleBuildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "prevue_schedule_build_duration_seconds",
		Help:    "Time spent generating one schedule block.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15},
	}, []string{"channel"})

	SchedulerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prevue_scheduler_errors_total",
		Help: "Scheduler failures by stage.",
	}, []string{"stage"})
)

// Library sync metrics.
var (
	LibraryItemsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "prevue_library_items",
		Help: "Items in the current library snapshot.",
	})

	LibrarySyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "prevue_library_sync_duration_seconds",
		Help:    "Duration of a full library sync from Upstream.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
	})
)

// Streaming metrics.
var (
	ProxyRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prevue_stream_proxy_requests_total",
		Help: "HLS proxy requests by upstream status class.",
	}, []string{"status_class"})

	ProxyCoalescedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prevue_stream_proxy_coalesced_total",
		Help: "Proxy requests served by joining an identical in-flight fetch.",
	})

	ActiveTranscodeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "prevue_transcode_sessions_active",
		Help: "Tracked Upstream transcode sessions.",
	})

	SessionsReapedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prevue_transcode_sessions_reaped_total",
		Help: "Idle transcode sessions reaped.",
	})
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
