/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package metrics defines Prometheus metrics for the storefront API.
//
// All metrics are registered with the package Registry, which is served on
// /metrics.
//
// Metric naming follows Prometheus conventions:
//   - storefront_ prefix for all custom metrics
//   - _total suffix for counters
//   - _seconds suffix for duration histograms
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every storefront metric plus Go runtime collectors.
var Registry = prometheus.NewRegistry()

var (
	// HTTPRequestsTotal counts served requests by method, route pattern and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_http_requests_total",
			Help: "Total HTTP requests by method, route and status code.",
		},
		[]string{"method", "route", "code"},
	)

	// HTTPRequestDurationSeconds is a histogram of handler latency by route.
	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// RateLimitRejectionsTotal counts 429 responses by endpoint class.
	RateLimitRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_ratelimit_rejections_total",
			Help: "Requests rejected by the rate limiter.",
		},
		[]string{"class"},
	)

	// CSRFTokensIssuedTotal counts issued CSRF tokens.
	CSRFTokensIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_csrf_tokens_issued_total",
			Help: "CSRF tokens issued.",
		},
	)

	// CSRFRejectionsTotal counts CSRF validation failures by reason.
	CSRFRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_csrf_rejections_total",
			Help: "Requests rejected by the CSRF guard.",
		},
		[]string{"reason"},
	)

	// CSRFTokensSweptTotal counts expired tokens removed by the sweeper.
	CSRFTokensSweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_csrf_tokens_swept_total",
			Help: "Expired CSRF tokens removed by the periodic sweep.",
		},
	)

	// AuthFailuresTotal counts rejected credentials by reason.
	AuthFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_auth_failures_total",
			Help: "Authentication failures by reason.",
		},
		[]string{"reason"},
	)

	// AuthorizationDeniedTotal counts role and ownership denials.
	AuthorizationDeniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_authorization_denied_total",
			Help: "Authorization denials by check (role, ownership).",
		},
		[]string{"check"},
	)

	// CartOperationsTotal counts cart engine calls by operation and result.
	CartOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cart_operations_total",
			Help: "Cart engine operations by operation and result.",
		},
		[]string{"operation", "result"},
	)

	// CartOperationDurationSeconds is a histogram of cart engine latency.
	CartOperationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_cart_operation_duration_seconds",
			Help:    "Duration of cart engine operations in seconds.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"operation"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		RateLimitRejectionsTotal,
		CSRFTokensIssuedTotal,
		CSRFRejectionsTotal,
		CSRFTokensSweptTotal,
		AuthFailuresTotal,
		AuthorizationDeniedTotal,
		CartOperationsTotal,
		CartOperationDurationSeconds,
	)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDurationSeconds.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordCartOperation records a cart engine call. err == nil counts as "ok".
func RecordCartOperation(operation string, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	CartOperationsTotal.WithLabelValues(operation, result).Inc()
	CartOperationDurationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}
