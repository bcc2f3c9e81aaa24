// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LoginRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authapi_login_requests_total",
		Help: "Total number of login attempts",
	}, []string{"result"})

	Registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authapi_registrations_total",
		Help: "Total number of account registrations",
	}, []string{"result"})

	TokenValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authapi_token_validations_total",
		Help: "Bearer token validations by outcome",
	}, []string{"result"})

	Revocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authapi_revocations_total",
		Help: "Token revocations by the backend that recorded them",
	}, []string{"backend"})

	RevocationStoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authapi_revocation_store_errors_total",
		Help: "Errors returned by the networked revocation backend",
	}, []string{"operation"})

	RevocationBackendReady = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "authapi_revocation_backend_ready",
		Help: "1 when the networked revocation backend is connected, 0 otherwise",
	})

	RevocationStoreLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "authapi_revocation_store_duration_seconds",
		Help:    "Latency of networked revocation backend calls",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2.0, 12), // 0.5ms to ~1s
	}, []string{"operation"})
)
