// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics exposes Prometheus counters/gauges for a pipeline
// run, scraped via the `--metrics-addr` flag's `/metrics` endpoint.
// Grounded on cmd/cie/index.go's metrics-http wiring (promhttp.Handler
// behind an optional listener); the counters themselves are new, since
// no example repo registers custom collectors of its own.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds one run's collectors. Each translate invocation builds
// its own Registry against a private prometheus.Registerer so repeated
// test runs in the same process never collide on collector names.
type Registry struct {
	BlocksTotal    prometheus.Gauge
	BlocksDone     prometheus.Counter
	Retries        prometheus.Counter
	ProviderErrors *prometheus.CounterVec
	Concurrency    prometheus.Gauge
	InputTokens    prometheus.Counter
	OutputTokens   prometheus.Counter
}

// New builds a Registry and registers its collectors against reg. Pass
// prometheus.DefaultRegisterer for process-wide `/metrics` scraping.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		BlocksTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "translate_blocks_total",
			Help: "Number of blocks chunked for the current run.",
		}),
		BlocksDone: factory.NewCounter(prometheus.CounterOpts{
			Name: "translate_blocks_done_total",
			Help: "Number of blocks that completed translation.",
		}),
		Retries: factory.NewCounter(prometheus.CounterOpts{
			Name: "translate_retries_total",
			Help: "Number of per-block retry attempts issued.",
		}),
		ProviderErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "translate_provider_errors_total",
			Help: "Provider/parser/line-policy failures by classification.",
		}, []string{"kind"}),
		Concurrency: factory.NewGauge(prometheus.GaugeOpts{
			Name: "translate_concurrency_current",
			Help: "Current in-flight request limit (fixed or adaptive).",
		}),
		InputTokens: factory.NewCounter(prometheus.CounterOpts{
			Name: "translate_input_tokens_total",
			Help: "Total prompt tokens consumed.",
		}),
		OutputTokens: factory.NewCounter(prometheus.CounterOpts{
			Name: "translate_output_tokens_total",
			Help: "Total completion tokens generated.",
		}),
	}
}

// Noop returns a Registry whose collectors are registered against a
// throwaway registry, for callers that want the interface without
// exposing a `/metrics` endpoint.
func Noop() *Registry {
	return New(prometheus.NewRegistry())
}
