/*
Package metrics provides Prometheus metrics collection, a background
Collector, and a generic component-health checker for hackd.

Metrics are registered once at package init. Gauges (registered project
count, runtime container counts by status, active job/shell counts) are
sampled periodically by a Collector. Counters (refreshes, resets, auth
failures, ticket sync attempts) are registered too, but no package in this
module increments them, so they stay at zero.

# Usage

A daemon constructs one Collector over its registry, runtime cache, and
supervisor, and starts it alongside the HTTP server:

	c := metrics.NewCollector(reg, cache, sup)
	c.Start()
	defer c.Stop()

	mux.Handle("/metrics", metrics.Handler())

GET /v1/metrics in the daemon's own API renders a JSON summary that its
handler reads directly from the registry, supervisor, runtime cache and
open streams, not from these gauges and counters; /metrics exposes the
raw Prometheus text exposition format for scraping.

# Health

HealthChecker tracks a small set of named components (the registry, the
runtime cache, the gateway) as healthy or unhealthy, and exposes three
HTTP handlers mirroring standard container-orchestrator probes:
HealthHandler reports overall health, ReadyHandler additionally requires
every critical component to be registered and healthy, and
LivenessHandler always reports 200 while the process is running.
*/
package metrics
