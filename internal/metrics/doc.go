// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Ticks published and fan-out publish failures
//   - Filler persisted, dropped (malformed) and failed appends per sink
//   - Which store answered latest-price reads
//   - Active live-tail sessions
//   - Scrape cycle duration and per-instrument errors
//
// A nil *Metrics is valid and records nothing, so components can be built without one in tests.
package metrics
