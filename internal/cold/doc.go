// Package cold is the TimescaleDB adapter for durable tick history.
//
// Tables:
//   - prices: hypertable partitioned on ts, indexed on (ticker, ts DESC)
//   - tickers: instrument registry, one row per known instrument
//
// Rows are append-only. Bootstrap is idempotent and safe to run from
// several fillers at once: registry inserts use ON CONFLICT DO NOTHING and
// a seed row is written only for registry rows the same transaction created.
package cold
