// Package database provides connection management for the two stores and the bus.
//
//   - TimescaleDB (pgxpool): the cold store, full price history and instrument registry
//   - Redis (go-redis): the Pub/Sub bus and the RedisTimeSeries warm store
//
// Each component owns the pools it opens; nothing here is shared across processes.
package database
