// Package server exposes the Read Service over HTTP.
//
// Routes:
//   - GET /api/stocks/tickers            registered instruments
//   - GET /api/stocks/{ticker}           price history (limit, start_dt, end_dt)
//   - GET /api/stocks/{ticker}/latest    reconciled latest price
//   - GET /api/stocks/ws?ticker=         WebSocket live tail
//   - GET /health                        store and bus connectivity
//   - GET /metrics                       Prometheus exposition
package server
