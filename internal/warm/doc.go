// Package warm is the Warm Store adapter: one RedisTimeSeries series per instrument,
// keyed by ticker, tuned for "append latest" and "read latest".
//
// Commands are issued with go-redis Do so that every TS.CREATE option is explicit
// and replies can be parsed under both RESP2 and RESP3.
//
// Samples are stored at the tick's own observation time, unscaled. RETENTION is
// sent in milliseconds and RedisTimeSeries compares it against those raw timestamps.
package warm
