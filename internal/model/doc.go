// Package model defines shared data types used across the tick pipeline.
//
// Conventions:
//   - Prices: int64 in the instrument's smallest unit, not validated (negative values pass through)
//   - Timestamps: int64 seconds since Unix epoch, assigned by the producer
//   - Instruments: ticker strings, also the warm series key and the cold registry key
package model
