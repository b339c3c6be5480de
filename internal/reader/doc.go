// Package reader is the Read Service: latest-price reconciliation across
// the warm and cold stores, history queries and live tails.
//
// Latest consults the warm store first. Only an absent or empty series
// falls back to the cold store; any other warm failure is returned.
package reader
