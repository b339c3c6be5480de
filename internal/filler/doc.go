// Package filler runs the consume-and-persist loop that copies the
// aggregate tick stream into one store.
//
// Each filler bootstraps its store before subscribing, then appends every
// well-formed tick exactly once at the tick's own observation time.
// Malformed payloads are logged and dropped. A failed append stops the
// filler so its supervisor can restart it; ticks published while it is
// down are not replayed.
package filler
