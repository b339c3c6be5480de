// Package pricegen produces synthetic price movements.
package pricegen

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Walker moves a price one unit up or down with equal probability.
// It is safe for concurrent use.
type Walker struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewWalker returns a Walker seeded with seed. A zero seed uses the clock.
func NewWalker(seed uint64) *Walker {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Walker{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Step returns price moved by -1 or +1, never below zero.
func (w *Walker) Step(price int64) int64 {
	w.mu.Lock()
	up := w.rng.IntN(2) == 1
	w.mu.Unlock()

	if up {
		return price + 1
	}
	if price <= 0 {
		return 0
	}
	return price - 1
}
