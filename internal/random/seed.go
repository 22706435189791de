// Package random provides seeded random sources for graph identifiers.
//
// Seeds come from crypto/rand; the float sources built on them are
// goroutine-safe pseudo-random generators used for page-number draws and
// variant sampling weights.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sync"
)

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}

	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// Float64Source returns values in [0,1). It must be safe for concurrent use.
type Float64Source func() float64

// NewFloat64Source returns a source seeded from crypto/rand.
func NewFloat64Source() (Float64Source, error) {
	seed, err := NewSeed()
	if err != nil {
		return nil, err
	}
	return SeededFloat64Source(seed), nil
}

// SeededFloat64Source returns a deterministic source for seed.
func SeededFloat64Source(seed int64) Float64Source {
	var mu sync.Mutex
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
	return func() float64 {
		mu.Lock()
		defer mu.Unlock()
		return rng.Float64()
	}
}

// Fixed returns a source that yields values in order and then repeats the
// last one. It is meant for tests.
func Fixed(values ...float64) Float64Source {
	var (
		mu   sync.Mutex
		next int
	)
	return func() float64 {
		mu.Lock()
		defer mu.Unlock()
		if len(values) == 0 {
			return 0
		}
		if next >= len(values) {
			return values[len(values)-1]
		}
		v := values[next]
		next++
		return v
	}
}
