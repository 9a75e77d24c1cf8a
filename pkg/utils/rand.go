package utils

import (
	"math/rand"
	"time"
)

// RandSource is a seedable random number generator. Not safe for
// concurrent use; each search or sampling run owns its own source.
type RandSource struct {
	rng *rand.Rand
}

// NewRandSource creates a new random source with the given seed
func NewRandSource(seed int64) *RandSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandSource{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Float64 returns a random float64 in [0.0, 1.0)
func (r *RandSource) Float64() float64 {
	return r.rng.Float64()
}

// Intn returns a random int in [0, n)
func (r *RandSource) Intn(n int) int {
	return r.rng.Intn(n)
}

// Perm returns a random permutation of [0, n)
func (r *RandSource) Perm(n int) []int {
	return r.rng.Perm(n)
}

// Jitter returns a value uniformly distributed in [-magnitude, +magnitude)
func (r *RandSource) Jitter(magnitude float64) float64 {
	return (r.rng.Float64()*2 - 1) * magnitude
}
