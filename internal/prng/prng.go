// Package prng implements a linear congruential generator with the classic
// glibc parameters. It is deliberately transparent and simple so that other
// implementations can mimic it bit for bit: given one seed, every consumer
// of the battle logic derives the same sequence, which is what makes whole
// battles replayable from a single integer.
//
// It is meant for battle logic only and is not a general-purpose source of
// randomness.
package prng

import "math/rand"

// LCG parameters mimicking those from glibc.
const (
	Mod int64 = 1 << 31
	mul int64 = 1103515245
	inc int64 = 12345
)

// PRNG is a seeded generator of floats in [0, 1). The zero value is a valid
// generator seeded with 0.
type PRNG struct {
	seed  int64
	value float64
}

// New returns a generator starting from the given seed. Seeds are taken
// modulo Mod so any non-negative integer is acceptable.
func New(seed int64) *PRNG {
	seed %= Mod
	if seed < 0 {
		seed += Mod
	}
	return &PRNG{seed: seed, value: float64(seed) / float64(Mod)}
}

// RandomSeed returns a seed valid for New, drawn from math/rand. Only used
// when the caller did not supply a seed of their own.
func RandomSeed() int64 {
	return rand.Int63n(Mod)
}

// Next advances the generator and returns the new value in [0, 1).
func (p *PRNG) Next() float64 {
	p.seed = (p.seed*mul + inc) % Mod
	p.value = float64(p.seed) / float64(Mod)
	return p.value
}

// Iterate advances the generator count times and returns the last value.
func (p *PRNG) Iterate(count int) float64 {
	for i := 0; i < count; i++ {
		p.Next()
	}
	return p.value
}

// GenerateList returns the next size values.
func (p *PRNG) GenerateList(size int) []float64 {
	values := make([]float64, size)
	for i := range values {
		values[i] = p.Next()
	}
	return values
}

// Seed returns the current seed. Constructing a new PRNG from it continues
// the same sequence.
func (p *PRNG) Seed() int64 {
	return p.seed
}

// Value returns the last value that was generated.
func (p *PRNG) Value() float64 {
	return p.value
}

// Copy returns an independent generator with the same current seed.
func (p *PRNG) Copy() *PRNG {
	return New(p.seed)
}
