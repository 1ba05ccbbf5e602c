// Package draw provides the single seeded random stream every generator, pool and
// anomaly policy of a run draws from.
//
// A Source is not safe for concurrent use. Generation is sequential and the order of
// calls on the Source is part of the output contract: the same seed and the same call
// order always yield the same values.
package draw

import (
	"encoding/binary"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// Source is a deterministic pseudo-random stream.
type Source struct {
	rng  *rand.Rand
	// buf holds bytes of a drawn word not yet consumed by Read.
	buf  [8]byte
	left int
}

// New returns a Source seeded with seed.
func New(seed int64) *Source {
	s := uint64(seed)
	return &Source{
		rng: rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15)),
	}
}

// Float64 returns a uniform value in [0, 1).
func (s *Source) Float64() float64 {
	return s.rng.Float64()
}

// Uniform returns a uniform value in [lo, hi).
func (s *Source) Uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*s.rng.Float64()
}

// Intn returns a uniform value in [0, n). It panics if n <= 0.
func (s *Source) Intn(n int) int {
	return s.rng.IntN(n)
}

// Exp returns an exponentially distributed value with the given scale (mean).
func (s *Source) Exp(scale float64) float64 {
	return s.rng.ExpFloat64() * scale
}

// Bernoulli returns true with probability p. It always consumes exactly one draw,
// whatever p is.
func (s *Source) Bernoulli(p float64) bool {
	return s.rng.Float64() < p
}

// Choice returns the index of a uniformly chosen element out of n.
func (s *Source) Choice(n int) int {
	return s.rng.IntN(n)
}

// Pick returns a uniformly chosen element of items.
func Pick[T any](s *Source, items []T) T {
	return items[s.Choice(len(items))]
}

// Duration returns a uniform duration in [0, max) at nanosecond resolution.
// A non-positive max returns zero without consuming a draw.
func (s *Source) Duration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(s.rng.Int64N(int64(max)))
}

// DurationBetween returns a uniform duration in [lo, hi).
func (s *Source) DurationBetween(lo, hi time.Duration) time.Duration {
	return lo + s.Duration(hi-lo)
}

// Read fills p with pseudo-random bytes from the stream. It never fails.
func (s *Source) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if s.left == 0 {
			binary.LittleEndian.PutUint64(s.buf[:], s.rng.Uint64())
			s.left = len(s.buf)
		}
		c := copy(p[n:], s.buf[len(s.buf)-s.left:])
		s.left -= c
		n += c
	}
	return n, nil
}

// UUID returns a version 4 UUID built from 16 bytes of the stream.
func (s *Source) UUID() uuid.UUID {
	id, err := uuid.NewRandomFromReader(s)
	if err != nil {
		// Read never fails.
		panic(err)
	}
	return id
}

// Digits returns a string of n decimal digits.
func (s *Source) Digits(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('0' + s.rng.IntN(10))
	}
	return string(b)
}

// Valid reports whether p is a usable probability.
func Valid(p float64) bool {
	return !math.IsNaN(p) && p >= 0 && p <= 1
}
