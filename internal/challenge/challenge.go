// Package challenge implements the digit-position protocol that gates
// attendance submissions: two distinct random positions within the
// ten-digit national ID, answered with the digits at those positions.
package challenge

import (
	"errors"
	"math/rand"
	"time"

	"asistencia/internal/ident"
)

// ErrInvalidStoredID signals a data integrity problem: the ID on file is
// not ten digits, so every challenge fails closed.
var ErrInvalidStoredID = errors.New("invalid ID on file")

// ErrWrongDigits signals that the submitted digits do not match the ID at
// the challenged positions.
var ErrWrongDigits = errors.New("incorrect digits")

// Challenge is a pair of 1-based digit positions, always distinct and
// within [1,10]. A challenge is spent by any attempt, success or failure,
// and must be regenerated before the next one.
type Challenge struct {
	PosA int `json:"position_a"`
	PosB int `json:"position_b"`
}

// Generator draws challenges from a random source. The zero value is not
// usable; construct with NewGenerator.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator seeds a generator from the wall clock.
func NewGenerator() *Generator {
	return NewGeneratorFromSource(rand.NewSource(time.Now().UnixNano()))
}

// NewGeneratorFromSource builds a generator over an explicit source, so
// tests can pin the sequence.
func NewGeneratorFromSource(src rand.Source) *Generator {
	return &Generator{rng: rand.New(src)}
}

// New draws a fresh challenge: PosA uniform in [1,10], PosB resampled
// until it differs from PosA.
func (g *Generator) New() Challenge {
	a := g.rng.Intn(10) + 1
	b := g.rng.Intn(10) + 1
	for b == a {
		b = g.rng.Intn(10) + 1
	}
	return Challenge{PosA: a, PosB: b}
}

// Verify checks a submission against the stored national ID. Empty or
// non-matching digits reject with ErrWrongDigits; an ID that is not ten
// digits after stripping rejects with ErrInvalidStoredID before any digit
// comparison. The caller regenerates the challenge after every call.
func Verify(ch Challenge, nationalID, digitA, digitB string) error {
	id := ident.DigitsOnly(nationalID)
	if len(id) != 10 {
		return ErrInvalidStoredID
	}
	if digitA != string(id[ch.PosA-1]) || digitB != string(id[ch.PosB-1]) {
		return ErrWrongDigits
	}
	return nil
}
