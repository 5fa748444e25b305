// Package codegen allocates short, human-readable product codes of the form
// "#LT001" from a finite code space.
//
// Allocation is a pure function of its inputs and a random source. It only
// avoids codes that are already known to be taken; the store that persists
// the code is the authoritative uniqueness guard.
package codegen

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// Prefix is prepended to every product code.
	Prefix = "#LT"

	// DefaultMaxAttempts is the number of candidates drawn before giving up.
	DefaultMaxAttempts = 10

	// DefaultSpaceSize is the number of distinct codes (#LT001..#LT999).
	DefaultSpaceSize = 999

	// digits is the zero-padded width of the numeric part.
	digits = 3
)

// Code is a product code such as "#LT042".
type Code = string

// CodeSet is a read-only membership view over codes already in use.
type CodeSet interface {
	Contains(code Code) bool
}

// Set is a map-backed CodeSet.
type Set map[Code]struct{}

// NewSet builds a Set from the given codes.
func NewSet(codes ...Code) Set {
	s := make(Set, len(codes))
	for _, c := range codes {
		s[c] = struct{}{}
	}
	return s
}

// Contains reports whether code is in the set. A nil Set contains nothing.
func (s Set) Contains(code Code) bool {
	_, ok := s[code]
	return ok
}

// Add inserts code into the set.
func (s Set) Add(code Code) {
	s[code] = struct{}{}
}

// Len returns the number of codes in the set.
func (s Set) Len() int {
	return len(s)
}

// Source yields uniform integers in [0, n). *math/rand/v2.Rand satisfies it.
type Source interface {
	IntN(n int) int
}

var (
	// ErrExhausted is returned when every drawn candidate collided.
	ErrExhausted = errors.New("code allocation exhausted")

	// ErrInvalidArgument is returned for non-positive attempt or space sizes.
	ErrInvalidArgument = errors.New("invalid allocation argument")
)

// ExhaustedError carries the bounds that were hit when allocation gave up.
// It matches ErrExhausted under errors.Is.
type ExhaustedError struct {
	Attempts  int
	SpaceSize int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: %d attempts over a space of %d codes", ErrExhausted, e.Attempts, e.SpaceSize)
}

// Is makes errors.Is(err, ErrExhausted) true for *ExhaustedError.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

// Format renders n as a product code, zero-padded to three digits.
func Format(n int) Code {
	return fmt.Sprintf("%s%0*d", Prefix, digits, n)
}

// Parse returns the numeric part of a product code. Only the canonical
// form is accepted: "#LT" followed by exactly three digits, 001..999.
func Parse(code Code) (int, error) {
	rest, ok := strings.CutPrefix(code, Prefix)
	if !ok || len(rest) != digits {
		return 0, fmt.Errorf("malformed product code %q", code)
	}
	for i := 0; i < len(rest); i++ {
		if rest[i] < '0' || rest[i] > '9' {
			return 0, fmt.Errorf("malformed product code %q", code)
		}
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("malformed product code %q", code)
	}
	return n, nil
}

// Valid reports whether code has the product code shape.
func Valid(code Code) bool {
	_, err := Parse(code)
	return err == nil
}

// Allocate draws up to maxAttempts candidates uniformly from [1, spaceSize]
// and returns the first one not contained in existing. It returns an
// *ExhaustedError once every attempt has collided.
func Allocate(existing CodeSet, maxAttempts, spaceSize int, rng Source) (Code, error) {
	if maxAttempts <= 0 {
		return "", fmt.Errorf("%w: max attempts must be positive, got %d", ErrInvalidArgument, maxAttempts)
	}
	if spaceSize <= 0 || spaceSize > DefaultSpaceSize {
		return "", fmt.Errorf("%w: space size must be in [1, %d], got %d", ErrInvalidArgument, DefaultSpaceSize, spaceSize)
	}
	if rng == nil {
		return "", fmt.Errorf("%w: nil random source", ErrInvalidArgument)
	}
	if existing == nil {
		existing = Set(nil)
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate := Format(rng.IntN(spaceSize) + 1)
		if !existing.Contains(candidate) {
			return candidate, nil
		}
	}
	return "", &ExhaustedError{Attempts: maxAttempts, SpaceSize: spaceSize}
}
