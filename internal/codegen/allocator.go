package codegen

import "math/rand/v2"

// Options bounds an allocation. Zero values fall back to the defaults.
type Options struct {
	MaxAttempts int
	SpaceSize   int
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.SpaceSize <= 0 {
		o.SpaceSize = DefaultSpaceSize
	}
	return o
}

// SourceFunc returns the random source used for a single allocation.
type SourceFunc func() Source

// Allocator binds Options to a random source factory. It holds no mutable
// state and is safe for concurrent use as long as the factory is.
type Allocator struct {
	opts      Options
	newSource SourceFunc
}

// NewAllocator returns an Allocator drawing from the process-wide
// math/rand/v2 generator.
func NewAllocator(opts Options) *Allocator {
	return &Allocator{
		opts:      opts.withDefaults(),
		newSource: func() Source { return globalSource{} },
	}
}

// NewAllocatorWithSource returns an Allocator that asks fn for a source on
// every call. Tests use this to script candidate sequences.
func NewAllocatorWithSource(opts Options, fn SourceFunc) *Allocator {
	return &Allocator{opts: opts.withDefaults(), newSource: fn}
}

// Options returns the effective bounds.
func (a *Allocator) Options() Options {
	return a.opts
}

// Allocate returns a code not contained in existing.
func (a *Allocator) Allocate(existing CodeSet) (Code, error) {
	return Allocate(existing, a.opts.MaxAttempts, a.opts.SpaceSize, a.newSource())
}

// globalSource uses the top-level math/rand/v2 functions, which are safe for
// concurrent use.
type globalSource struct{}

func (globalSource) IntN(n int) int {
	return rand.IntN(n)
}
