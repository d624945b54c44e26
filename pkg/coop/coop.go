// Package coop implements cooperative yielding for long-running graph stages.
//
// The pipeline is single-threaded. Hosts that run it on an interactive loop
// inject a Yield callback which is invoked every fixed batch of work units; at
// the same points the context is checked so a superseded rebuild stops early.
package coop

import "context"

// DefaultEvery is the default number of work units between yield points.
const DefaultEvery = 1000

// Scheduler counts work units and hands control back to the host at fixed
// boundaries. A nil *Scheduler is valid and never yields or cancels.
type Scheduler struct {
	ctx   context.Context
	yield func()
	every int
	count int

	// Yields is the number of yield points reached so far.
	Yields int
}

// New returns a Scheduler that calls yield (may be nil) every `every` units.
func New(ctx context.Context, yield func(), every int) *Scheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	if every <= 0 {
		every = DefaultEvery
	}
	return &Scheduler{ctx: ctx, yield: yield, every: every}
}

// Tick records units of work. When the batch boundary is crossed it yields and
// returns the context error, if any.
func (s *Scheduler) Tick(units int) error {
	if s == nil {
		return nil
	}
	s.count += units
	if s.count < s.every {
		return nil
	}
	s.count %= s.every
	return s.Point()
}

// Point is an unconditional yield point, used once per power-iteration sweep.
func (s *Scheduler) Point() error {
	if s == nil {
		return nil
	}
	s.Yields++
	if s.yield != nil {
		s.yield()
	}
	return s.ctx.Err()
}

// Err reports cancellation without yielding.
func (s *Scheduler) Err() error {
	if s == nil {
		return nil
	}
	return s.ctx.Err()
}
