package operators

import (
	"log/slog"
	"sync"

	"firestige.xyz/fluxio/pkg/message"
	"firestige.xyz/fluxio/pkg/pchan"
	"firestige.xyz/fluxio/pkg/stage"
)

// Reduce is a stateful stage folding every input payload into an
// accumulator and emitting the running value after each update
// (spec.md §4.6).
//
// Accumulator ownership is an explicit decision this module makes where
// the distilled spec left an open question: by default every replica slot
// folds into its own private accumulator, seeded fresh from initial —
// sharing one accumulator across replicas serializes every slot behind a
// single mutex and defeats the point of running more than one. Call
// Shared() to opt into one accumulator visible to every replica, at that
// cost, when the use case genuinely needs a single running total across
// parallel workers.
type Reduce[I, O any] struct {
	initial func() O
	reduce  func(acc *O, in I)
	shared  bool

	mu  sync.Mutex
	acc O
	set bool

	lastMu sync.Mutex
	last   O
}

// NewReduce builds a disjoint (one accumulator per replica) Reduce stage.
// initial is called once per replica to produce that replica's starting
// value.
func NewReduce[I, O any](initial func() O, reduce func(acc *O, in I)) *Reduce[I, O] {
	return &Reduce[I, O]{initial: initial, reduce: reduce}
}

// Shared switches r to a single accumulator shared by every replica slot,
// protected by a mutex held for the duration of each fold-then-snapshot.
func (r *Reduce[I, O]) Shared() *Reduce[I, O] {
	r.shared = true
	return r
}

// GetResult returns the most recently published accumulator value. In
// Shared mode this is the single true running total. In the default
// disjoint mode it is a best-effort snapshot of whichever replica last
// emitted — meaningful when the task has exactly one slot, advisory
// otherwise; inspect the output stream itself for the authoritative
// per-replica values.
func (r *Reduce[I, O]) GetResult() O {
	r.lastMu.Lock()
	defer r.lastMu.Unlock()
	return r.last
}

// Run implements stage.Stage.
func (r *Reduce[I, O]) Run(input pchan.Receiver[I], output pchan.Sender[O], _ stage.Context[I, O]) {
	var local O
	if !r.shared {
		local = r.initial()
	}

	for {
		in, err := input.Recv()
		if err != nil {
			return
		}

		var snapshot O
		if r.shared {
			r.mu.Lock()
			if !r.set {
				r.acc = r.initial()
				r.set = true
			}
			r.reduce(&r.acc, in.Payload)
			snapshot = r.acc
			r.mu.Unlock()
		} else {
			r.reduce(&local, in.Payload)
			snapshot = local
		}

		r.lastMu.Lock()
		r.last = snapshot
		r.lastMu.Unlock()

		if err := output.Send(message.New(snapshot)); err != nil {
			slog.Debug("reduce: output closed, stopping", "error", err)
			return
		}
	}
}
