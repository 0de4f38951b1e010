// Package slots implements the fan-out and fan-in stage primitives:
// RoundRobinSplitter distributes one input stream across many output
// slots, Merger gathers many input slots into one output (spec.md §4.8).
package slots

import (
	"sync/atomic"

	"firestige.xyz/fluxio/pkg/fluxerr"
	"firestige.xyz/fluxio/pkg/pchan"
	"firestige.xyz/fluxio/pkg/stage"
)

// RoundRobinSplitter requires exactly one input receiver and more than one
// output sender; it assigns each arriving message to the next output in
// rotation. Grounded on the teacher's dispatch strategy: index assignment
// uses fetch-then-increment (the index used is the counter's value before
// this call's increment), matching the original crate's
// fetch_add(1, SeqCst) % n rather than Go's post-increment Add.
type RoundRobinSplitter[T any] struct {
	next atomic.Uint64
}

// NewRoundRobinSplitter builds a RoundRobinSplitter.
func NewRoundRobinSplitter[T any]() *RoundRobinSplitter[T] {
	return &RoundRobinSplitter[T]{}
}

// Run implements stage.Stage. output is ignored: RoundRobinSplitter writes
// directly to ctx.OutputSenders, since it needs more than the single
// sender the Stage signature otherwise provides. Because it addresses
// ctx.OutputSenders directly rather than through the sender argument the
// Task machinery closes automatically, it is responsible for closing every
// entry itself once its input ends.
func (s *RoundRobinSplitter[T]) Run(input pchan.Receiver[T], _ pchan.Sender[T], ctx stage.Context[T, T]) {
	outs := ctx.OutputSenders
	if len(ctx.InputReceivers) != 1 {
		panic(fluxerr.Configuration("round-robin splitter requires exactly one input receiver"))
	}
	if len(outs) < 2 {
		panic(fluxerr.Configuration("round-robin splitter requires more than one output sender"))
	}
	defer func() {
		for i := range outs {
			outs[i].Close()
		}
	}()

	for {
		msg, err := input.Recv()
		if err != nil {
			return
		}
		n := uint64(len(outs))
		idx := s.next.Add(1) - 1
		if err := outs[idx%n].Send(msg); err != nil {
			return
		}
	}
}
