// Package stage defines the polymorphic unit every fluxio pipeline step
// implements.
package stage

import "firestige.xyz/fluxio/pkg/pchan"

// Context is the read-only view of a stage's own slot siblings, handed to
// Run for the duration of one invocation. Most stages only need the input
// and output passed directly to Run; a splitter consults Context to address
// multiple peers explicitly.
type Context[I, O any] struct {
	InputReceivers []pchan.Receiver[I]
	OutputSenders  []pchan.Sender[O]
}

// Stage is one typed pipeline step. A stage must consume input until
// end-of-stream before Run returns, must not retain input, output, or ctx
// beyond that return, and must not busy-wait: it may only suspend on
// Receiver.Recv, Sender.Send (bounded channels), or external I/O. The core
// has no cancellation primitive of its own (spec non-goal); a stage that
// wants to stop early (a source observing an external abort signal) simply
// returns, closing its output and cascading end-of-stream downstream.
type Stage[I, O any] interface {
	Run(input pchan.Receiver[I], output pchan.Sender[O], ctx Context[I, O])
}

// Func adapts a plain function into a Stage, the way http.HandlerFunc
// adapts a function into an http.Handler.
type Func[I, O any] func(input pchan.Receiver[I], output pchan.Sender[O], ctx Context[I, O])

// Run implements Stage.
func (f Func[I, O]) Run(input pchan.Receiver[I], output pchan.Sender[O], ctx Context[I, O]) {
	f(input, output, ctx)
}
