// Package operators implements the standard stateless and stateful
// transforms: Map, Filter, Reduce, and Window.
package operators

import (
	"log/slog"

	"firestige.xyz/fluxio/pkg/message"
	"firestige.xyz/fluxio/pkg/pchan"
	"firestige.xyz/fluxio/pkg/stage"
)

// Map is a stateless stage that applies a pure function to every payload,
// carrying the input message's timestamps and source id forward onto the
// output message (spec.md §4.4).
type Map[I, O any] struct {
	transform func(I) O
}

// NewMap builds a Map stage from transform. transform must be total: the
// core does not define behavior for a transform that panics or blocks.
func NewMap[I, O any](transform func(I) O) *Map[I, O] {
	return &Map[I, O]{transform: transform}
}

// Run implements stage.Stage.
func (m *Map[I, O]) Run(input pchan.Receiver[I], output pchan.Sender[O], _ stage.Context[I, O]) {
	for {
		in, err := input.Recv()
		if err != nil {
			return
		}
		out := message.WithNewPayload(in, m.transform(in.Payload))
		if err := output.Send(out); err != nil {
			slog.Debug("map: output closed, stopping", "error", err)
			return
		}
	}
}
