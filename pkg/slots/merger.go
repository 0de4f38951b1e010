package slots

import (
	"log/slog"

	"firestige.xyz/fluxio/pkg/pchan"
	"firestige.xyz/fluxio/pkg/stage"
)

// Merger is an identity pass-through stage meant to be run as the single
// slot of a downstream task linked from a multi-slot upstream. It performs
// no merging logic itself: Link's ordinary slot-to-channel assignment
// (every upstream slot maps to output index i % downstream.Slots()) already
// collapses N upstream slots onto one channel the moment the downstream
// task has exactly one slot. Merger exists to make that fan-in point an
// explicit, independently named and metered stage rather than relying on
// whatever stage happens to come next.
type Merger[T any] struct{}

// NewMerger builds a Merger. Use it with task.WithSlots(name, NewMerger[T](), 1)
// linked downstream of a task with more than one slot.
func NewMerger[T any]() *Merger[T] {
	return &Merger[T]{}
}

// Run implements stage.Stage.
func (m *Merger[T]) Run(input pchan.Receiver[T], output pchan.Sender[T], _ stage.Context[T, T]) {
	for {
		msg, err := input.Recv()
		if err != nil {
			return
		}
		if err := output.Send(msg); err != nil {
			slog.Debug("merger: output closed, stopping", "error", err)
			return
		}
	}
}
