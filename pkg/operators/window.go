package operators

import (
	"log/slog"
	"time"

	"firestige.xyz/fluxio/pkg/message"
	"firestige.xyz/fluxio/pkg/pchan"
	"firestige.xyz/fluxio/pkg/stage"
)

// WindowTrigger selects how a Window decides a batch is complete. Evaluated
// only on message arrival: the core has no per-task timer goroutine, so a
// quiet stream produces no output until its next message arrives or the
// stream ends (spec.md §4.7).
type WindowTrigger struct {
	kind     triggerKind
	count    int
	millis   int64
	windowMS int64
	slideMS  int64
}

type triggerKind int

const (
	triggerCount triggerKind = iota
	triggerTime
	triggerSliding
)

// CountWindow batches every n consecutive messages.
func CountWindow(n int) WindowTrigger {
	return WindowTrigger{kind: triggerCount, count: n}
}

// TimeWindow emits the buffered batch once real wall-clock time elapsed
// since the window's last emission reaches durationMillis, regardless of
// the buffered messages' own event timestamps (spec.md §4.7: "emit when
// wall-clock elapsed since last emission ≥ D"). The clock starts at
// construction, matching the original crate's Instant::now() baseline.
func TimeWindow(durationMillis int64) WindowTrigger {
	return WindowTrigger{kind: triggerTime, millis: durationMillis}
}

// SlidingWindow emits, every slideMillis of elapsed wall-clock time, a
// snapshot of every buffered item whose event timestamp lies within the
// trailing windowMillis; items older than that are evicted first. Unlike
// Count and Time, the buffer is not drained on emission — it persists so
// the next slide can continue trimming it.
func SlidingWindow(windowMillis, slideMillis int64) WindowTrigger {
	return WindowTrigger{kind: triggerSliding, windowMS: windowMillis, slideMS: slideMillis}
}

// Window is a stateful stage that buffers messages and periodically emits
// the buffered payloads as a batch, per its WindowTrigger (spec.md §4.7).
type Window[T any] struct {
	trigger WindowTrigger

	buf           []message.Message[T]
	lastTriggerMS int64
}

// NewWindow builds a Window stage driven by trigger. The wall-clock baseline
// used by Time and Sliding triggers starts now, before the stage has ever
// seen an input.
func NewWindow[T any](trigger WindowTrigger) *Window[T] {
	return &Window[T]{trigger: trigger, lastTriggerMS: nowMillis()}
}

// Run implements stage.Stage. Every replica slot of a task calls Run on the
// same Window, so each call works on its own copy: a private buffer and
// trigger clock, seeded from the construction-time baseline.
func (w *Window[T]) Run(input pchan.Receiver[T], output pchan.Sender[[]T], _ stage.Context[T, []T]) {
	w = &Window[T]{trigger: w.trigger, lastTriggerMS: w.lastTriggerMS}
	for {
		in, err := input.Recv()
		if err != nil {
			if len(w.buf) > 0 {
				w.emit(output, true)
			}
			return
		}

		w.buf = append(w.buf, in)

		switch w.trigger.kind {
		case triggerCount:
			if len(w.buf) >= w.trigger.count {
				if !w.emit(output, true) {
					return
				}
			}
		case triggerTime:
			if nowMillis()-w.lastTriggerMS >= w.trigger.millis {
				if !w.emit(output, true) {
					return
				}
			}
		case triggerSliding:
			if nowMillis()-w.lastTriggerMS >= w.trigger.slideMS {
				cutoff := in.EventTimestampMS - w.trigger.windowMS
				w.evictOlderThan(cutoff)
				if !w.emit(output, false) {
					return
				}
			}
		}
	}
}

// evictOlderThan drops every buffered message whose event timestamp is
// below cutoff, in place.
func (w *Window[T]) evictOlderThan(cutoff int64) {
	kept := w.buf[:0]
	for _, m := range w.buf {
		if m.EventTimestampMS >= cutoff {
			kept = append(kept, m)
		}
	}
	w.buf = kept
}

// emit sends the current buffer as one batch message and resets the
// trigger's wall-clock baseline. When drain is true (Count, Time, and the
// final end-of-stream flush) the buffer is cleared afterward; Sliding
// passes false so the next arrival continues trimming the same buffer.
func (w *Window[T]) emit(output pchan.Sender[[]T], drain bool) bool {
	batch := make([]T, len(w.buf))
	for i, m := range w.buf {
		batch[i] = m.Payload
	}
	w.lastTriggerMS = nowMillis()

	if drain {
		w.buf = nil
	}

	if err := output.Send(message.New(batch)); err != nil {
		slog.Debug("window: output closed, stopping", "error", err)
		return false
	}
	return true
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
