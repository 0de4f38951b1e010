// Package testutil provides small fixture stages used to exercise pipeline
// wiring in tests without depending on any real I/O: sources that emit a
// fixed sequence, and collectors that record whatever reaches them under a
// mutex for later assertions. Grounded on the original crate's own
// test_utils module.
package testutil

import (
	"sync"
	"time"

	"firestige.xyz/fluxio/pkg/message"
	"firestige.xyz/fluxio/pkg/pchan"
	"firestige.xyz/fluxio/pkg/stage"
)

// NumberSource emits 0..count-1 once, then returns.
type NumberSource struct {
	Count int
}

// NewNumberSource builds a NumberSource emitting count sequential integers.
// count defaults to 3, matching the fixture's original behavior.
func NewNumberSource(count int) *NumberSource {
	if count <= 0 {
		count = 3
	}
	return &NumberSource{Count: count}
}

// Run implements stage.Stage.
func (s *NumberSource) Run(_ pchan.Receiver[struct{}], output pchan.Sender[int], _ stage.Context[struct{}, int]) {
	for i := 0; i < s.Count; i++ {
		if err := output.Send(message.New(i)); err != nil {
			return
		}
	}
}

// NumberDoubler doubles every integer it receives.
type NumberDoubler struct{}

// Run implements stage.Stage.
func (NumberDoubler) Run(input pchan.Receiver[int], output pchan.Sender[int], _ stage.Context[int, int]) {
	for {
		in, err := input.Recv()
		if err != nil {
			return
		}
		if err := output.Send(message.New(in.Payload * 2)); err != nil {
			return
		}
	}
}

// NumberCollector records every integer it receives, in arrival order.
type NumberCollector struct {
	mu      sync.Mutex
	results []int
}

// NewNumberCollector builds an empty NumberCollector.
func NewNumberCollector() *NumberCollector {
	return &NumberCollector{}
}

// Results returns a snapshot of everything collected so far.
func (c *NumberCollector) Results() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int{}, c.results...)
}

// Run implements stage.Stage.
func (c *NumberCollector) Run(input pchan.Receiver[int], _ pchan.Sender[struct{}], _ stage.Context[int, struct{}]) {
	for {
		in, err := input.Recv()
		if err != nil {
			return
		}
		c.mu.Lock()
		c.results = append(c.results, in.Payload)
		c.mu.Unlock()
	}
}

// StringSource emits a fixed sequence of strings once, then returns.
type StringSource struct {
	Strings []string
}

// NewStringSource builds a StringSource emitting strings in order. With no
// arguments it defaults to {"0", "1", "2"}, matching the fixture's original
// behavior.
func NewStringSource(strings ...string) *StringSource {
	if len(strings) == 0 {
		strings = []string{"0", "1", "2"}
	}
	return &StringSource{Strings: strings}
}

// Run implements stage.Stage.
func (s *StringSource) Run(_ pchan.Receiver[struct{}], output pchan.Sender[string], _ stage.Context[struct{}, string]) {
	for _, v := range s.Strings {
		if err := output.Send(message.New(v)); err != nil {
			return
		}
	}
}

// StringCollector records every string it receives, in arrival order.
type StringCollector struct {
	mu      sync.Mutex
	results []string
}

// NewStringCollector builds an empty StringCollector.
func NewStringCollector() *StringCollector {
	return &StringCollector{}
}

// Results returns a snapshot of everything collected so far.
func (c *StringCollector) Results() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.results...)
}

// Run implements stage.Stage.
func (c *StringCollector) Run(input pchan.Receiver[string], _ pchan.Sender[struct{}], _ stage.Context[string, struct{}]) {
	for {
		in, err := input.Recv()
		if err != nil {
			return
		}
		c.mu.Lock()
		c.results = append(c.results, in.Payload)
		c.mu.Unlock()
	}
}

// DelayedItem pairs a string with the delay to wait before sending it. A
// nonzero EventTimestampMS overrides the message's event timestamp instead
// of stamping the real send time, for simulating a replayed/backfilled
// stream whose event clock runs independently of wall-clock send time.
type DelayedItem struct {
	Value            string
	Delay            time.Duration
	EventTimestampMS int64
}

// DelayedStringSource emits each item after waiting its configured delay,
// useful for exercising time-based triggers deterministically in tests.
type DelayedStringSource struct {
	Items []DelayedItem
}

// NewDelayedStringSource builds a DelayedStringSource over items.
func NewDelayedStringSource(items ...DelayedItem) *DelayedStringSource {
	return &DelayedStringSource{Items: items}
}

// Run implements stage.Stage.
func (s *DelayedStringSource) Run(_ pchan.Receiver[struct{}], output pchan.Sender[string], _ stage.Context[struct{}, string]) {
	for _, item := range s.Items {
		time.Sleep(item.Delay)
		msg := message.New(item.Value)
		if item.EventTimestampMS != 0 {
			msg = message.WithEventTime(item.Value, item.EventTimestampMS)
		}
		if err := output.Send(msg); err != nil {
			return
		}
	}
}
