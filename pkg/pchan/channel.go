// Package pchan implements the typed, logically-unbounded multi-producer /
// multi-consumer FIFO that connects pipeline stages. Endpoints are
// cloneable without cloning the payload type; dropping an endpoint (calling
// its Close method) is the canonical close signal spec.md §3 describes.
package pchan

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"firestige.xyz/fluxio/pkg/message"
)

// ErrClosed is returned by Send when every receiver on the channel has
// closed. It signals that downstream has gone away; a sending stage must
// treat it as end-of-stream in the downstream direction and return.
var ErrClosed = errors.New("pchan: all receivers closed")

// ErrEndOfStream is returned by Recv once every sender has closed and the
// buffer has drained. It is not an error condition — it is the normal
// termination signal for a stage's run loop.
var ErrEndOfStream = errors.New("pchan: end of stream")

// defaultGrowChunk is the initial backing-slice capacity for a new channel's
// queue. It only affects allocation behavior, never semantics: the queue
// grows past it like any Go slice.
var defaultGrowChunk = 256

// SetDefaultGrowChunk overrides the initial queue capacity new channels are
// created with. Wired from internal/runtimeconfig at process startup.
func SetDefaultGrowChunk(n int) {
	if n > 0 {
		defaultGrowChunk = n
	}
}

type state[T any] struct {
	mu   sync.Mutex
	cond *sync.Cond
	q    []message.Message[T]

	senders   int
	receivers int
}

func newState[T any](growChunk int) *state[T] {
	s := &state[T]{
		q:         make([]message.Message[T], 0, growChunk),
		senders:   1,
		receivers: 1,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Sender is the write endpoint of a channel. The zero value is not usable;
// obtain one from New, WithSource, or Clone.
type Sender[T any] struct {
	st           *state[T]
	sourceID     string
	lastSendMS   atomic.Int64
	closedOnce   sync.Once
	closed       atomic.Bool
}

// Receiver is the read endpoint of a channel.
type Receiver[T any] struct {
	st          *state[T]
	lastRecvMS  atomic.Int64
	closedOnce  sync.Once
	closed      atomic.Bool
}

// New creates an unbounded channel of Message[T], returning its sender and
// receiver.
func New[T any]() (Sender[T], Receiver[T]) {
	st := newState[T](defaultGrowChunk)
	return Sender[T]{st: st}, Receiver[T]{st: st}
}

// WithSource creates a channel whose sender stamps sourceID onto the
// SourceID field of any outgoing message that doesn't already carry one.
func WithSource[T any](sourceID string) (Sender[T], Receiver[T]) {
	st := newState[T](defaultGrowChunk)
	return Sender[T]{st: st, sourceID: sourceID}, Receiver[T]{st: st}
}

// Clone returns a new Sender sharing the same underlying channel. Both the
// original and the clone must eventually be Closed.
func (s *Sender[T]) Clone() Sender[T] {
	s.st.mu.Lock()
	s.st.senders++
	s.st.mu.Unlock()
	return Sender[T]{st: s.st, sourceID: s.sourceID}
}

// Close drops this sender endpoint. Once every sender sharing the channel
// has closed, blocked receivers observe ErrEndOfStream after draining.
func (s *Sender[T]) Close() {
	s.closedOnce.Do(func() {
		s.closed.Store(true)
		s.st.mu.Lock()
		s.st.senders--
		s.st.mu.Unlock()
		s.st.cond.Broadcast()
	})
}

// Send enqueues msg, stamping the sender's source id if msg doesn't already
// carry one. It never blocks: the underlying queue is unbounded. It returns
// ErrClosed if every receiver on this channel has already closed.
func (s *Sender[T]) Send(msg message.Message[T]) error {
	if s.sourceID != "" && msg.SourceID == "" {
		msg = message.WithSource(msg, s.sourceID)
	}

	s.st.mu.Lock()
	if s.st.receivers == 0 {
		s.st.mu.Unlock()
		return ErrClosed
	}
	s.st.q = append(s.st.q, msg)
	s.st.mu.Unlock()
	s.st.cond.Signal()

	s.lastSendMS.Store(nowMillis())
	return nil
}

// SendWithEventTime is a convenience wrapper over Send for payloads that
// don't yet carry an envelope.
func (s *Sender[T]) SendWithEventTime(payload T, eventTimestampMS int64) error {
	return s.Send(message.WithEventTime(payload, eventTimestampMS))
}

// QueueLen returns the number of messages currently buffered.
func (s *Sender[T]) QueueLen() int {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return len(s.st.q)
}

// QueueCapacity always returns (0, false): fluxio channels are unbounded.
func (s *Sender[T]) QueueCapacity() (int, bool) {
	return 0, false
}

// LastSendMS is the Unix millisecond timestamp of the most recent
// successful Send, or 0 if none has occurred yet.
func (s *Sender[T]) LastSendMS() int64 {
	return s.lastSendMS.Load()
}

// Clone returns a new Receiver sharing the same underlying channel. Both
// the original and the clone must eventually be Closed.
func (r *Receiver[T]) Clone() Receiver[T] {
	r.st.mu.Lock()
	r.st.receivers++
	r.st.mu.Unlock()
	return Receiver[T]{st: r.st}
}

// Close drops this receiver endpoint. Senders observe ErrClosed the next
// time every receiver on the channel has closed and they attempt to Send.
func (r *Receiver[T]) Close() {
	r.closedOnce.Do(func() {
		r.closed.Store(true)
		r.st.mu.Lock()
		r.st.receivers--
		r.st.mu.Unlock()
	})
}

// Recv blocks until a message is available or every sender on the channel
// has closed and the buffer has drained, in which case it returns
// ErrEndOfStream.
func (r *Receiver[T]) Recv() (message.Message[T], error) {
	r.st.mu.Lock()
	for len(r.st.q) == 0 && r.st.senders > 0 {
		r.st.cond.Wait()
	}
	if len(r.st.q) == 0 {
		r.st.mu.Unlock()
		return message.Message[T]{}, ErrEndOfStream
	}
	msg := r.st.q[0]
	r.st.q = r.st.q[1:]
	r.st.mu.Unlock()

	r.lastRecvMS.Store(nowMillis())
	return msg, nil
}

// QueueLen returns the number of messages currently buffered.
func (r *Receiver[T]) QueueLen() int {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return len(r.st.q)
}

// QueueCapacity always returns (0, false): fluxio channels are unbounded.
func (r *Receiver[T]) QueueCapacity() (int, bool) {
	return 0, false
}

// LastRecvMS is the Unix millisecond timestamp of the most recent
// successful Recv, or 0 if none has occurred yet.
func (r *Receiver[T]) LastRecvMS() int64 {
	return r.lastRecvMS.Load()
}

// Equal reports whether r and other are endpoints of the same underlying
// channel. A stage that receives the full slot list via stage.Context can
// use this to recover which of its own slots it is running as, since the
// Stage interface itself carries no slot index.
func (r *Receiver[T]) Equal(other Receiver[T]) bool {
	return r.st == other.st
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
