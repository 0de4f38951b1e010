// Package message defines the envelope every fluxio stage produces and
// consumes.
package message

import "time"

// Message is an immutable envelope carrying a payload plus the metadata
// that survives transformation: when the event happened, when fluxio first
// saw it, and which source produced it. Every stage in a pipeline emits
// Message[T]; a source stage is responsible for wrapping raw input into one.
type Message[T any] struct {
	Payload             T
	EventTimestampMS     int64
	IngestionTimestampMS int64
	SourceID             string
}

// New wraps payload with the current time as both event and ingestion
// timestamp.
func New[T any](payload T) Message[T] {
	now := nowMillis()
	return Message[T]{
		Payload:              payload,
		EventTimestampMS:     now,
		IngestionTimestampMS: now,
	}
}

// WithEventTime wraps payload, stamping eventTimestampMS as the event time
// and the current time as the ingestion time.
func WithEventTime[T any](payload T, eventTimestampMS int64) Message[T] {
	return Message[T]{
		Payload:              payload,
		EventTimestampMS:     eventTimestampMS,
		IngestionTimestampMS: nowMillis(),
	}
}

// WithNewPayload derives a Message[U] carrying newPayload while preserving
// m's timestamps and source id. This is how Map carries metadata forward.
func WithNewPayload[T, U any](m Message[T], newPayload U) Message[U] {
	return Message[U]{
		Payload:              newPayload,
		EventTimestampMS:     m.EventTimestampMS,
		IngestionTimestampMS: m.IngestionTimestampMS,
		SourceID:             m.SourceID,
	}
}

// WithSource returns a copy of m stamped with sourceID. A Sender created via
// pchan.WithSource calls this on any outgoing message whose SourceID is
// still empty.
func WithSource[T any](m Message[T], sourceID string) Message[T] {
	m.SourceID = sourceID
	return m
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
