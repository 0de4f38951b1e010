package operators

import (
	"log/slog"
	"regexp"

	"firestige.xyz/fluxio/pkg/fluxerr"
	"firestige.xyz/fluxio/pkg/pchan"
	"firestige.xyz/fluxio/pkg/stage"
)

// Filter is a stateless stage that forwards a message unchanged when its
// condition matches a string-like payload, and drops it otherwise
// (spec.md §4.5).
type Filter[T ~string] struct {
	match func(T) bool
}

// NewFilterPattern compiles pattern as a regular expression matched against
// the payload. Returns a ConfigurationError if pattern doesn't compile.
func NewFilterPattern[T ~string](pattern string) (*Filter[T], error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fluxerr.Configuration("invalid filter pattern: " + err.Error())
	}
	return &Filter[T]{match: func(v T) bool { return re.MatchString(string(v)) }}, nil
}

// NewFilterFunc builds a Filter from an arbitrary boolean predicate over
// the payload.
func NewFilterFunc[T ~string](predicate func(T) bool) *Filter[T] {
	return &Filter[T]{match: predicate}
}

// Run implements stage.Stage.
func (f *Filter[T]) Run(input pchan.Receiver[T], output pchan.Sender[T], _ stage.Context[T, T]) {
	for {
		msg, err := input.Recv()
		if err != nil {
			return
		}
		if !f.match(msg.Payload) {
			continue
		}
		if err := output.Send(msg); err != nil {
			slog.Debug("filter: output closed, stopping", "error", err)
			return
		}
	}
}
