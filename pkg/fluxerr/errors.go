// Package fluxerr holds the error taxonomy shared across fluxio's core
// packages: configuration mistakes surfaced at construction time and
// worker faults surfaced when a stage's Run panics.
package fluxerr

import "golang.org/x/xerrors"

// ErrConfiguration is the sentinel wrapped by every configuration error
// (bad regex, zero slots, mismatched combined-source output type). Surfaced
// at construction time, except RoundRobinSplitter's input/output count
// checks, which panic with it when its Run starts.
var ErrConfiguration = xerrors.New("fluxio: configuration error")

// ErrWorkerFault is the sentinel wrapped when a stage's Run panics. The
// terminal Run call recovers the panic, logs it, and continues awaiting
// every other worker — a WorkerFault never aborts the rest of the pipeline.
var ErrWorkerFault = xerrors.New("fluxio: worker fault")

// Configuration wraps msg as a ConfigurationError.
func Configuration(msg string) error {
	return xerrors.Errorf("%s: %w", msg, ErrConfiguration)
}

// WorkerFault wraps a recovered panic value as a WorkerFault.
func WorkerFault(recovered any) error {
	return xerrors.Errorf("%v: %w", recovered, ErrWorkerFault)
}
