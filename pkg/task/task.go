// Package task implements the runtime handle that owns a stage and its
// slot channels, the link operator that concatenates tasks into a
// pipeline, and the terminal Run that drives the whole chain to
// completion. This is the hard part of fluxio: every non-trivial design
// decision (channel ownership, replica fan-out, end-of-stream cascade,
// failure isolation) lives here.
package task

import (
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sourcegraph/conc"

	"firestige.xyz/fluxio/pkg/fluxerr"
	"firestige.xyz/fluxio/pkg/monitor"
	"firestige.xyz/fluxio/pkg/pchan"
	"firestige.xyz/fluxio/pkg/stage"
)

// Source is anything that can spawn its own slot workers, feeding a shared
// set of output senders of type O. Task[I, O] implements Source[O] for any
// I, which is how Combine accepts upstream tasks whose input type differs
// from the primary task's but whose output type matches.
type Source[O any] interface {
	spawnInto(outSenders []pchan.Sender[O], wg *conc.WaitGroup)
	label() string
}

// Task is the runtime wrapper around one stage instance plus its replica
// ("slot") channels. A Task is built via New or WithSlots, optionally
// extended with Combine, and consumed by Link to build up a pipeline; the
// final task in the chain is driven with Run.
type Task[I, O any] struct {
	name      string
	id        string
	component stage.Stage[I, O]
	slots     int

	inputReceivers []pchan.Receiver[I]
	inputSenders   []pchan.Sender[I] // nil once this task has been rebound as a downstream head

	outputSenders   []pchan.Sender[O]
	outputReceivers []pchan.Receiver[O]

	combinedSources []Source[O]

	// pending accumulates every worker spawned for this task and everything
	// chained upstream of it. Linking threads the same group forward instead
	// of copying handles, mirroring the Rust original's ownership transfer.
	pending *conc.WaitGroup
}

// New creates a single-slot Task wrapping component.
func New[I, O any](name string, component stage.Stage[I, O]) Task[I, O] {
	return WithSlots(name, component, 1)
}

// WithSlots creates a Task with `slots` replica workers, each with its own
// disjoint input and output channel. slots must be >= 1.
func WithSlots[I, O any](name string, component stage.Stage[I, O], slots int) Task[I, O] {
	if slots < 1 {
		panic(fluxerr.Configuration("task slots must be >= 1"))
	}

	inSenders := make([]pchan.Sender[I], slots)
	inReceivers := make([]pchan.Receiver[I], slots)
	outSenders := make([]pchan.Sender[O], slots)
	outReceivers := make([]pchan.Receiver[O], slots)
	for i := 0; i < slots; i++ {
		inSenders[i], inReceivers[i] = pchan.New[I]()
		outSenders[i], outReceivers[i] = pchan.New[O]()
	}

	return Task[I, O]{
		name:            name,
		id:              uuid.NewString(),
		component:       component,
		slots:           slots,
		inputReceivers:  inReceivers,
		inputSenders:    inSenders,
		outputSenders:   outSenders,
		outputReceivers: outReceivers,
		pending:         conc.NewWaitGroup(),
	}
}

// ID returns the task's unique run-instance identifier, generated fresh
// every time New or WithSlots is called. It disambiguates log lines from
// two tasks that share a name, e.g. the same pipeline built twice in a test
// table.
func (t Task[I, O]) ID() string {
	return t.id
}

// InputSenders exposes the task's own input senders, for a caller that
// wants to feed this task directly (the head of a pipeline).
func (t Task[I, O]) InputSenders() []pchan.Sender[I] {
	return t.inputSenders
}

// OutputReceivers exposes the task's own output receivers, for a caller
// that wants to drain this task's results directly instead of Linking it
// into a further downstream task (symmetric with InputSenders). Only
// meaningful for a task that is never passed as Link's upstream argument:
// Link always discards upstream's output channels and builds fresh ones,
// so these receivers go stale the moment the task is linked further.
func (t Task[I, O]) OutputReceivers() []pchan.Receiver[O] {
	return t.outputReceivers
}

// Slots returns the task's replica count.
func (t Task[I, O]) Slots() int {
	return t.slots
}

// Combine attaches additional upstream sources whose output will be
// redirected into this task's output channels the next time it is linked
// downstream. The sources are held, not yet spawned.
func (t Task[I, O]) Combine(sources ...Source[O]) Task[I, O] {
	t.combinedSources = append(append([]Source[O]{}, t.combinedSources...), sources...)
	return t
}

// spawnInto runs one worker per slot, each writing round-robin into
// outSenders, and registers them on wg. It implements Source[O].
//
// Every sender handed out is a Clone, never outSenders[i] itself: a clone
// bumps the channel's sender refcount, so the receiving end only observes
// end-of-stream once every worker that was actually given a handle has
// closed its own. This matters whenever t.slots exceeds len(outSenders) —
// several workers then alias the same output channel index — and is why a
// plain unlined copy of outSenders[i] would undercount and close too early.
// ctx.OutputSenders gets its own independent clone set, closed once the last
// of this task's slot workers has returned. A component that bypasses its
// single sender argument to address ctx.OutputSenders directly
// (RoundRobinSplitter) may close them sooner itself; a second Close on the
// same handle is a no-op. The closes run deferred, so a worker whose Run
// panics still releases its handles and downstream still sees end-of-stream.
func (t Task[I, O]) spawnInto(outSenders []pchan.Sender[O], wg *conc.WaitGroup) {
	ctxSenders := make([]pchan.Sender[O], len(outSenders))
	for i, s := range outSenders {
		ctxSenders[i] = s.Clone()
	}
	ctx := stage.Context[I, O]{InputReceivers: t.inputReceivers, OutputSenders: ctxSenders}
	var remaining atomic.Int64
	remaining.Store(int64(t.slots))
	for i := 0; i < t.slots; i++ {
		i := i
		recv := t.inputReceivers[i]
		sender := outSenders[i%len(outSenders)].Clone()
		name, id := t.name, t.id
		wg.Go(func() {
			slog.Debug("stage worker starting", "task", name, "task_id", id, "slot", i)
			defer func() {
				sender.Close()
				recv.Close()
				if remaining.Add(-1) == 0 {
					for j := range ctxSenders {
						ctxSenders[j].Close()
					}
				}
			}()
			t.component.Run(recv, sender, ctx)
			slog.Debug("stage worker completed", "task", name, "task_id", id, "slot", i)
		})
	}
}

func (t Task[I, O]) label() string { return t.name }

// Link concatenates upstream into downstream, producing a new task whose
// stage is downstream's, whose inputs are upstream's (rewired) outputs, and
// whose outputs are downstream's original outputs. See spec.md §4.3.1 for
// the full algorithm; this is a direct transcription.
func Link[I, M, O any](upstream Task[I, M], downstream Task[M, O]) Task[M, O] {
	// Step 1+2: discard upstream's existing output channels, create S fresh
	// ones sized to downstream's slot count, and rebind downstream's inputs
	// to the receiving halves.
	s := downstream.slots
	newSenders := make([]pchan.Sender[M], s)
	newReceivers := make([]pchan.Receiver[M], s)
	for i := 0; i < s; i++ {
		newSenders[i], newReceivers[i] = pchan.New[M]()
	}

	// Step 3: spawn a worker per upstream slot, writing round-robin into the
	// new senders.
	upstream.spawnInto(newSenders, upstream.pending)

	// Step 4: spawn each combined source identically, into the same senders.
	for _, src := range upstream.combinedSources {
		src.spawnInto(newSenders, upstream.pending)
	}

	// newSenders[i] was created holding the one reference pchan.New returns;
	// every worker spawned above was handed its own Clone instead, so this
	// original reference is now surplus to requirements. Close it so the
	// channel's sender refcount reflects only the real workers, who each
	// close their own clone when they finish.
	for _, sender := range newSenders {
		sender.Close()
	}

	// Step 5+6: the resulting task inherits upstream's worker group
	// (already containing everything chained before it) unchanged, and
	// downstream's stage/output channels.
	return Task[M, O]{
		name:            downstream.name,
		id:              downstream.id,
		component:       downstream.component,
		slots:           s,
		inputReceivers:  newReceivers,
		inputSenders:    nil, // downstream's original input senders are now unreachable
		outputSenders:   downstream.outputSenders,
		outputReceivers: downstream.outputReceivers,
		combinedSources: nil,
		pending:         upstream.pending,
	}
}

// Run drives the tail task of a pipeline to completion: it spawns one
// worker per input slot (writing to a discarded null sender), awaits every
// upstream worker accumulated through the chain, then awaits its own tail
// workers. It returns once every worker has returned, logging — but never
// propagating — individual worker faults; the returned error, if non-nil,
// aggregates the fault re-raised by the upstream group and the one re-raised
// by the tail group (conc.WaitGroup re-raises only the first panic of each
// group) for a caller that wants to inspect them.
func (t Task[I, O]) Run() error {
	var errs *multierror.Error

	nullSender, nullReceiver := pchan.New[O]()
	nullReceiver.Close()

	ctx := stage.Context[I, O]{InputReceivers: t.inputReceivers, OutputSenders: t.outputSenders}

	tailWG := conc.NewWaitGroup()
	for i := 0; i < len(t.inputReceivers); i++ {
		i := i
		recv := t.inputReceivers[i]
		name, id := t.name, t.id
		tailWG.Go(func() {
			slog.Debug("tail worker starting", "task", name, "task_id", id, "slot", i)
			t.component.Run(recv, nullSender, ctx)
			recv.Close()
			slog.Debug("tail worker completed", "task", name, "task_id", id, "slot", i)
		})
	}

	if err := awaitGroup(t.pending); err != nil {
		slog.Error("upstream worker faulted", "task", t.name, "task_id", t.id, "error", err)
		errs = multierror.Append(errs, err)
	}
	if err := awaitGroup(tailWG); err != nil {
		slog.Error("tail worker faulted", "task", t.name, "task_id", t.id, "error", err)
		errs = multierror.Append(errs, err)
	}

	return errs.ErrorOrNil()
}

// awaitGroup waits for every goroutine in wg, recovering and converting a
// panic re-raised by conc.WaitGroup.Wait into a WorkerFault instead of
// crashing the process. One panicking stage terminates only that worker.
func awaitGroup(wg *conc.WaitGroup) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fluxerr.WorkerFault(r)
		}
	}()
	wg.Wait()
	return nil
}

// Metrics implements monitor.MonitoredTask: one entry per input slot,
// mirroring the original crate's get_metrics(). Reported per input slot:
// that is where backlog actually accumulates, since Link always rebuilds a
// task's output channels fresh and discards the old ones, leaving the
// output fields held directly on a Task meaningful only as the original
// construction defaults.
func (t Task[I, O]) Metrics() []monitor.Metric {
	metrics := make([]monitor.Metric, 0, len(t.inputReceivers))
	for i, r := range t.inputReceivers {
		cap, has := r.QueueCapacity()
		metrics = append(metrics, monitor.Metric{
			Label: slotLabel("input", i), Len: r.QueueLen(),
			Capacity: cap, HasCapacity: has, LastActivityMS: r.LastRecvMS(),
		})
	}
	return metrics
}

func slotLabel(kind string, i int) string {
	return kind + "[" + strconv.Itoa(i) + "]"
}
