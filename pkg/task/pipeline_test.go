package task_test

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/fluxio/pkg/operators"
	"firestige.xyz/fluxio/pkg/pchan"
	"firestige.xyz/fluxio/pkg/slots"
	"firestige.xyz/fluxio/pkg/stage"
	"firestige.xyz/fluxio/pkg/task"
	"firestige.xyz/fluxio/pkg/testutil"
)

// S1: Source([0,1,2]) | Doubler | Collector ⟹ [0, 2, 4].
func TestSourceDoublerCollector(t *testing.T) {
	source := task.New("source", testutil.NewNumberSource(3))
	doubler := task.New("doubler", testutil.NumberDoubler{})
	collector := testutil.NewNumberCollector()
	sink := task.New("collector", collector)

	pipeline := task.Link(task.Link(source, doubler), sink)
	require.NoError(t, pipeline.Run())

	assert.Equal(t, []int{0, 2, 4}, collector.Results())
}

// S2: Source([0,1,2]) | Doubler | Doubler | Collector ⟹ [0, 4, 8].
func TestSourceDoublerDoublerCollector(t *testing.T) {
	source := task.New("source", testutil.NewNumberSource(3))
	doubler1 := task.New("doubler1", testutil.NumberDoubler{})
	doubler2 := task.New("doubler2", testutil.NumberDoubler{})
	collector := testutil.NewNumberCollector()
	sink := task.New("collector", collector)

	pipeline := task.Link(task.Link(task.Link(source, doubler1), doubler2), sink)
	require.NoError(t, pipeline.Run())

	assert.Equal(t, []int{0, 4, 8}, collector.Results())
}

// S3: Source(["0","1","2"]) | Filter(regex "2") | Collector ⟹ ["2"].
func TestSourceFilterPatternCollector(t *testing.T) {
	source := task.New("source", testutil.NewStringSource("0", "1", "2"))
	filter, err := operators.NewFilterPattern[string]("2")
	require.NoError(t, err)
	filterTask := task.New("filter", filter)
	collector := testutil.NewStringCollector()
	sink := task.New("collector", collector)

	pipeline := task.Link(task.Link(source, filterTask), sink)
	require.NoError(t, pipeline.Run())

	assert.Equal(t, []string{"2"}, collector.Results())
}

// S4: Source(["0","1","2"]) | Filter(λs. parse(s) even) | Collector ⟹ ["0","2"].
func TestSourceFilterFuncCollector(t *testing.T) {
	source := task.New("source", testutil.NewStringSource("0", "1", "2"))
	filter := operators.NewFilterFunc(func(s string) bool {
		n, err := strconv.Atoi(s)
		return err == nil && n%2 == 0
	})
	filterTask := task.New("filter", filter)
	collector := testutil.NewStringCollector()
	sink := task.New("collector", collector)

	pipeline := task.Link(task.Link(source, filterTask), sink)
	require.NoError(t, pipeline.Run())

	assert.Equal(t, []string{"0", "2"}, collector.Results())
}

// S5: Source([0,1,2]) | Reduce(0, +) | Collector ⟹ [0,1,3].
func TestSourceReduceCollector(t *testing.T) {
	source := task.New("source", testutil.NewNumberSource(3))
	reduce := operators.NewReduce(func() int { return 0 }, func(acc *int, in int) { *acc += in })
	reduceTask := task.New("reduce", reduce)
	collector := testutil.NewNumberCollector()
	sink := task.New("collector", collector)

	pipeline := task.Link(task.Link(source, reduceTask), sink)
	require.NoError(t, pipeline.Run())

	assert.Equal(t, []int{0, 1, 3}, collector.Results())
}

// S6: Source(["0","1","2"]) | Window.Count(2) | Map(join ",") | Collector ⟹ ["0,1","2"].
func TestSourceWindowMapCollector(t *testing.T) {
	source := task.New("source", testutil.NewStringSource("0", "1", "2"))
	window := task.New("window", operators.NewWindow[string](operators.CountWindow(2)))
	joiner := task.New("joiner", operators.NewMap(func(batch []string) string {
		return strings.Join(batch, ",")
	}))
	collector := testutil.NewStringCollector()
	sink := task.New("collector", collector)

	pipeline := task.Link(task.Link(task.Link(source, window), joiner), sink)
	require.NoError(t, pipeline.Run())

	assert.Equal(t, []string{"0,1", "2"}, collector.Results())
}

// TestSourceTimeWindowCollector exercises Window's Time trigger: it fires on
// real wall-clock elapsed time since the window's last emission, not on the
// buffered messages' own event timestamps. Every item below carries the
// same fabricated event timestamp, simulating a replayed/backfilled stream;
// if the trigger were keyed on event time (as a prior revision mistakenly
// did) the elapsed delta would always be zero and nothing would emit before
// end-of-stream.
func TestSourceTimeWindowCollector(t *testing.T) {
	const replayEventMS = 1_700_000_000_000
	source := task.New("source", testutil.NewDelayedStringSource(
		testutil.DelayedItem{Value: "a", EventTimestampMS: replayEventMS},
		testutil.DelayedItem{Value: "b", Delay: 30 * time.Millisecond, EventTimestampMS: replayEventMS},
		testutil.DelayedItem{Value: "c", Delay: 120 * time.Millisecond, EventTimestampMS: replayEventMS},
		testutil.DelayedItem{Value: "d", Delay: 30 * time.Millisecond, EventTimestampMS: replayEventMS},
		testutil.DelayedItem{Value: "e", Delay: 150 * time.Millisecond, EventTimestampMS: replayEventMS},
	))
	window := task.New("window", operators.NewWindow[string](operators.TimeWindow(100)))
	joiner := task.New("joiner", operators.NewMap(func(batch []string) string {
		return strings.Join(batch, ",")
	}))
	collector := testutil.NewStringCollector()
	sink := task.New("collector", collector)

	pipeline := task.Link(task.Link(task.Link(source, window), joiner), sink)
	require.NoError(t, pipeline.Run())

	// a, b arrive within the first 100ms window; c arrives ~150ms in,
	// past the 100ms threshold, so it triggers a batch containing all
	// three and resets the clock. d arrives 30ms later, short of the
	// next 100ms threshold; e arrives 150ms after that, past it, so it
	// triggers a batch of [d, e] with nothing left to flush at
	// end-of-stream.
	assert.Equal(t, []string{"a,b,c", "d,e"}, collector.Results())
}

// TestSourceSlidingWindowCollector exercises Window's Sliding trigger: a
// snapshot emitted every slide interval of elapsed wall-clock time,
// containing every buffered item whose event timestamp lies within the
// trailing window. The simulated event clock advances independently of the
// real delay between sends, so the eviction below is only explainable by
// event-timestamp filtering, not arrival count or wall-clock age.
func TestSourceSlidingWindowCollector(t *testing.T) {
	const base = 1_700_000_000_000
	source := task.New("source", testutil.NewDelayedStringSource(
		testutil.DelayedItem{Value: "a", EventTimestampMS: base},
		testutil.DelayedItem{Value: "b", Delay: 60 * time.Millisecond, EventTimestampMS: base + 50},
		testutil.DelayedItem{Value: "c", Delay: 60 * time.Millisecond, EventTimestampMS: base + 220},
		testutil.DelayedItem{Value: "d", Delay: 60 * time.Millisecond, EventTimestampMS: base + 260},
	))
	window := task.New("window", operators.NewWindow[string](operators.SlidingWindow(100, 20)))
	joiner := task.New("joiner", operators.NewMap(func(batch []string) string {
		return strings.Join(batch, ",")
	}))
	collector := testutil.NewStringCollector()
	sink := task.New("collector", collector)

	pipeline := task.Link(task.Link(task.Link(source, window), joiner), sink)
	require.NoError(t, pipeline.Run())

	// Each arrival's wall-clock gap (60ms) comfortably exceeds the 20ms
	// slide, so every message after the first triggers a snapshot:
	//   b arrives (event base+50): window [base+50-100, base+50] keeps a,b.
	//   c arrives (event base+220): cutoff base+120 evicts a and b; [c] only.
	//   d arrives (event base+260): cutoff base+160 keeps c, d.
	// End-of-stream re-flushes whatever the last snapshot left buffered.
	assert.Equal(t, []string{"a,b", "c", "c,d", "c,d"}, collector.Results())
}

// S7: Source([0,1,2]) | RoundRobinSplitter | Collector(2 slots) ⟹ collector
// observes {0,2,1} as a multiset, with slot 0 = [0,2] and slot 1 = [1].
func TestSourceRoundRobinSplitterCollector(t *testing.T) {
	source := task.New("source", testutil.NewNumberSource(3))
	splitter := task.New("splitter", slots.NewRoundRobinSplitter[int]())

	collector := newRoutedCollector(2)
	sink := task.WithSlots[int, struct{}]("collector", collector, 2)

	pipeline := task.Link(task.Link(source, splitter), sink)
	require.NoError(t, pipeline.Run())

	all := append(append([]int{}, collector.slot(0)...), collector.slot(1)...)
	sort.Ints(all)
	assert.Equal(t, []int{0, 1, 2}, all)
	assert.Equal(t, []int{0, 2}, collector.slot(0))
	assert.Equal(t, []int{1}, collector.slot(1))
}

// routedCollector records each received integer under the slot index of the
// physical channel it arrived on, recovered via Receiver.Equal against the
// full slot list in stage.Context since Stage.Run itself carries no slot
// index.
type routedCollector struct {
	mu     sync.Mutex
	bySlot [][]int
}

func newRoutedCollector(slots int) *routedCollector {
	return &routedCollector{bySlot: make([][]int, slots)}
}

func (c *routedCollector) slot(i int) []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int{}, c.bySlot[i]...)
}

func (c *routedCollector) Run(input pchan.Receiver[int], _ pchan.Sender[struct{}], ctx stage.Context[int, struct{}]) {
	idx := 0
	for i, r := range ctx.InputReceivers {
		r := r
		if r.Equal(input) {
			idx = i
			break
		}
	}
	for {
		msg, err := input.Recv()
		if err != nil {
			return
		}
		c.mu.Lock()
		c.bySlot[idx] = append(c.bySlot[idx], msg.Payload)
		c.mu.Unlock()
	}
}
