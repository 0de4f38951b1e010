// Command wordcount is a small demo pipeline: it reads lines from stdin,
// splits them across replica workers, windows them by time, counts word
// frequency per window, and logs the result. It exists to exercise Task,
// Link, the slot primitives, and the Window and Reduce operators
// end-to-end, the way the
// original crate's count_words example exercised the Rust pipeline against
// live Mastodon/Bluesky firehoses.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/fluxio/internal/obslog"
	"firestige.xyz/fluxio/internal/runtimeconfig"
	"firestige.xyz/fluxio/pkg/monitor"
	"firestige.xyz/fluxio/pkg/operators"
	"firestige.xyz/fluxio/pkg/pchan"
	"firestige.xyz/fluxio/pkg/slots"
	"firestige.xyz/fluxio/pkg/task"
)

var (
	configFile string
	slotCount  int
	windowDur  time.Duration
	threshold  int
)

var rootCmd = &cobra.Command{
	Use:   "wordcount",
	Short: "Count word frequency over stdin, windowed, with replica fan-out",
	Long: `wordcount reads lines from stdin and counts word frequency within
each time window, splitting work across replica slots and merging it back
before printing. It is a demonstration pipeline built from fluxio's Task,
Link, RoundRobinSplitter, Window, Reduce, and Merger.`,
	RunE: runWordcount,
}

func init() {
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "path to a fluxio config file")
	rootCmd.Flags().IntVarP(&slotCount, "slots", "n", 4, "replica slots for the window/reduce stages")
	rootCmd.Flags().DurationVarP(&windowDur, "window", "w", 10*time.Second, "window duration")
	rootCmd.Flags().IntVarP(&threshold, "threshold", "t", 0, "only log words occurring more than this many times per window")
}

// Execute runs the root command. Called from main.
func Execute() error {
	return rootCmd.Execute()
}

func runWordcount(cmd *cobra.Command, _ []string) error {
	cfg, err := runtimeconfig.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := obslog.Init(cfg.Log); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	pchan.SetDefaultGrowChunk(cfg.ChannelGrowChunk)

	mon := monitor.New(cfg.MonitorInterval)
	mon.Start()
	defer mon.Stop()

	source := task.New("source", newLineSource(cmd.InOrStdin()))
	splitter := task.New("splitter", slots.NewRoundRobinSplitter[string]())
	window := task.WithSlots("window", operators.NewWindow[string](operators.TimeWindow(windowDur.Milliseconds())), slotCount)
	reducer := task.WithSlots("reducer", operators.NewReduce(
		func() map[string]int { return make(map[string]int) },
		countWords,
	), slotCount)
	merger := task.WithSlots("merger", slots.NewMerger[map[string]int](), 1)
	sink := task.New("sink", newWordCountSink(threshold))

	// Link is registered step by step rather than chained in one expression:
	// each Link call replaces its downstream's input channels with fresh
	// ones, so only the task Link actually returns carries the live queue
	// that monitor.Register needs to sample — the pre-link splitter/window/
	// reducer/merger variables above have already gone stale by this point.
	mon.Register("source", source)

	afterSplitter := task.Link(source, splitter)
	mon.Register("splitter", afterSplitter)

	afterWindow := task.Link(afterSplitter, window)
	mon.Register("window", afterWindow)

	afterReducer := task.Link(afterWindow, reducer)
	mon.Register("reducer", afterReducer)

	afterMerger := task.Link(afterReducer, merger)
	mon.Register("merger", afterMerger)

	pipeline := task.Link(afterMerger, sink)

	slog.Info("wordcount pipeline starting", "slots", slotCount, "window", windowDur)
	if err := pipeline.Run(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	slog.Info("wordcount pipeline completed")
	return nil
}

// countWords resets acc and recounts every word in batch, mirroring the
// original example's clear-then-recount reducer: each window's output is
// an independent frequency table, not a running total across windows.
func countWords(acc *map[string]int, batch []string) {
	for k := range *acc {
		delete(*acc, k)
	}
	for _, line := range batch {
		for _, word := range strings.Fields(line) {
			(*acc)[word]++
		}
	}
}

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
