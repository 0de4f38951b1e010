package main

import (
	"bufio"
	"io"
	"log/slog"
	"strings"

	"firestige.xyz/fluxio/pkg/message"
	"firestige.xyz/fluxio/pkg/pchan"
	"firestige.xyz/fluxio/pkg/stage"
)

// lineSource emits one message per line read from r, then returns once r is
// exhausted. Grounded on the original count_words example's firehose
// sources, adapted from a live network feed to a local reader.
type lineSource struct {
	r io.Reader
}

func newLineSource(r io.Reader) *lineSource {
	return &lineSource{r: r}
}

func (s *lineSource) Run(_ pchan.Receiver[struct{}], output pchan.Sender[string], _ stage.Context[struct{}, string]) {
	scanner := bufio.NewScanner(s.r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := output.Send(message.New(line)); err != nil {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Error("wordcount: reading input", "error", err)
	}
}

// wordCountSink logs every window's word frequency table, matching the
// original example's threshold-filtered printout.
type wordCountSink struct {
	threshold int
}

func newWordCountSink(threshold int) *wordCountSink {
	return &wordCountSink{threshold: threshold}
}

func (s *wordCountSink) Run(input pchan.Receiver[map[string]int], _ pchan.Sender[struct{}], _ stage.Context[map[string]int, struct{}]) {
	for {
		in, err := input.Recv()
		if err != nil {
			return
		}
		for word, count := range in.Payload {
			if count > s.threshold {
				slog.Info("word count", "word", word, "count", count)
			}
		}
	}
}
