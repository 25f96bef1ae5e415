package report

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/FranksOps/scout/internal/fetch"
	"github.com/FranksOps/scout/internal/llm"
	"github.com/FranksOps/scout/internal/metrics"
)

// Chunk is one ordered increment of report text. Chunks concatenate in index
// order to form the final report; no chunk is ever retracted or reordered.
type Chunk struct {
	Index int
	Text  string
}

// GenerationError marks a fatal generator failure. Chunks emitted before the
// failure remain valid; the orchestrator attaches the partial text to the
// run's failure event.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return fmt.Sprintf("report generation failed: %v", e.Err) }
func (e *GenerationError) Unwrap() error { return e.Err }

// Generator produces a report as a finite chunk sequence. With zero
// successful corpus entries it switches to draft mode, which uses the same
// chunk contract and never fails.
type Generator struct {
	LLM    *llm.Client
	Logger *slog.Logger
}

// Generate starts producing chunks for the topic and corpus. Each call
// returns a fresh stream that is consumed exactly once; chunk production is
// pipelined ahead of consumption by one chunk.
func (g *Generator) Generate(ctx context.Context, topic string, corpus []fetch.Result) *Stream {
	s := &Stream{ch: make(chan Chunk)}
	go g.produce(ctx, topic, corpus, s)
	return s
}

func (g *Generator) produce(ctx context.Context, topic string, corpus []fetch.Result, s *Stream) {
	defer close(s.ch)

	if fetch.CountOK(corpus) == 0 || g.LLM == nil {
		g.logger().Warn("no readable sources, falling back to draft mode", "topic", topic)
		g.produceDraft(ctx, topic, corpus, s)
		return
	}

	stream, err := g.LLM.StreamChat(ctx, BuildPrompt(topic, corpus))
	if err != nil {
		s.fail(&GenerationError{Err: err})
		return
	}
	defer stream.Close()

	for {
		frag, err := stream.Recv()
		if err == io.EOF {
			return
		}
		if err != nil {
			s.fail(&GenerationError{Err: err})
			return
		}
		if !s.emit(ctx, frag) {
			return
		}
	}
}

func (g *Generator) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

// produceDraft emits the degraded-mode report section by section. This branch
// terminates with at least one chunk for every corpus, including the empty one.
func (g *Generator) produceDraft(ctx context.Context, topic string, corpus []fetch.Result, s *Stream) {
	for _, section := range draftChunks(BuildDraft(topic, corpus)) {
		if !s.emit(ctx, section) {
			return
		}
	}
}

// Stream is the lazy, consumed-once chunk sequence of one generation call.
type Stream struct {
	ch   chan Chunk
	next int
	err  error

	assembled strings.Builder
	delivered int
}

func (s *Stream) emit(ctx context.Context, text string) bool {
	select {
	case s.ch <- Chunk{Index: s.next, Text: text}:
		s.next++
		metrics.ChunksTotal.Inc()
		return true
	case <-ctx.Done():
		s.err = &GenerationError{Err: ctx.Err()}
		return false
	}
}

func (s *Stream) fail(err error) {
	s.err = err
}

// Next returns the next chunk in generation order. ok is false once the
// sequence is exhausted (check Err to distinguish completion from failure).
func (s *Stream) Next() (Chunk, bool) {
	c, ok := <-s.ch
	if ok {
		s.assembled.WriteString(c.Text)
		s.delivered++
	}
	return c, ok
}

// Err reports the fatal generation error, if any. Valid after Next returned
// ok == false.
func (s *Stream) Err() error { return s.err }

// Text returns the report text assembled from all chunks delivered so far.
// After clean exhaustion this is the final report; after a failure it is the
// preserved partial text.
func (s *Stream) Text() string { return s.assembled.String() }

// Chunks reports how many chunks were delivered.
func (s *Stream) Chunks() int { return s.delivered }
