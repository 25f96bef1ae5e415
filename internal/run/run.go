// Package run sequences discovery, fetching and generation for one topic and
// owns that run's event bus. A run moves through
// Idle → Discovering → Fetching → Generating → Completed|Failed; every
// transition is announced by exactly one lifecycle event, and exactly one
// terminal event closes the sequence.
package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/FranksOps/scout/internal/discovery"
	"github.com/FranksOps/scout/internal/event"
	"github.com/FranksOps/scout/internal/fetch"
	"github.com/FranksOps/scout/internal/metrics"
	"github.com/FranksOps/scout/internal/render"
	"github.com/FranksOps/scout/internal/report"
	"github.com/FranksOps/scout/internal/storage"
)

// ErrCancelled marks a run stopped by its cancellation signal.
var ErrCancelled = errors.New("run cancelled")

// Config carries the per-run tunables.
type Config struct {
	MaxFetch        int           // cap on candidates actually fetched (0 = all)
	FetchTimeout    time.Duration // per-source lane timeout
	BusBuffer       int           // event bus buffer (0 = event.DefaultBuffer)
	StreamChunks    bool          // publish Chunk events as they are generated
	LowFetchRate    float64       // warn when ok/total falls below this rate
	LowFetchMinDocs int           // ...and fewer than this many lanes succeeded
}

// Orchestrator builds runs. All collaborators except Provider, Fetcher and
// Generator are optional.
type Orchestrator struct {
	Provider  discovery.Provider
	Rank      discovery.RankPolicy
	Fetcher   *fetch.Fetcher
	Generator *report.Generator
	Renderer  *render.Renderer
	Archive   storage.Backend
	Logger    *slog.Logger
	Config    Config
}

// Handle is the caller's view of a running pipeline: its identity, its event
// sequence, and its cancellation signal. The event channel closes after the
// terminal event has been delivered.
type Handle struct {
	ID     uuid.UUID
	Topic  string
	bus    *event.Bus
	cancel context.CancelFunc
}

// Events returns the run's strictly ordered event sequence.
func (h *Handle) Events() <-chan event.Event {
	return h.bus.Events()
}

// Cancel abandons in-flight fetch lanes and stops generation at its next
// suspension point. The run still terminates with a RunFailed event.
func (h *Handle) Cancel() {
	h.cancel()
}

// Start triggers a run for the topic and returns immediately. The pipeline
// executes on its own goroutine; all progress is observable through the
// handle's event sequence.
func (o *Orchestrator) Start(ctx context.Context, topic string) (*Handle, error) {
	if topic == "" {
		return nil, errors.New("empty topic")
	}
	if o.Provider == nil || o.Fetcher == nil || o.Generator == nil {
		return nil, errors.New("orchestrator missing provider, fetcher or generator")
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		ID:     uuid.New(),
		Topic:  topic,
		bus:    event.NewBus(o.Config.BusBuffer),
		cancel: cancel,
	}

	go o.execute(runCtx, h)
	return h, nil
}

func (o *Orchestrator) execute(ctx context.Context, h *Handle) {
	defer h.bus.Close()
	defer h.cancel()

	logger := o.logger().With("run", h.ID.String(), "topic", h.Topic)
	start := time.Now()

	o.publish(ctx, h, event.Event{Kind: event.KindRunStarted, Message: h.Topic})

	results, n, err := o.acquire(ctx, h, logger)
	if err != nil {
		o.finishFailed(h, logger, start, "", n, err)
		return
	}

	o.publish(ctx, h, event.StageLog(event.StageGenerating,
		generatingMessage(fetch.CountOK(results))))

	text, chunks, genErr := o.generate(ctx, h, results)
	if genErr != nil {
		o.finishFailed(h, logger, start, text, n, genErr)
		return
	}

	logger.Info("run completed", "chunks", chunks, "duration", time.Since(start))
	o.publishFinal(h, event.Event{Kind: event.KindRunCompleted, Report: text})
	metrics.RecordRun(storage.StatusCompleted, time.Since(start))

	o.persist(h, logger, text)
	o.archive(logger, &storage.RunRecord{
		ID:        h.ID.String(),
		Topic:     h.Topic,
		Status:    storage.StatusCompleted,
		Sources:   n,
		FetchedOK: fetch.CountOK(results),
		Report:    text,
		Duration:  time.Since(start),
		CreatedAt: start.UTC(),
	})
}

// acquire runs the Discovering and Fetching phases. It returns the corpus and
// the number of discovered candidates; a non-nil error fails the run.
func (o *Orchestrator) acquire(ctx context.Context, h *Handle, logger *slog.Logger) ([]fetch.Result, int, error) {
	o.publish(ctx, h, event.StageLog(event.StageDiscovering,
		fmt.Sprintf("discovering sources for %q via %s", h.Topic, o.Provider.Name())))

	candidates, err := o.Provider.Discover(ctx, h.Topic)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ErrCancelled
		}
		var derr *discovery.Error
		if !errors.As(err, &derr) {
			err = &discovery.Error{Provider: o.Provider.Name(), Err: err}
		}
		return nil, 0, err
	}
	candidates = o.Rank.Apply(candidates)
	logger.Info("discovery finished", "candidates", len(candidates))

	o.publish(ctx, h, event.StageLog(event.StageSourcesFound,
		fmt.Sprintf("found %d candidate sources", len(candidates))))

	sources := candidates
	if o.Config.MaxFetch > 0 && len(sources) > o.Config.MaxFetch {
		sources = sources[:o.Config.MaxFetch]
	}

	o.publish(ctx, h, event.StageLog(event.StageFetching,
		fmt.Sprintf("fetching %d sources (per-source timeout %s)", len(sources), o.fetchTimeout())))

	corpus := o.Fetcher.FetchAll(ctx, sources, o.fetchTimeout(), h.bus)
	if ctx.Err() != nil {
		return corpus, len(candidates), ErrCancelled
	}

	ok := fetch.CountOK(corpus)
	o.publish(ctx, h, event.StageLog(event.StageFetchDone,
		fmt.Sprintf("fetch complete: %d of %d sources yielded content", ok, len(corpus))))

	if o.lowFetchRate(ok, len(corpus)) {
		o.publish(ctx, h, event.Log(slog.LevelWarn, fmt.Sprintf(
			"only %d of %d sources yielded content; consider re-running with adjusted topic wording",
			ok, len(corpus))))
	}

	return corpus, len(candidates), nil
}

// generate streams the report onto the bus. It returns the assembled text,
// which on failure is the preserved partial output.
func (o *Orchestrator) generate(ctx context.Context, h *Handle, corpus []fetch.Result) (string, int, error) {
	stream := o.Generator.Generate(ctx, h.Topic, corpus)
	for {
		c, ok := stream.Next()
		if !ok {
			break
		}
		if o.Config.StreamChunks {
			o.publish(ctx, h, event.Chunk(c.Index, c.Text))
		}
	}
	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			return stream.Text(), stream.Chunks(), ErrCancelled
		}
		return stream.Text(), stream.Chunks(), err
	}
	return stream.Text(), stream.Chunks(), nil
}

func (o *Orchestrator) finishFailed(h *Handle, logger *slog.Logger, start time.Time, partial string, sources int, cause error) {
	logger.Warn("run failed", "err", cause, "duration", time.Since(start))
	o.publishFinal(h, event.Event{
		Kind:   event.KindRunFailed,
		Report: partial,
		Err:    cause.Error(),
	})
	metrics.RecordRun(storage.StatusFailed, time.Since(start))

	o.archive(logger, &storage.RunRecord{
		ID:        h.ID.String(),
		Topic:     h.Topic,
		Status:    storage.StatusFailed,
		Sources:   sources,
		Report:    partial,
		Duration:  time.Since(start),
		CreatedAt: start.UTC(),
		Error:     cause.Error(),
	})
}

// persist exports the completed report. Export failure never revokes the
// already-delivered completion; it surfaces as an advisory event.
func (o *Orchestrator) persist(h *Handle, logger *slog.Logger, text string) {
	if o.Renderer == nil {
		return
	}
	paths, err := o.Renderer.Render(h.ID.String(), h.Topic, text)
	if err != nil {
		logger.Warn("report export failed", "err", err)
		o.publishFinalAdvisory(h, fmt.Sprintf("report export failed: %v", err))
		return
	}
	logger.Info("report exported", "markdown", paths.Markdown, "pdf", paths.PDF)
}

func (o *Orchestrator) archive(logger *slog.Logger, rec *storage.RunRecord) {
	if o.Archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.Archive.Save(ctx, rec); err != nil {
		logger.Warn("run archive failed", "err", err)
	}
}

// publish delivers a mid-run event; delivery failure (cancellation) is
// tolerated since the run will terminate shortly after.
func (o *Orchestrator) publish(ctx context.Context, h *Handle, ev event.Event) {
	if err := h.bus.Publish(ctx, ev); err != nil {
		o.logger().Debug("event dropped", "run", h.ID.String(), "kind", ev.Kind, "err", err)
	}
}

// publishFinal delivers a terminal event. It deliberately ignores run
// cancellation: a cancelled run still owes its observer the terminal event.
func (o *Orchestrator) publishFinal(h *Handle, ev event.Event) {
	if err := h.bus.Publish(context.Background(), ev); err != nil {
		o.logger().Warn("terminal event dropped", "run", h.ID.String(), "err", err)
	}
}

func (o *Orchestrator) publishFinalAdvisory(h *Handle, message string) {
	if err := h.bus.Publish(context.Background(), event.Advisory(message)); err != nil {
		o.logger().Debug("advisory dropped", "run", h.ID.String(), "err", err)
	}
}

func (o *Orchestrator) lowFetchRate(ok, total int) bool {
	if total == 0 || o.Config.LowFetchRate <= 0 {
		return false
	}
	rate := float64(ok) / float64(total)
	return rate < o.Config.LowFetchRate && ok < o.Config.LowFetchMinDocs
}

func (o *Orchestrator) fetchTimeout() time.Duration {
	if o.Config.FetchTimeout > 0 {
		return o.Config.FetchTimeout
	}
	return 30 * time.Second
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func generatingMessage(ok int) string {
	if ok == 0 {
		return "no readable sources; generating draft report from discovery metadata"
	}
	return fmt.Sprintf("generating report from %d sources", ok)
}
