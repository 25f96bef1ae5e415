package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/scout/internal/discovery"
	"github.com/FranksOps/scout/internal/event"
	"github.com/FranksOps/scout/internal/metrics"
)

// FetchAll retrieves every candidate concurrently, one lane per source, each
// racing against perSourceTimeout. The returned slice is order-preserving by
// input index; completion order is visible only through the per-lane Log
// events published on the bus. Partial results are the normal outcome: a
// failed lane degrades the corpus without failing siblings or the caller.
//
// Total wall time is bounded by the slowest lane plus scheduling overhead,
// not by timeout × count.
func (f *Fetcher) FetchAll(ctx context.Context, sources []discovery.Candidate, perSourceTimeout time.Duration, bus *event.Bus) []Result {
	if perSourceTimeout <= 0 {
		perSourceTimeout = 30 * time.Second
	}

	results := make([]Result, len(sources))

	g := new(errgroup.Group)
	for i, src := range sources {
		g.Go(func() error {
			laneCtx, cancel := context.WithTimeout(ctx, perSourceTimeout)
			defer cancel()

			start := time.Now()
			page, ferr := f.Fetch(laneCtx, src)
			res := Result{Source: src, Page: page, Err: ferr}
			results[i] = res

			elapsed := time.Since(start)
			metrics.RecordLane(res.Source.Domain, res.Outcome(), elapsed, pageBytes(page))
			f.publishLaneLog(ctx, bus, res, elapsed, perSourceTimeout)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func pageBytes(p *Page) int {
	if p == nil {
		return 0
	}
	return p.Bytes
}

// publishLaneLog emits the one Log event each completed lane owes the
// observer. Lane logs arrive in completion order.
func (f *Fetcher) publishLaneLog(ctx context.Context, bus *event.Bus, res Result, elapsed, timeout time.Duration) {
	if bus == nil {
		return
	}

	var ev event.Event
	switch {
	case res.OK():
		ev = event.Log(slog.LevelInfo, fmt.Sprintf("fetched %s (%d bytes in %s)",
			res.Source.URL, res.Page.Bytes, elapsed.Round(time.Millisecond)))
	case res.TimedOut():
		ev = event.Log(slog.LevelWarn, fmt.Sprintf("abandoned %s after %s timeout",
			res.Source.URL, timeout))
	default:
		ev = event.Log(slog.LevelWarn, fmt.Sprintf("failed %s (%s): %v",
			res.Source.URL, res.Err.Kind, res.Err.Err))
	}

	if err := bus.Publish(ctx, ev); err != nil {
		f.logger.Debug("lane log dropped", "url", res.Source.URL, "err", err)
	}
}
