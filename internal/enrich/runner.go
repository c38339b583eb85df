// Package enrich drives the geocoding resolver across a dataset with
// periodic checkpoints, so an interrupted run loses at most one checkpoint
// window of work and can resume from the last flushed row.
package enrich

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/roteiro-cli/internal/dataset"
	"github.com/sells-group/roteiro-cli/internal/metrics"
	"github.com/sells-group/roteiro-cli/pkg/geocode"
)

// DefaultCheckpointEvery is the row cadence used when none is configured.
const DefaultCheckpointEvery = 10

// Resolver resolves one address. *geocode.Resolver satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, addr geocode.Address) *geocode.Result
}

// Options controls one run.
type Options struct {
	// StartRow skips rows with a lower index; they are assumed handled by a
	// previous run and are not re-verified.
	StartRow int

	// MaxRows truncates the dataset to its first N rows before StartRow is
	// applied. Zero means no limit. Intended for dry runs.
	MaxRows int

	// CheckpointEvery flushes after this many resolved-or-failed rows.
	CheckpointEvery int

	// CheckpointInterval also flushes when this much wall time has passed
	// since the last flush. Zero disables it.
	CheckpointInterval time.Duration

	RunID    string // generated when empty
	Input    string // recorded in the manifest
	Provider string // recorded in the manifest and used as a metrics label
}

// Summary reports what a run did. Skipped rows already had coordinates and
// count as neither resolved nor failed.
type Summary struct {
	RunID       string
	Rows        int
	Skipped     int
	Resolved    int
	Failed      int
	Checkpoints int
	LastRow     int
	ByTier      map[geocode.Tier]int
	Duration    time.Duration
}

// Runner applies a Resolver to every row of a dataset.
type Runner struct {
	resolver Resolver
	sink     Sink
	metrics  *metrics.Metrics
	now      func() time.Time
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMetrics records row and request counters on m.
func WithMetrics(m *metrics.Metrics) RunnerOption {
	return func(r *Runner) {
		r.metrics = m
	}
}

// NewRunner creates a Runner that persists snapshots to sink.
func NewRunner(resolver Resolver, sink Sink, opts ...RunnerOption) *Runner {
	r := &Runner{resolver: resolver, sink: sink, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes t in place. Rows are handled in order and sequentially.
// Schema problems fail before any row is touched; per-row failures only
// affect counters. When ctx is cancelled the runner flushes a checkpoint
// and returns the context error together with the partial summary.
func (r *Runner) Run(ctx context.Context, t *dataset.Table, opts Options) (*Summary, error) {
	if err := t.RequireColumns(dataset.GeocodeColumns...); err != nil {
		return nil, err
	}
	t.EnsureColumn(dataset.ColLatitude)
	t.EnsureColumn(dataset.ColLongitude)

	if opts.CheckpointEvery <= 0 {
		opts.CheckpointEvery = DefaultCheckpointEvery
	}
	if opts.StartRow < 0 {
		opts.StartRow = 0
	}
	if opts.RunID == "" {
		opts.RunID = uuid.New().String()
	}
	t.Truncate(opts.MaxRows)

	start := r.now()
	log := zap.L().With(zap.String("run_id", opts.RunID))
	log.Info("enrich: run starting",
		zap.Int("rows", t.Len()),
		zap.Int("start_row", opts.StartRow),
		zap.Int("checkpoint_every", opts.CheckpointEvery),
	)

	sum := &Summary{
		RunID:   opts.RunID,
		Rows:    t.Len(),
		LastRow: opts.StartRow - 1,
		ByTier:  make(map[geocode.Tier]int),
	}
	cp := &Checkpoint{
		RunID:     opts.RunID,
		Input:     opts.Input,
		Provider:  opts.Provider,
		StartRow:  opts.StartRow,
		StartedAt: start.UTC(),
	}

	flush := func(ctx context.Context) error {
		cp.LastRow = sum.LastRow
		cp.Resolved, cp.Failed, cp.Skipped = sum.Resolved, sum.Failed, sum.Skipped
		cp.UpdatedAt = r.now().UTC()
		if err := r.sink.Save(ctx, t, cp); err != nil {
			return eris.Wrapf(err, "enrich: checkpoint at row %d", sum.LastRow)
		}
		sum.Checkpoints++
		r.metrics.Checkpoint()
		log.Info("enrich: checkpoint",
			zap.Int("last_row", sum.LastRow),
			zap.Int("resolved", sum.Resolved),
			zap.Int("failed", sum.Failed),
		)
		return nil
	}

	// A cancelled run still gets its progress flushed.
	interrupted := func() (*Summary, error) {
		sum.Duration = r.now().Sub(start)
		log.Warn("enrich: interrupted, flushing checkpoint", zap.Int("last_row", sum.LastRow))
		if err := flush(context.WithoutCancel(ctx)); err != nil {
			return sum, err
		}
		return sum, eris.Wrap(ctx.Err(), "enrich: run interrupted")
	}

	processed := 0
	lastFlush := start
	for i := opts.StartRow; i < t.Len(); i++ {
		if ctx.Err() != nil {
			return interrupted()
		}

		if _, ok := t.Coordinate(i); ok {
			sum.Skipped++
			sum.LastRow = i
			r.metrics.Row(metrics.OutcomeSkipped)
			continue
		}

		rowStart := r.now()
		res := r.resolver.Resolve(ctx, t.Address(i))
		if ctx.Err() != nil {
			// The answer may be a cancellation artifact; leave the row for
			// the resumed run.
			return interrupted()
		}
		r.metrics.ObserveRow(r.now().Sub(rowStart).Seconds())
		r.recordAttempts(res, opts.Provider)

		if res.Matched && res.Coordinate.Valid() {
			t.SetCoordinate(i, res.Coordinate)
			sum.Resolved++
			sum.ByTier[res.Tier]++
			r.metrics.Row(metrics.OutcomeResolved)
			r.metrics.TierMatch(string(res.Tier))
		} else {
			t.ClearCoordinate(i)
			sum.Failed++
			r.metrics.Row(metrics.OutcomeFailed)
			log.Debug("enrich: row unresolved",
				zap.Int("row", i),
				zap.String("reason", string(res.Reason)),
			)
		}
		sum.LastRow = i
		processed++

		due := processed%opts.CheckpointEvery == 0
		if opts.CheckpointInterval > 0 && r.now().Sub(lastFlush) >= opts.CheckpointInterval {
			due = true
		}
		if due {
			if err := flush(ctx); err != nil {
				return sum, err
			}
			lastFlush = r.now()
		}
	}

	cp.LastRow = sum.LastRow
	cp.Resolved, cp.Failed, cp.Skipped = sum.Resolved, sum.Failed, sum.Skipped
	cp.UpdatedAt = r.now().UTC()
	if err := r.sink.Finish(ctx, t, cp); err != nil {
		return sum, eris.Wrap(err, "enrich: final write")
	}
	sum.Duration = r.now().Sub(start)

	log.Info("enrich: run complete",
		zap.Int("resolved", sum.Resolved),
		zap.Int("failed", sum.Failed),
		zap.Int("skipped", sum.Skipped),
		zap.Int("checkpoints", sum.Checkpoints),
		zap.Duration("elapsed", sum.Duration),
	)
	return sum, nil
}

func (r *Runner) recordAttempts(res *geocode.Result, provider string) {
	if provider == "" {
		provider = res.Source
	}
	for _, a := range res.Attempts {
		outcome := metrics.RequestError
		switch {
		case a.Cached:
			outcome = metrics.RequestCached
		case a.Reason == geocode.ReasonNone:
			outcome = metrics.RequestMatch
		case a.Reason == geocode.ReasonNoMatch:
			outcome = metrics.RequestNoMatch
		}
		r.metrics.Request(provider, outcome)
	}
}
