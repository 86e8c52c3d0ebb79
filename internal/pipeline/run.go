// Package pipeline orchestrates one export run: read new rows from the
// source, transform them into tracking events, plan size-bounded chunks,
// deliver them strictly sequentially, and advance the watermark.
//
// Execution is single-threaded by design. The watermark is the only
// cross-run shared resource and mutual exclusion comes from the external
// scheduler invoking one run at a time; nothing in-process enforces it.
//
// There is no atomic coupling between "all chunks delivered" and
// "watermark persisted": a crash or store failure between the two causes
// the next run to re-read and re-deliver the same rows. The window is
// logged loudly when hit; deduplication would need an idempotency key
// derived from row identity, which the sink does not currently accept.
package pipeline

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventrelay/eventrelay/pkg/chunker"
	"github.com/eventrelay/eventrelay/pkg/config"
	"github.com/eventrelay/eventrelay/pkg/errors"
	"github.com/eventrelay/eventrelay/pkg/events"
	"github.com/eventrelay/eventrelay/pkg/json"
	"github.com/eventrelay/eventrelay/pkg/metrics"
	"github.com/eventrelay/eventrelay/pkg/observability"
	"github.com/eventrelay/eventrelay/pkg/secrets"
)

// State identifies where a run is in its lifecycle.
type State string

const (
	StateReadingSource      State = "reading_source"
	StateTransformingRows   State = "transforming_rows"
	StatePlanningDelivery   State = "planning_delivery"
	StateDelivering         State = "delivering"
	StateAdvancingWatermark State = "advancing_watermark"
	StateDone               State = "done"
	StateFailed             State = "failed"
)

// SourceReader is the read side of the pipeline.
type SourceReader interface {
	Fetch(ctx context.Context, lastTS, token string) ([]events.RawRow, error)
}

// Deliverer is the write side of the pipeline.
type Deliverer interface {
	Deliver(ctx context.Context, chunk []events.TrackingEvent, writeKey string) error
}

// Result summarizes a finished run.
type Result struct {
	RunID           string
	State           State
	FailedIn        State
	RowsRead        int
	RowsSkipped     int
	EventsBatched   int
	ChunksDelivered int
	Watermark       string
	Duration        time.Duration
}

// Runner executes export runs. Dependencies are injected once at
// construction; nothing is global.
type Runner struct {
	cfg    *config.Config
	store  secrets.Store
	source SourceReader
	sink   Deliverer
	logger *zap.Logger

	// sleep is the inter-chunk delay hook; tests substitute a recorder
	sleep func(time.Duration)
}

// NewRunner creates a runner with the given collaborators.
func NewRunner(cfg *config.Config, store secrets.Store, source SourceReader, sink Deliverer, logger *zap.Logger) *Runner {
	return &Runner{
		cfg:    cfg,
		store:  store,
		source: source,
		sink:   sink,
		logger: logger,
		sleep:  time.Sleep,
	}
}

// Run performs one export run. On success the returned result is in
// StateDone; any unrecovered failure returns the typed error alongside a
// result in StateFailed noting the state that failed. The watermark is
// advanced only after every chunk of this run's read has been delivered.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	timer := metrics.NewTimer()

	res := &Result{
		RunID: uuid.NewString(),
		State: StateReadingSource,
	}
	log := r.logger.With(zap.String("run_id", res.RunID))

	ctx, span := observability.StartSpan(ctx, "export_run")
	defer span.End()

	log.Info("starting run")

	defer func() {
		res.Duration = timer.Stop()
		metrics.RunDuration.Observe(res.Duration.Seconds())
		metrics.Runs.WithLabelValues(string(res.State)).Inc()
	}()

	token, err := r.store.Get(ctx, r.cfg.Secrets.SourceToken)
	if err != nil {
		return r.fail(res, log, err)
	}

	lastTS, err := r.store.Get(ctx, r.cfg.Secrets.Watermark)
	if err != nil {
		return r.fail(res, log, err)
	}
	res.Watermark = lastTS

	// ReadingSource
	rows, err := r.source.Fetch(ctx, lastTS, token)
	if err != nil {
		return r.fail(res, log, err)
	}
	res.RowsRead = len(rows)
	metrics.RowsRead.Add(float64(len(rows)))

	if len(rows) == 0 {
		res.State = StateDone
		log.Info("no new data found", zap.String("watermark", lastTS))
		return res, nil
	}

	// TransformingRows
	res.State = StateTransformingRows
	mapping := events.FieldMapping{
		User:      r.cfg.Batch.UserField,
		Event:     r.cfg.Batch.EventField,
		Timestamp: r.cfg.Batch.TimestampField,
	}
	batch, stats := events.Transform(rows, mapping, r.cfg.Batch.MaxEventSize, log)
	res.RowsSkipped = stats.Skipped()
	res.EventsBatched = len(batch)
	metrics.RowsSkipped.WithLabelValues("oversize").Add(float64(stats.Oversize))
	metrics.RowsSkipped.WithLabelValues("malformed").Add(float64(stats.Malformed))

	// PlanningDelivery: below the sink budget the batch goes out as a
	// single chunk and the estimator never runs.
	res.State = StatePlanningDelivery
	var chunks []chunker.Chunk
	switch {
	case len(batch) == 0:
		log.Warn("all rows skipped, nothing to deliver",
			zap.Int("rows_skipped", res.RowsSkipped))
	case json.SerializedSize(batch) <= r.cfg.Batch.MaxChunkBytes:
		chunks = []chunker.Chunk{chunker.Chunk(batch)}
	default:
		chunks = chunker.Plan(batch, r.cfg.Batch.MaxChunkBytes, r.cfg.Batch.SampleSize)
		log.Info("batch exceeds sink budget, sending in chunks",
			zap.Int("chunks", len(chunks)),
			zap.Int("chunk_events", len(chunks[0])))
	}

	// Delivering: strictly sequential, first failure halts the run with
	// the watermark untouched.
	if len(chunks) > 0 {
		res.State = StateDelivering

		writeKey, err := r.store.Get(ctx, r.cfg.Secrets.WriteKey)
		if err != nil {
			return r.fail(res, log, err)
		}

		for i, chunk := range chunks {
			log.Info("delivering chunk",
				zap.Int("chunk", i+1),
				zap.Int("chunks", len(chunks)),
				zap.Int("events", len(chunk)))

			if err := r.sink.Deliver(ctx, chunk, writeKey); err != nil {
				metrics.DeliveryFailures.Inc()
				return r.fail(res, log, err)
			}
			res.ChunksDelivered++
			metrics.ChunksDelivered.Inc()

			if i < len(chunks)-1 {
				r.sleep(r.cfg.Batch.SendDelay)
			}
		}
	}

	// AdvancingWatermark: the next watermark is the max timestamp over all
	// fetched rows, including any the transformer skipped; otherwise a
	// skipped row at the head of the window would be re-read forever.
	res.State = StateAdvancingWatermark
	next, ok := events.MaxTimestamp(rows, r.cfg.Batch.TimestampField)
	if !ok {
		// No row carried a usable timestamp; advancing would corrupt the
		// cursor, so leave it and let the skip diagnostics tell the story.
		res.State = StateDone
		log.Warn("no usable timestamps in fetched rows, watermark unchanged",
			zap.String("watermark", lastTS))
		return res, nil
	}

	nextTS := strconv.FormatInt(next, 10)
	if err := r.store.Set(ctx, r.cfg.Secrets.Watermark, nextTS); err != nil {
		// Delivery already happened; failing to persist the watermark means
		// the next run will re-export this window.
		log.Error("delivery succeeded but watermark write failed; next run may produce duplicates",
			zap.String("attempted_watermark", nextTS),
			zap.Error(err))
		return r.fail(res, log, err)
	}
	res.Watermark = nextTS
	metrics.Watermark.Set(float64(next))

	res.State = StateDone
	log.Info("run complete",
		zap.Int("rows_read", res.RowsRead),
		zap.Int("rows_skipped", res.RowsSkipped),
		zap.Int("events_batched", res.EventsBatched),
		zap.Int("chunks_delivered", res.ChunksDelivered),
		zap.String("watermark", nextTS),
		zap.Duration("duration", timer.Stop()))

	return res, nil
}

// fail marks the result failed in its current state and returns the error
// to the invoking scheduler; no run-level retry happens here.
func (r *Runner) fail(res *Result, log *zap.Logger, err error) (*Result, error) {
	res.FailedIn = res.State
	res.State = StateFailed
	log.Error("run failed",
		zap.String("state", string(res.FailedIn)),
		zap.String("error_type", string(errors.TypeOf(err))),
		zap.Error(err))
	return res, err
}
