package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/storm-dsd-etl/internal/domain"
	"github.com/couchcryptid/storm-dsd-etl/internal/observability"
)

// BatchExtractor reads up to batchSize raw events from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer parameterizes one raw disdrometer record.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.ParameterizedDSD, error)
}

// BatchLoader writes parameterized records to the sink.
type BatchLoader interface {
	LoadBatch(ctx context.Context, records []domain.ParameterizedDSD) error
}

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

var errNotStarted = errors.New("pipeline has not loaded any records yet")

// Pipeline orchestrates the extract-transform-load loop.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	batchSize   int

	mu      sync.RWMutex
	sinkErr error
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
		sinkErr:     errNotStarted,
	}
}

// CheckReadiness returns nil once a batch has reached the sink and the most
// recent load succeeded.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sinkErr
}

func (p *Pipeline) setSinkErr(err error) {
	p.mu.Lock()
	p.sinkErr = err
	p.mu.Unlock()
}

// Run executes the batch loop until the context is cancelled. Source and
// sink failures are retried with exponential backoff and never end the run.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	b := backoff{next: initialBackoff}
	for ctx.Err() == nil {
		err := p.processBatch(ctx)
		switch {
		case ctx.Err() != nil:
		case err != nil:
			p.logger.Error("batch failed, backing off", "error", err, "backoff", b.next)
			b.wait(ctx)
		default:
			b.reset()
		}
	}

	p.logger.Info("pipeline stopping", "reason", ctx.Err())
	return nil
}

// processBatch runs one extract-transform-load cycle. An empty batch after
// the flush interval is not an error.
func (p *Pipeline) processBatch(ctx context.Context) error {
	start := time.Now()

	rawBatch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("extract batch: %w", err)
	}
	if len(rawBatch) == 0 {
		return nil
	}

	p.metrics.MessagesConsumed.Add(float64(len(rawBatch)))
	p.metrics.BatchSize.Observe(float64(len(rawBatch)))

	records, loaded := p.transformBatch(ctx, rawBatch)
	if len(records) == 0 {
		return nil
	}

	if err := p.loader.LoadBatch(ctx, records); err != nil {
		if ctx.Err() == nil {
			p.setSinkErr(fmt.Errorf("sink unavailable: %w", err))
		}
		return fmt.Errorf("load batch of %d records: %w", len(records), err)
	}
	p.setSinkErr(nil)

	p.metrics.MessagesProduced.Add(float64(len(records)))
	p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())

	for _, raw := range loaded {
		p.commitOffset(ctx, raw)
	}

	steps := 0
	for i := range records {
		steps += records[i].NumSteps()
	}
	p.logger.Debug("batch loaded", "records", len(records), "steps", steps, "duration", time.Since(start))
	return nil
}

// transformBatch parameterizes each raw event. A record that fails to parse
// or parameterize is committed and skipped so it cannot wedge the
// partition; on cancellation the remainder of the batch is dropped
// uncommitted.
func (p *Pipeline) transformBatch(ctx context.Context, rawBatch []domain.RawEvent) ([]domain.ParameterizedDSD, []domain.RawEvent) {
	records := make([]domain.ParameterizedDSD, 0, len(rawBatch))
	loaded := make([]domain.RawEvent, 0, len(rawBatch))

	for _, raw := range rawBatch {
		out, err := p.transformer.Transform(ctx, raw)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil
			}
			p.logger.Warn("transform failed, skipping message",
				"error", err,
				"key", string(raw.Key),
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.TransformErrors.Inc()
			p.commitOffset(ctx, raw)
			continue
		}
		records = append(records, out)
		loaded = append(loaded, raw)
	}
	return records, loaded
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

// backoff doubles from initialBackoff up to maxBackoff.
type backoff struct {
	next time.Duration
}

func (b *backoff) reset() { b.next = initialBackoff }

// wait sleeps for the current delay, or until ctx ends, and advances it.
func (b *backoff) wait(ctx context.Context) {
	timer := time.NewTimer(b.next)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	b.next = min(b.next*2, maxBackoff)
}
