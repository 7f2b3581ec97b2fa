// Package historian drains the activity queue and persists records in batches.
package historian

import (
	"context"
	"time"

	"github.com/jason-s-yu/rally/internal/models"
	"github.com/sirupsen/logrus"
)

// Source yields queued activity records. Pop returns (nil, nil) when nothing arrived
// within timeout.
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) (*models.Activity, error)
}

// Sink persists a batch atomically.
type Sink interface {
	InsertActivities(ctx context.Context, batch []models.Activity) error
}

// Options tune batching. Zero values fall back to the defaults.
type Options struct {
	BatchSize  int
	FlushDelay time.Duration
	PopTimeout time.Duration
	// ErrorBackoff is the pause after a failed Pop before the queue is polled again.
	ErrorBackoff time.Duration
}

const (
	DefaultBatchSize    = 20
	DefaultFlushDelay   = 500 * time.Millisecond
	DefaultPopTimeout   = 3 * time.Second
	DefaultErrorBackoff = time.Second
)

// Historian moves records from a Source to a Sink.
type Historian struct {
	source Source
	sink   Sink
	logger *logrus.Logger
	opts   Options

	batch []models.Activity
}

func New(source Source, sink Sink, logger *logrus.Logger, opts Options) *Historian {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.FlushDelay <= 0 {
		opts.FlushDelay = DefaultFlushDelay
	}
	if opts.PopTimeout <= 0 {
		opts.PopTimeout = DefaultPopTimeout
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = DefaultErrorBackoff
	}
	return &Historian{
		source: source,
		sink:   sink,
		logger: logger,
		opts:   opts,
		batch:  make([]models.Activity, 0, opts.BatchSize),
	}
}

// Run pops records until ctx is cancelled, flushing whenever the batch is full or the
// flush delay elapses. Whatever is still buffered is flushed before Run returns.
func (h *Historian) Run(ctx context.Context) {
	ticker := time.NewTicker(h.opts.FlushDelay)
	defer ticker.Stop()

	h.logger.Info("historian started")
	for {
		select {
		case <-ctx.Done():
			h.flush(context.WithoutCancel(ctx))
			h.logger.Info("historian stopped")
			return

		case <-ticker.C:
			h.flush(ctx)

		default:
			rec, err := h.source.Pop(ctx, h.opts.PopTimeout)
			if err != nil {
				if ctx.Err() == nil {
					h.logger.WithError(err).Error("failed to pop activity")
				}
				h.pause(ctx)
				continue
			}
			if rec == nil {
				continue
			}
			h.batch = append(h.batch, *rec)
			if len(h.batch) >= h.opts.BatchSize {
				h.flush(ctx)
			}
		}
	}
}

// pause waits out the error backoff, returning early on shutdown.
func (h *Historian) pause(ctx context.Context) {
	t := time.NewTimer(h.opts.ErrorBackoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (h *Historian) flush(ctx context.Context) {
	if len(h.batch) == 0 {
		return
	}
	batch := make([]models.Activity, len(h.batch))
	copy(batch, h.batch)
	h.batch = h.batch[:0]

	if err := h.sink.InsertActivities(ctx, batch); err != nil {
		h.logger.WithError(err).WithField("count", len(batch)).Error("failed to flush activity batch")
		return
	}
	h.logger.WithField("count", len(batch)).Debug("flushed activity batch")
}
