// Package reconciler polls the external live-streams listing on an
// interval and forwards newly observed streams to the durable write path.
package reconciler

import (
	"context"
	"log/slog"
	"time"

	"github.com/user/chatvault/internal/adapter/metrics"
	"github.com/user/chatvault/internal/domain"
)

const (
	pageSize = 100

	// Streams below this viewer count are low-signal; once a single page
	// yields more than lowSignalCutoff of them, pagination stops. This
	// bounds the cost of walking the long tail of tiny streams.
	lowSignalViewers = 2
	lowSignalCutoff  = 50

	failureBackoffFactor = 3
)

// StreamSubmitter is the write path accepting stream-record batches.
type StreamSubmitter interface {
	SubmitStreams(ctx context.Context, batch []domain.StreamRecord) error
}

// Reconciler diffs consecutive snapshots of the live listing and submits
// only streams not seen in the previous completed pass.
type Reconciler struct {
	lister    domain.StreamLister
	submitter StreamSubmitter
	logger    *slog.Logger
	metrics   *metrics.ArchiveMetrics
	interval  time.Duration

	last    map[string]struct{}
	current map[string]struct{}
}

// New creates a Reconciler polling every interval.
func New(lister domain.StreamLister, submitter StreamSubmitter, logger *slog.Logger, m *metrics.ArchiveMetrics, interval time.Duration) *Reconciler {
	return &Reconciler{
		lister:    lister,
		submitter: submitter,
		logger:    logger.With("component", "reconciler"),
		metrics:   m,
		interval:  interval,
		last:      make(map[string]struct{}),
		current:   make(map[string]struct{}),
	}
}

// Run alternates between the poll timer and cancellation. A failed pass is
// rescheduled after three times the interval instead of one.
func (r *Reconciler) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	r.logger.Info("reconciler started", "interval", r.interval)

	for {
		select {
		case <-timer.C:
			if err := r.pass(ctx); err != nil {
				r.metrics.ReconcilePasses.WithLabelValues("error").Inc()
				r.logger.Error("reconciliation pass failed, backing off", "error", err)
				timer.Reset(r.interval * failureBackoffFactor)
			} else {
				r.metrics.ReconcilePasses.WithLabelValues("ok").Inc()
				timer.Reset(r.interval)
			}

		case <-ctx.Done():
			r.logger.Info("reconciler shutting down")
			return
		}
	}
}

// pass paginates the live listing once. Cancellation is only observed at
// page boundaries so an accumulated batch is always forwarded first. The
// snapshot sets swap at the end even when the pass stopped early.
func (r *Reconciler) pass(ctx context.Context) (err error) {
	defer func() {
		r.last, r.current = r.current, r.last
		clear(r.current)
	}()

	cursor := ""

	for {
		items, next, listErr := r.lister.ListLive(ctx, cursor, pageSize)
		if listErr != nil {
			return listErr
		}

		lowSignal := 0
		batch := make([]domain.StreamRecord, 0, len(items))
		for _, item := range items {
			r.current[item.ID] = struct{}{}
			if item.ViewerCount < lowSignalViewers {
				lowSignal++
			}

			if _, seen := r.last[item.ID]; seen {
				continue
			}
			if item.ID == "" || item.ChannelID == "" {
				r.logger.Warn("skipping malformed live stream item", "stream_id", item.ID)
				continue
			}
			batch = append(batch, domain.StreamRecord{
				ChannelID: item.ChannelID,
				StreamID:  item.ID,
				StartedAt: item.StartedAt,
			})
		}

		if len(batch) > 0 {
			if err := r.submitter.SubmitStreams(ctx, batch); err != nil {
				return err
			}
			r.metrics.StreamsDiscovered.Add(float64(len(batch)))
		}

		if next == "" || lowSignal > lowSignalCutoff || ctx.Err() != nil {
			return nil
		}
		cursor = next
	}
}
