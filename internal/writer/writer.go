// Package writer owns the durable write path: it flushes the staging
// buffer to the store on a fixed cadence and accepts stream-record batches
// from the reconciliation loop through a bounded queue.
package writer

import (
	"context"
	"log/slog"
	"time"

	"github.com/user/chatvault/internal/adapter/metrics"
	"github.com/user/chatvault/internal/domain"
	"github.com/user/chatvault/internal/staging"
)

const shutdownFlushTimeout = 10 * time.Second

// Writer periodically persists staged messages and evicts exactly the
// flushed batch, which is what keeps merged reads free of duplicates.
type Writer struct {
	buffer        *staging.Buffer
	messages      domain.MessageRepository
	streams       domain.StreamRepository
	logger        *slog.Logger
	metrics       *metrics.ArchiveMetrics
	flushInterval time.Duration
	streamCh      chan []domain.StreamRecord
}

// New creates a Writer. streamQueueSize bounds the stream-record queue;
// submissions block once it is full.
func New(
	buffer *staging.Buffer,
	messages domain.MessageRepository,
	streams domain.StreamRepository,
	logger *slog.Logger,
	m *metrics.ArchiveMetrics,
	flushInterval time.Duration,
	streamQueueSize int,
) *Writer {
	return &Writer{
		buffer:        buffer,
		messages:      messages,
		streams:       streams,
		logger:        logger.With("component", "writer"),
		metrics:       m,
		flushInterval: flushInterval,
		streamCh:      make(chan []domain.StreamRecord, streamQueueSize),
	}
}

// SubmitStreams queues a batch of stream records for persistence. Blocks
// when the queue is full until the writer catches up or ctx is done.
func (w *Writer) SubmitStreams(ctx context.Context, batch []domain.StreamRecord) error {
	select {
	case w.streamCh <- batch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the flush loop until ctx is cancelled, then performs a final
// flush so staged rows are not lost on shutdown.
func (w *Writer) Run(ctx context.Context) {
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	w.logger.Info("writer started", "flush_interval", w.flushInterval)

	for {
		select {
		case <-ticker.C:
			w.flushAll(ctx)

		case batch := <-w.streamCh:
			if err := w.streams.WriteStreamBatch(ctx, batch); err != nil {
				w.logger.Error("failed to write stream batch", "error", err, "count", len(batch))
			}

		case <-ctx.Done():
			w.logger.Info("writer shutting down, flushing staged messages")
			flushCtx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
			w.flushAll(flushCtx)
			cancel()
			return
		}
	}
}

// flushAll writes every channel's staged messages. A failed channel keeps
// its entries buffered and is retried on the next tick.
func (w *Writer) flushAll(ctx context.Context) {
	for _, channelID := range w.buffer.Channels() {
		batch, upToSeq := w.buffer.Snapshot(channelID)
		if len(batch) == 0 {
			continue
		}

		if err := w.messages.WriteMessageBatch(ctx, batch); err != nil {
			w.metrics.FlushesTotal.WithLabelValues("error").Inc()
			w.logger.Error("failed to flush staged messages",
				"error", err,
				"channel_id", channelID,
				"count", len(batch))
			continue
		}

		w.buffer.Evict(channelID, upToSeq)
		w.metrics.FlushesTotal.WithLabelValues("ok").Inc()
		w.metrics.FlushBatchSize.Observe(float64(len(batch)))
	}
	w.metrics.BufferedMessages.Set(float64(w.buffer.Pending()))
}
