package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/user/chatvault/internal/adapter/metrics"
	"github.com/user/chatvault/internal/codec"
	"github.com/user/chatvault/internal/domain"
	"github.com/user/chatvault/internal/staging"
)

// IngestUseCase decodes received protocol lines and stages them for the
// durable write path. Decode failures are per-line defects: the line is
// counted, logged and dropped, and ingestion continues.
type IngestUseCase struct {
	buffer  *staging.Buffer
	logger  *slog.Logger
	metrics *metrics.ArchiveMetrics
}

// NewIngestUseCase creates a new IngestUseCase.
func NewIngestUseCase(buffer *staging.Buffer, logger *slog.Logger, m *metrics.ArchiveMetrics) *IngestUseCase {
	return &IngestUseCase{
		buffer:  buffer,
		logger:  logger.With("component", "ingest_usecase"),
		metrics: m,
	}
}

// Ingest converts one unstructured record into a row and accepts it into
// the staging buffer, from where it is immediately queryable.
func (uc *IngestUseCase) Ingest(_ context.Context, unstructured domain.Unstructured) {
	msg, err := codec.Decode(unstructured)
	if err != nil {
		uc.metrics.MessagesTotal.WithLabelValues(ingestStatus(err)).Inc()
		uc.logger.Warn("dropping undecodable line",
			"error", err,
			"channel_id", unstructured.ChannelID,
			"raw", unstructured.Raw)
		return
	}

	uc.buffer.Append([]domain.Message{*msg})
	uc.metrics.MessagesTotal.WithLabelValues("accepted").Inc()
	uc.metrics.BufferedMessages.Set(float64(uc.buffer.Pending()))
}

func ingestStatus(err error) string {
	switch {
	case errors.Is(err, codec.ErrUnknownMessageType):
		return "error_unknown_type"
	case errors.Is(err, codec.ErrMissingTag):
		return "error_missing_tag"
	default:
		return "error_parse"
	}
}
