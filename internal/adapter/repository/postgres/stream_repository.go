package postgres

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/user/chatvault/internal/domain"
)

const streamsTable = "stream"

// StreamRepository implements domain.StreamRepository on PostgreSQL.
type StreamRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStreamRepository creates a new PostgreSQL stream repository.
func NewStreamRepository(db *sql.DB, logger *slog.Logger) *StreamRepository {
	return &StreamRepository{db: db, logger: logger.With("component", "postgres_streams")}
}

func (r *StreamRepository) WriteStreamBatch(ctx context.Context, streams []domain.StreamRecord) error {
	if len(streams) == 0 {
		return nil
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer txn.Rollback()

	stmt, err := txn.PrepareContext(ctx, pq.CopyIn(streamsTable, "channel_id", "stream_id", "started_at"))
	if err != nil {
		return err
	}

	for _, stream := range streams {
		if _, err := stmt.ExecContext(ctx, stream.ChannelID, stream.StreamID, stream.StartedAt); err != nil {
			_ = stmt.Close()
			return err
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return err
	}
	if err := stmt.Close(); err != nil {
		return err
	}

	return txn.Commit()
}

func (r *StreamRepository) KnownStreams(ctx context.Context, channelID string, since time.Time, limit int) ([]domain.StreamRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT channel_id, stream_id, started_at FROM `+streamsTable+
			` WHERE channel_id = $1 AND started_at >= $2 ORDER BY started_at DESC LIMIT $3`,
		channelID, since.Unix(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var streams []domain.StreamRecord
	for rows.Next() {
		var stream domain.StreamRecord
		if err := rows.Scan(&stream.ChannelID, &stream.StreamID, &stream.StartedAt); err != nil {
			return nil, err
		}
		streams = append(streams, stream)
	}
	return streams, rows.Err()
}
