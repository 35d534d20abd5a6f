package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/user/chatvault/internal/domain"
)

const messagesTable = "message_structured"

const messageColumns = `channel_id, channel_login, timestamp, id, message_type, user_id, user_login,
	display_name, color, user_type, badges, badge_info, client_nonce, emotes, automod_flags,
	text, message_flags, extra_tags`

// MessageRepository implements domain.MessageRepository on PostgreSQL.
type MessageRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewMessageRepository creates a new PostgreSQL message repository.
func NewMessageRepository(db *sql.DB, logger *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, logger: logger.With("component", "postgres_messages")}
}

// rowStream adapts sql.Rows to domain.LogStream.
type rowStream struct {
	rows *sql.Rows
}

func (s *rowStream) Next(_ context.Context) (*domain.Message, error) {
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	msg, err := scanMessage(s.rows)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *rowStream) Close() error {
	return s.rows.Close()
}

func scanMessage(rows *sql.Rows) (*domain.Message, error) {
	var (
		msg       domain.Message
		id        uuid.UUID
		msgType   int16
		color     sql.NullInt64
		badges    pq.StringArray
		flags     int32
		extraTags []byte
	)

	err := rows.Scan(
		&msg.ChannelID, &msg.ChannelLogin, &msg.Timestamp, &id, &msgType,
		&msg.UserID, &msg.UserLogin, &msg.DisplayName, &color, &msg.UserType,
		&badges, &msg.BadgeInfo, &msg.ClientNonce, &msg.Emotes,
		&msg.AutomodFlags, &msg.Text, &flags, &extraTags,
	)
	if err != nil {
		return nil, err
	}

	msg.ID = id
	msg.Type = domain.MessageType(msgType)
	msg.Flags = domain.MessageFlags(flags)
	msg.Badges = badges
	if color.Valid {
		c := uint32(color.Int64)
		msg.Color = &c
	}
	if len(extraTags) > 0 {
		var pairs [][2]string
		if err := json.Unmarshal(extraTags, &pairs); err != nil {
			return nil, fmt.Errorf("decode extra tags: %w", err)
		}
		msg.ExtraTags = make([]domain.ExtraTag, len(pairs))
		for i, p := range pairs {
			msg.ExtraTags[i] = domain.ExtraTag{Key: p[0], Value: p[1]}
		}
	}

	return &msg, nil
}

// QueryRange opens a cursor over rows of the scope within [From, To),
// ordered by timestamp.
func (r *MessageRepository) QueryRange(ctx context.Context, q domain.RangeQuery) (domain.LogStream, error) {
	query := `SELECT ` + messageColumns + ` FROM ` + messagesTable + ` WHERE channel_id = $1`
	args := []any{q.ChannelID}

	if q.UserID != "" {
		args = append(args, q.UserID)
		query += ` AND user_id = $` + strconv.Itoa(len(args))
	}

	args = append(args, q.From.UnixMilli())
	query += ` AND timestamp >= $` + strconv.Itoa(len(args))
	args = append(args, q.To.UnixMilli())
	query += ` AND timestamp < $` + strconv.Itoa(len(args))

	query += orderClause(q.Descending)
	query = applyLimitOffset(query, q.Limit, q.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &rowStream{rows: rows}, nil
}

// HasRows reports whether the scope holds at least one row in [from, to).
func (r *MessageRepository) HasRows(ctx context.Context, channelID string, from, to time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+messagesTable+` WHERE channel_id = $1 AND timestamp >= $2 AND timestamp < $3)`,
		channelID, from.UnixMilli(), to.UnixMilli(),
	).Scan(&exists)
	return exists, err
}

func (r *MessageRepository) CountScope(ctx context.Context, channelID, userID string) (uint64, error) {
	query := `SELECT count(*) FROM ` + messagesTable + ` WHERE channel_id = $1`
	args := []any{channelID}
	if userID != "" {
		query += ` AND user_id = $2`
		args = append(args, userID)
	}

	var count uint64
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

func (r *MessageRepository) TimestampAtOffset(ctx context.Context, channelID, userID string, offset uint64) (int64, error) {
	query := `SELECT timestamp FROM ` + messagesTable + ` WHERE channel_id = $1`
	args := []any{channelID}
	if userID != "" {
		query += ` AND user_id = $2`
		args = append(args, userID)
	}
	args = append(args, offset)
	query += ` ORDER BY timestamp LIMIT 1 OFFSET $` + strconv.Itoa(len(args))

	var timestamp int64
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&timestamp)
	if err == sql.ErrNoRows {
		return 0, domain.ErrNotFound
	}
	return timestamp, err
}

func (r *MessageRepository) MessageAtTimestamp(ctx context.Context, channelID, userID string, timestamp int64) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM ` + messagesTable + ` WHERE channel_id = $1`
	args := []any{channelID}
	if userID != "" {
		query += ` AND user_id = $2`
		args = append(args, userID)
	}
	args = append(args, timestamp)
	query += ` AND timestamp = $` + strconv.Itoa(len(args)) + ` LIMIT 1`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, domain.ErrNotFound
	}
	return scanMessage(rows)
}

// SearchText matches the search string as a case-insensitive substring of
// the message text.
func (r *MessageRepository) SearchText(ctx context.Context, channelID, userID, search string, descending bool, limit, offset uint64) (domain.LogStream, error) {
	query := `SELECT ` + messageColumns + ` FROM ` + messagesTable +
		` WHERE channel_id = $1 AND user_id = $2 AND strpos(lower(text), lower($3)) > 0` +
		orderClause(descending)
	query = applyLimitOffset(query, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, channelID, userID, search)
	if err != nil {
		return nil, err
	}
	return &rowStream{rows: rows}, nil
}

func (r *MessageRepository) AvailableChannelLogs(ctx context.Context, channelID string) ([]domain.AvailableLogDate, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT date_trunc('day', to_timestamp(timestamp / 1000.0) AT TIME ZONE 'UTC') AS date
		 FROM `+messagesTable+` WHERE channel_id = $1 GROUP BY date ORDER BY date DESC`,
		channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dates []domain.AvailableLogDate
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return nil, err
		}
		dates = append(dates, domain.AvailableLogDate{
			Year:  strconv.Itoa(day.Year()),
			Month: strconv.Itoa(int(day.Month())),
			Day:   strconv.Itoa(day.Day()),
		})
	}
	return dates, rows.Err()
}

func (r *MessageRepository) AvailableUserLogs(ctx context.Context, channelID, userID string) ([]domain.AvailableLogDate, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT date_trunc('month', to_timestamp(timestamp / 1000.0) AT TIME ZONE 'UTC') AS date
		 FROM `+messagesTable+` WHERE channel_id = $1 AND user_id = $2 GROUP BY date ORDER BY date DESC`,
		channelID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dates []domain.AvailableLogDate
	for rows.Next() {
		var month time.Time
		if err := rows.Scan(&month); err != nil {
			return nil, err
		}
		dates = append(dates, domain.AvailableLogDate{
			Year:  strconv.Itoa(month.Year()),
			Month: strconv.Itoa(int(month.Month())),
		})
	}
	return dates, rows.Err()
}

func (r *MessageRepository) ChannelStats(ctx context.Context, channelID string, timeRange *domain.TimeRange) (*domain.ChannelLogsStats, error) {
	countQuery := `SELECT count(*) FROM ` + messagesTable + ` WHERE channel_id = $1`
	args := []any{channelID}
	if timeRange != nil {
		countQuery += ` AND timestamp >= $2 AND timestamp < $3`
		args = append(args, timeRange.From.UnixMilli(), timeRange.To.UnixMilli())
	}

	stats := &domain.ChannelLogsStats{}
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&stats.MessageCount); err != nil {
		return nil, err
	}

	topQuery := `SELECT count(*) AS cnt, user_id FROM ` + messagesTable +
		` WHERE channel_id = $1 AND user_id != ''`
	if timeRange != nil {
		topQuery += ` AND timestamp >= $2 AND timestamp < $3`
	}
	topQuery += ` GROUP BY user_id ORDER BY cnt DESC LIMIT 5`

	rows, err := r.db.QueryContext(ctx, topQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var top domain.UserLogsStats
		if err := rows.Scan(&top.MessageCount, &top.UserID); err != nil {
			return nil, err
		}
		stats.TopChatters = append(stats.TopChatters, top)
	}
	return stats, rows.Err()
}

func (r *MessageRepository) UserStats(ctx context.Context, channelID, userID string, timeRange *domain.TimeRange) (*domain.UserLogsStats, error) {
	query := `SELECT count(*) FROM ` + messagesTable + ` WHERE channel_id = $1 AND user_id = $2`
	args := []any{channelID, userID}
	if timeRange != nil {
		query += ` AND timestamp >= $3 AND timestamp < $4`
		args = append(args, timeRange.From.UnixMilli(), timeRange.To.UnixMilli())
	}

	stats := &domain.UserLogsStats{UserID: userID}
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&stats.MessageCount); err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *MessageRepository) UsersWithLogs(ctx context.Context, channelID string, userIDs []string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM `+messagesTable+` WHERE channel_id = $1 AND user_id = ANY($2) GROUP BY user_id`,
		channelID, pq.Array(userIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var found []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		found = append(found, userID)
	}
	return found, rows.Err()
}

func (r *MessageRepository) UserIDByLogin(ctx context.Context, login string) (string, error) {
	var userID string
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id FROM `+messagesTable+` WHERE user_login = $1 AND user_id != '' LIMIT 1`,
		login,
	).Scan(&userID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return userID, err
}

func (r *MessageRepository) UserLoginHistory(ctx context.Context, userID string) ([]domain.PreviousName, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_login, min(timestamp), max(timestamp) FROM `+messagesTable+
			` WHERE user_id = $1 AND user_login != '' GROUP BY user_login ORDER BY max(timestamp) DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []domain.PreviousName
	for rows.Next() {
		var (
			name        domain.PreviousName
			first, last int64
		)
		if err := rows.Scan(&name.UserLogin, &first, &last); err != nil {
			return nil, err
		}
		name.FirstTimestamp = time.UnixMilli(first).UTC()
		name.LastTimestamp = time.UnixMilli(last).UTC()
		names = append(names, name)
	}
	return names, rows.Err()
}

// WriteMessageBatch persists a batch of rows using the COPY protocol. The
// table is append-only; duplicates cannot occur because the staging buffer
// evicts exactly the flushed batch.
func (r *MessageRepository) WriteMessageBatch(ctx context.Context, messages []domain.Message) error {
	if len(messages) == 0 {
		return nil
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer txn.Rollback() // Rollback is a no-op if Commit() is called

	stmt, err := txn.PrepareContext(ctx, pq.CopyIn(messagesTable,
		"channel_id", "channel_login", "timestamp", "id", "message_type", "user_id",
		"user_login", "display_name", "color", "user_type", "badges", "badge_info",
		"client_nonce", "emotes", "automod_flags", "text", "message_flags", "extra_tags"))
	if err != nil {
		return err
	}

	for i := range messages {
		msg := &messages[i]

		var color any
		if msg.Color != nil {
			color = int64(*msg.Color)
		}

		extraTags, err := encodeExtraTags(msg.ExtraTags)
		if err != nil {
			_ = stmt.Close()
			return err
		}

		_, err = stmt.ExecContext(ctx,
			msg.ChannelID, msg.ChannelLogin, msg.Timestamp, msg.ID, int16(msg.Type),
			msg.UserID, msg.UserLogin, msg.DisplayName, color, msg.UserType,
			pq.Array(msg.Badges), msg.BadgeInfo, msg.ClientNonce, msg.Emotes,
			msg.AutomodFlags, msg.Text, int32(msg.Flags), extraTags)
		if err != nil {
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

func encodeExtraTags(tags []domain.ExtraTag) ([]byte, error) {
	if len(tags) == 0 {
		return []byte("[]"), nil
	}
	pairs := make([][2]string, len(tags))
	for i, t := range tags {
		pairs[i] = [2]string{t.Key, t.Value}
	}
	return json.Marshal(pairs)
}

func orderClause(descending bool) string {
	if descending {
		return ` ORDER BY timestamp DESC`
	}
	return ` ORDER BY timestamp ASC`
}

func applyLimitOffset(query string, limit, offset uint64) string {
	if limit > 0 {
		query += ` LIMIT ` + strconv.FormatUint(limit, 10)
	}
	if offset > 0 {
		query += ` OFFSET ` + strconv.FormatUint(offset, 10)
	}
	return query
}
