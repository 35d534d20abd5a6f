package domain

import (
	"context"
	"time"
)

// LogStream is a lazily-produced ordered sequence of messages. Next returns
// io.EOF once the sequence is exhausted. Implementations are not safe for
// concurrent use and must be closed by the consumer.
type LogStream interface {
	Next(ctx context.Context) (*Message, error)
	Close() error
}

// RangeQuery describes one bounded store query over [From, To).
type RangeQuery struct {
	ChannelID string
	// UserID narrows the query to one chatter when non-empty.
	UserID     string
	From       time.Time
	To         time.Time
	Descending bool
	// Limit and Offset are pushed into the store query when non-zero.
	// Callers trimming results themselves must leave both at zero.
	Limit  uint64
	Offset uint64
}

// MessageRepository is the durable columnar store holding decoded messages.
// Query methods stream rows ordered by timestamp; errors from the store are
// returned unmodified.
type MessageRepository interface {
	// QueryRange opens a cursor over all rows matching the query.
	QueryRange(ctx context.Context, q RangeQuery) (LogStream, error)

	// HasRows reports whether at least one row exists in the scope and range.
	HasRows(ctx context.Context, channelID string, from, to time.Time) (bool, error)

	// CountScope returns the total row count for a channel, or for a single
	// chatter within the channel when userID is non-empty.
	CountScope(ctx context.Context, channelID, userID string) (uint64, error)

	// TimestampAtOffset returns the timestamp of the row at the given offset
	// within the scope, in store order.
	TimestampAtOffset(ctx context.Context, channelID, userID string, offset uint64) (int64, error)

	// MessageAtTimestamp returns the first row of the scope with exactly the
	// given timestamp, or ErrNotFound.
	MessageAtTimestamp(ctx context.Context, channelID, userID string, timestamp int64) (*Message, error)

	// SearchText opens a cursor over rows of the scope whose text contains
	// the search string, case-insensitively, ordered by timestamp.
	SearchText(ctx context.Context, channelID, userID, search string, descending bool, limit, offset uint64) (LogStream, error)

	// AvailableChannelLogs lists days with stored rows, newest first.
	AvailableChannelLogs(ctx context.Context, channelID string) ([]AvailableLogDate, error)

	// AvailableUserLogs lists months with stored rows, newest first.
	AvailableUserLogs(ctx context.Context, channelID, userID string) ([]AvailableLogDate, error)

	// ChannelStats returns the message count and top chatters of a channel,
	// optionally restricted to a time range.
	ChannelStats(ctx context.Context, channelID string, timeRange *TimeRange) (*ChannelLogsStats, error)

	// UserStats returns one chatter's message count in a channel.
	UserStats(ctx context.Context, channelID, userID string, timeRange *TimeRange) (*UserLogsStats, error)

	// UsersWithLogs filters userIDs down to the ones with stored rows.
	UsersWithLogs(ctx context.Context, channelID string, userIDs []string) ([]string, error)

	// UserIDByLogin resolves a login from stored rows; returns "" when the
	// login has never been seen.
	UserIDByLogin(ctx context.Context, login string) (string, error)

	// UserLoginHistory lists the logins a user id has appeared under.
	UserLoginHistory(ctx context.Context, userID string) ([]PreviousName, error)

	// WriteMessageBatch persists a batch of rows.
	WriteMessageBatch(ctx context.Context, messages []Message) error
}

// StreamRepository stores broadcasts observed by the reconciliation loop.
type StreamRepository interface {
	WriteStreamBatch(ctx context.Context, streams []StreamRecord) error

	// KnownStreams lists recorded broadcasts of a channel started at or
	// after since, newest first, capped at limit.
	KnownStreams(ctx context.Context, channelID string, since time.Time, limit int) ([]StreamRecord, error)
}

// StreamLister is the external "currently live" listing, paginated by an
// opaque cursor. An empty next cursor ends the listing.
type StreamLister interface {
	ListLive(ctx context.Context, cursor string, pageSize int) ([]LiveStream, string, error)
}

// UserDirectory resolves channel and user names against the external
// directory API.
type UserDirectory interface {
	UserIDByName(ctx context.Context, login string) (string, error)

	// UsersByID maps user ids to their current login names. Unknown ids are
	// omitted from the result.
	UsersByID(ctx context.Context, ids []string) (map[string]string, error)
}
