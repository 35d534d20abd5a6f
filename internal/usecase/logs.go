package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/user/chatvault/internal/domain"
	"github.com/user/chatvault/internal/logstream"
	"github.com/user/chatvault/internal/staging"
)

// channelQueryWindow bounds the range of a single store query. Channel
// reads over a longer range are partitioned into consecutive windows of
// this size, each served by its own cursor.
const channelQueryWindow = 14 * 24 * time.Hour

// LogsUseCase is the read-side query engine. It turns log requests into
// bounded store queries and splices the staging buffer into the result so
// freshly ingested rows are visible before they are durable.
type LogsUseCase struct {
	repo   domain.MessageRepository
	buffer *staging.Buffer
	logger *slog.Logger
}

// NewLogsUseCase creates a new LogsUseCase.
func NewLogsUseCase(repo domain.MessageRepository, buffer *staging.Buffer, logger *slog.Logger) *LogsUseCase {
	return &LogsUseCase{
		repo:   repo,
		buffer: buffer,
		logger: logger.With("component", "logs_usecase"),
	}
}

// ReadChannel streams a channel's messages over [From, To) in the
// requested order. Ranges longer than the query window are split into one
// store cursor per window; an existence probe avoids opening cursors over
// an empty range.
func (uc *LogsUseCase) ReadChannel(ctx context.Context, channelID string, timeRange domain.TimeRange, params domain.LogsParams) (domain.LogStream, error) {
	if err := timeRange.Validate(); err != nil {
		return nil, err
	}

	buffered := uc.buffer.Slice(channelID, "", timeRange.From, timeRange.To, params.Reverse)

	if timeRange.Duration() > channelQueryWindow {
		return uc.readChannelWindowed(ctx, channelID, timeRange, params, buffered)
	}

	query := domain.RangeQuery{
		ChannelID:  channelID,
		From:       timeRange.From,
		To:         timeRange.To,
		Descending: params.Reverse,
	}
	return uc.readSingleQuery(ctx, query, params, buffered)
}

// ReadUser streams one chatter's messages in a channel over [From, To).
func (uc *LogsUseCase) ReadUser(ctx context.Context, channelID, userID string, timeRange domain.TimeRange, params domain.LogsParams) (domain.LogStream, error) {
	if err := timeRange.Validate(); err != nil {
		return nil, err
	}

	buffered := uc.buffer.Slice(channelID, userID, timeRange.From, timeRange.To, params.Reverse)

	query := domain.RangeQuery{
		ChannelID:  channelID,
		UserID:     userID,
		From:       timeRange.From,
		To:         timeRange.To,
		Descending: params.Reverse,
	}
	return uc.readSingleQuery(ctx, query, params, buffered)
}

// readSingleQuery serves a request with one store cursor. Limit and offset
// are pushed into the store query only when the buffer contributes
// nothing; otherwise they apply to the spliced sequence and must be
// honored by a trim on the combined stream.
func (uc *LogsUseCase) readSingleQuery(ctx context.Context, query domain.RangeQuery, params domain.LogsParams, buffered []domain.Message) (domain.LogStream, error) {
	if len(buffered) == 0 {
		query.Limit = params.Limit
		query.Offset = params.Offset

		return uc.repo.QueryRange(ctx, query)
	}

	stored, err := uc.repo.QueryRange(ctx, query)
	if err != nil {
		return nil, err
	}
	spliced := logstream.Splice(stored, buffered, params.Reverse)
	return logstream.Trim(spliced, params.Limit, params.Offset), nil
}

func (uc *LogsUseCase) readChannelWindowed(ctx context.Context, channelID string, timeRange domain.TimeRange, params domain.LogsParams, buffered []domain.Message) (domain.LogStream, error) {
	hasRows, err := uc.repo.HasRows(ctx, channelID, timeRange.From, timeRange.To)
	if err != nil {
		return nil, err
	}
	if !hasRows {
		return nil, domain.ErrNotFound
	}

	windows := partitionWindows(timeRange, channelQueryWindow)
	if params.Reverse {
		reverseWindows(windows)
	}

	uc.logger.Debug("using multi-query stream", "channel_id", channelID, "windows", len(windows))

	openers := make([]logstream.StreamOpener, len(windows))
	for i, window := range windows {
		query := domain.RangeQuery{
			ChannelID:  channelID,
			From:       window.From,
			To:         window.To,
			Descending: params.Reverse,
		}
		openers[i] = func(ctx context.Context) (domain.LogStream, error) {
			return uc.repo.QueryRange(ctx, query)
		}
	}

	// Per-window limit and offset would be wrong; the combined sequence is
	// trimmed instead.
	spliced := logstream.Splice(logstream.LazyConcat(openers), buffered, params.Reverse)
	return logstream.Trim(spliced, params.Limit, params.Offset), nil
}

// RandomChannelLine returns one uniformly random stored message of a
// channel, or ErrNotFound for an empty scope.
func (uc *LogsUseCase) RandomChannelLine(ctx context.Context, channelID string) (*domain.Message, error) {
	return uc.randomLine(ctx, channelID, "")
}

// RandomUserLine returns one uniformly random stored message of a chatter
// in a channel, or ErrNotFound for an empty scope.
func (uc *LogsUseCase) RandomUserLine(ctx context.Context, channelID, userID string) (*domain.Message, error) {
	return uc.randomLine(ctx, channelID, userID)
}

// randomLine draws a uniform offset in [0, count) and resolves it with a
// two-step query: the store has no efficient random-row primitive, so the
// timestamp at the offset is fetched first and the first row carrying that
// timestamp is returned.
func (uc *LogsUseCase) randomLine(ctx context.Context, channelID, userID string) (*domain.Message, error) {
	count, err := uc.repo.CountScope(ctx, channelID, userID)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, domain.ErrNotFound
	}

	offset := rand.Uint64N(count)

	timestamp, err := uc.repo.TimestampAtOffset(ctx, channelID, userID, offset)
	if err != nil {
		return nil, err
	}

	return uc.repo.MessageAtTimestamp(ctx, channelID, userID, timestamp)
}

// SearchUser streams stored messages of a chatter whose text contains the
// search string, case-insensitively. The staging buffer is not merged:
// search is defined over durable history only.
func (uc *LogsUseCase) SearchUser(ctx context.Context, channelID, userID, search string, params domain.LogsParams) (domain.LogStream, error) {
	if search == "" {
		return nil, fmt.Errorf("%w: empty search string", domain.ErrInvalidParam)
	}
	return uc.repo.SearchText(ctx, channelID, userID, search, params.Reverse, params.Limit, params.Offset)
}

// AvailableChannelLogs lists days with stored messages, newest first.
func (uc *LogsUseCase) AvailableChannelLogs(ctx context.Context, channelID string) ([]domain.AvailableLogDate, error) {
	dates, err := uc.repo.AvailableChannelLogs(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return nil, domain.ErrNotFound
	}
	return dates, nil
}

// AvailableUserLogs lists months with stored messages, newest first.
func (uc *LogsUseCase) AvailableUserLogs(ctx context.Context, channelID, userID string) ([]domain.AvailableLogDate, error) {
	dates, err := uc.repo.AvailableUserLogs(ctx, channelID, userID)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return nil, domain.ErrNotFound
	}
	return dates, nil
}

// ChannelStats returns a channel's message count and top chatters.
func (uc *LogsUseCase) ChannelStats(ctx context.Context, channelID string, timeRange *domain.TimeRange) (*domain.ChannelLogsStats, error) {
	if timeRange != nil {
		if err := timeRange.Validate(); err != nil {
			return nil, err
		}
	}
	return uc.repo.ChannelStats(ctx, channelID, timeRange)
}

// UserStats returns one chatter's message count in a channel.
func (uc *LogsUseCase) UserStats(ctx context.Context, channelID, userID string, timeRange *domain.TimeRange) (*domain.UserLogsStats, error) {
	if timeRange != nil {
		if err := timeRange.Validate(); err != nil {
			return nil, err
		}
	}
	return uc.repo.UserStats(ctx, channelID, userID, timeRange)
}

// UsersWithLogs reports for each user id whether the channel holds any of
// their messages.
func (uc *LogsUseCase) UsersWithLogs(ctx context.Context, channelID string, userIDs []string) ([]domain.UserHasLogs, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	found, err := uc.repo.UsersWithLogs(ctx, channelID, userIDs)
	if err != nil {
		return nil, err
	}

	withLogs := make(map[string]bool, len(found))
	for _, id := range found {
		withLogs[id] = true
	}

	result := make([]domain.UserHasLogs, len(userIDs))
	for i, id := range userIDs {
		result[i] = domain.UserHasLogs{User: id, HasLogs: withLogs[id]}
	}
	return result, nil
}

// UserLoginHistory lists the logins a user id has been seen under.
func (uc *LogsUseCase) UserLoginHistory(ctx context.Context, userID string) ([]domain.PreviousName, error) {
	return uc.repo.UserLoginHistory(ctx, userID)
}

// partitionWindows splits a range into consecutive, non-overlapping
// windows of the given width covering exactly [From, To); the final window
// may be shorter.
func partitionWindows(timeRange domain.TimeRange, width time.Duration) []domain.TimeRange {
	var windows []domain.TimeRange

	from := timeRange.From
	for from.Before(timeRange.To) {
		to := from.Add(width)
		if to.After(timeRange.To) {
			to = timeRange.To
		}
		windows = append(windows, domain.TimeRange{From: from, To: to})
		from = to
	}

	return windows
}

func reverseWindows(windows []domain.TimeRange) {
	for i, j := 0, len(windows)-1; i < j; i, j = i+1, j-1 {
		windows[i], windows[j] = windows[j], windows[i]
	}
}
