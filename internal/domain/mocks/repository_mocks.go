package mocks

import (
	"context"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/user/chatvault/internal/domain"
)

type sliceStream struct {
	messages []domain.Message
	pos      int
	closed   bool
}

func (s *sliceStream) Next(_ context.Context) (*domain.Message, error) {
	if s.pos >= len(s.messages) {
		return nil, io.EOF
	}
	msg := &s.messages[s.pos]
	s.pos++
	return msg, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

// MockMessageRepository is a mock implementation of domain.MessageRepository
// for testing. Query methods evaluate against the Rows fixture so tests can
// verify windowing and ordering end to end.
type MockMessageRepository struct {
	mu      sync.Mutex
	Rows    []domain.Message
	Written []domain.Message
	Queries []domain.RangeQuery

	AvailableChannel []domain.AvailableLogDate
	AvailableUser    []domain.AvailableLogDate
	ChannelStatsRes  *domain.ChannelLogsStats
	UserStatsRes     *domain.UserLogsStats
	LoginHistory     []domain.PreviousName

	QueryErr  error
	ProbeErr  error
	CountErr  error
	SearchErr error
	StatsErr  error
	WriteErr  error
}

func (m *MockMessageRepository) scope(channelID, userID string) []domain.Message {
	var out []domain.Message
	for _, row := range m.Rows {
		if row.ChannelID != channelID {
			continue
		}
		if userID != "" && row.UserID != userID {
			continue
		}
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

func inRange(ts int64, from, to time.Time) bool {
	return ts >= from.UnixMilli() && ts < to.UnixMilli()
}

func (m *MockMessageRepository) QueryRange(_ context.Context, q domain.RangeQuery) (domain.LogStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	m.Queries = append(m.Queries, q)

	var out []domain.Message
	for _, row := range m.scope(q.ChannelID, q.UserID) {
		if inRange(row.Timestamp, q.From, q.To) {
			out = append(out, row)
		}
	}
	if q.Descending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if q.Offset > 0 {
		if q.Offset >= uint64(len(out)) {
			out = nil
		} else {
			out = out[q.Offset:]
		}
	}
	if q.Limit > 0 && uint64(len(out)) > q.Limit {
		out = out[:q.Limit]
	}
	return &sliceStream{messages: out}, nil
}

func (m *MockMessageRepository) HasRows(_ context.Context, channelID string, from, to time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ProbeErr != nil {
		return false, m.ProbeErr
	}
	for _, row := range m.scope(channelID, "") {
		if inRange(row.Timestamp, from, to) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockMessageRepository) CountScope(_ context.Context, channelID, userID string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CountErr != nil {
		return 0, m.CountErr
	}
	return uint64(len(m.scope(channelID, userID))), nil
}

func (m *MockMessageRepository) TimestampAtOffset(_ context.Context, channelID, userID string, offset uint64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.scope(channelID, userID)
	if offset >= uint64(len(rows)) {
		return 0, domain.ErrNotFound
	}
	return rows[offset].Timestamp, nil
}

func (m *MockMessageRepository) MessageAtTimestamp(_ context.Context, channelID, userID string, timestamp int64) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.scope(channelID, userID) {
		if row.Timestamp == timestamp {
			return &row, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockMessageRepository) SearchText(_ context.Context, channelID, userID, search string, descending bool, limit, offset uint64) (domain.LogStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	var out []domain.Message
	for _, row := range m.scope(channelID, userID) {
		if strings.Contains(strings.ToLower(row.Text), strings.ToLower(search)) {
			out = append(out, row)
		}
	}
	if descending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if offset > 0 {
		if offset >= uint64(len(out)) {
			out = nil
		} else {
			out = out[offset:]
		}
	}
	if limit > 0 && uint64(len(out)) > limit {
		out = out[:limit]
	}
	return &sliceStream{messages: out}, nil
}

func (m *MockMessageRepository) AvailableChannelLogs(_ context.Context, channelID string) ([]domain.AvailableLogDate, error) {
	if m.StatsErr != nil {
		return nil, m.StatsErr
	}
	return m.AvailableChannel, nil
}

func (m *MockMessageRepository) AvailableUserLogs(_ context.Context, channelID, userID string) ([]domain.AvailableLogDate, error) {
	if m.StatsErr != nil {
		return nil, m.StatsErr
	}
	return m.AvailableUser, nil
}

func (m *MockMessageRepository) ChannelStats(_ context.Context, channelID string, timeRange *domain.TimeRange) (*domain.ChannelLogsStats, error) {
	if m.StatsErr != nil {
		return nil, m.StatsErr
	}
	return m.ChannelStatsRes, nil
}

func (m *MockMessageRepository) UserStats(_ context.Context, channelID, userID string, timeRange *domain.TimeRange) (*domain.UserLogsStats, error) {
	if m.StatsErr != nil {
		return nil, m.StatsErr
	}
	return m.UserStatsRes, nil
}

func (m *MockMessageRepository) UsersWithLogs(_ context.Context, channelID string, userIDs []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, id := range userIDs {
		if len(m.scope(channelID, id)) > 0 {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *MockMessageRepository) UserIDByLogin(_ context.Context, login string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.Rows {
		if row.UserLogin == login {
			return row.UserID, nil
		}
	}
	return "", nil
}

func (m *MockMessageRepository) UserLoginHistory(_ context.Context, userID string) ([]domain.PreviousName, error) {
	return m.LoginHistory, nil
}

func (m *MockMessageRepository) WriteMessageBatch(_ context.Context, messages []domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.Written = append(m.Written, messages...)
	return nil
}

// MockStreamRepository is a mock implementation of domain.StreamRepository
// for testing.
type MockStreamRepository struct {
	mu             sync.Mutex
	WrittenStreams []domain.StreamRecord
	KnownResult    []domain.StreamRecord
	WriteErr       error
	KnownErr       error
}

func (m *MockStreamRepository) WriteStreamBatch(_ context.Context, streams []domain.StreamRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.WrittenStreams = append(m.WrittenStreams, streams...)
	return nil
}

// WrittenCount reports the written records under the lock, for assertions
// racing the writer goroutine.
func (m *MockStreamRepository) WrittenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.WrittenStreams)
}

func (m *MockStreamRepository) KnownStreams(_ context.Context, channelID string, since time.Time, limit int) ([]domain.StreamRecord, error) {
	if m.KnownErr != nil {
		return nil, m.KnownErr
	}
	return m.KnownResult, nil
}

// MockStreamLister is a mock implementation of domain.StreamLister for
// testing. Pages are served in order; the cursor is the page index.
type MockStreamLister struct {
	mu      sync.Mutex
	Pages   [][]domain.LiveStream
	Calls   int
	ListErr error
}

func (m *MockStreamLister) ListLive(_ context.Context, cursor string, pageSize int) ([]domain.LiveStream, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.ListErr != nil {
		return nil, "", m.ListErr
	}

	page := 0
	if cursor != "" {
		page, _ = strconv.Atoi(cursor)
	}
	if page >= len(m.Pages) {
		return nil, "", nil
	}

	next := ""
	if page+1 < len(m.Pages) {
		next = strconv.Itoa(page + 1)
	}
	return m.Pages[page], next, nil
}

// MockUserDirectory is a mock implementation of domain.UserDirectory for
// testing.
type MockUserDirectory struct {
	IDsByName  map[string]string
	LoginsByID map[string]string
	LookupErr  error
}

func (m *MockUserDirectory) UserIDByName(_ context.Context, login string) (string, error) {
	if m.LookupErr != nil {
		return "", m.LookupErr
	}
	return m.IDsByName[login], nil
}

func (m *MockUserDirectory) UsersByID(_ context.Context, ids []string) (map[string]string, error) {
	if m.LookupErr != nil {
		return nil, m.LookupErr
	}
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if login, ok := m.LoginsByID[id]; ok {
			out[id] = login
		}
	}
	return out, nil
}
