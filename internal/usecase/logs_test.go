package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/user/chatvault/internal/domain"
	"github.com/user/chatvault/internal/domain/mocks"
	"github.com/user/chatvault/internal/logstream"
	"github.com/user/chatvault/internal/staging"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func storedMsg(channelID, userID string, ts time.Time) domain.Message {
	return domain.Message{
		ChannelID: channelID,
		UserID:    userID,
		Timestamp: ts.UnixMilli(),
		Type:      domain.TypePrivMsg,
	}
}

func collectTimestamps(t *testing.T, stream domain.LogStream) []int64 {
	t.Helper()
	collected, err := logstream.Collect(context.Background(), stream)
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	out := make([]int64, len(collected))
	for i, m := range collected {
		out[i] = m.Timestamp
	}
	return out
}

func TestReadChannelValidation(t *testing.T) {
	uc := NewLogsUseCase(&mocks.MockMessageRepository{}, staging.NewBuffer(), testLogger)

	now := time.Now()
	_, err := uc.ReadChannel(context.Background(), "1", domain.TimeRange{From: now, To: now.Add(-time.Hour)}, domain.LogsParams{})
	if !errors.Is(err, domain.ErrInvalidParam) {
		t.Errorf("expected ErrInvalidParam for inverted range, got %v", err)
	}
}

func TestReadChannelSingleQuery(t *testing.T) {
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	repo := &mocks.MockMessageRepository{
		Rows: []domain.Message{
			storedMsg("1", "a", base.Add(1*time.Hour)),
			storedMsg("1", "a", base.Add(2*time.Hour)),
			storedMsg("1", "b", base.Add(3*time.Hour)),
		},
	}
	timeRange := domain.TimeRange{From: base, To: base.Add(24 * time.Hour)}

	t.Run("pushes limit and offset into the store query when buffer is empty", func(t *testing.T) {
		uc := NewLogsUseCase(repo, staging.NewBuffer(), testLogger)

		stream, err := uc.ReadChannel(context.Background(), "1", timeRange, domain.LogsParams{Limit: 1, Offset: 1})
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}

		got := collectTimestamps(t, stream)
		if len(got) != 1 || got[0] != base.Add(2*time.Hour).UnixMilli() {
			t.Errorf("unexpected result: %v", got)
		}

		last := repo.Queries[len(repo.Queries)-1]
		if last.Limit != 1 || last.Offset != 1 {
			t.Errorf("expected limit/offset in store query, got %+v", last)
		}
	})

	t.Run("merges buffered rows after stored rows", func(t *testing.T) {
		buffer := staging.NewBuffer()
		buffer.Append([]domain.Message{storedMsg("1", "a", base.Add(5*time.Hour))})
		uc := NewLogsUseCase(repo, buffer, testLogger)

		stream, err := uc.ReadChannel(context.Background(), "1", timeRange, domain.LogsParams{})
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}

		got := collectTimestamps(t, stream)
		if len(got) != 4 {
			t.Fatalf("expected 3 stored + 1 buffered rows, got %d", len(got))
		}
		if got[3] != base.Add(5*time.Hour).UnixMilli() {
			t.Errorf("expected the buffered row last, got %v", got)
		}
	})

	t.Run("buffered rows come first for reverse order", func(t *testing.T) {
		buffer := staging.NewBuffer()
		buffer.Append([]domain.Message{storedMsg("1", "a", base.Add(5*time.Hour))})
		uc := NewLogsUseCase(repo, buffer, testLogger)

		stream, err := uc.ReadChannel(context.Background(), "1", timeRange, domain.LogsParams{Reverse: true})
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}

		got := collectTimestamps(t, stream)
		for i := 1; i < len(got); i++ {
			if got[i] > got[i-1] {
				t.Fatalf("descending order violated: %v", got)
			}
		}
	})

	t.Run("limit spans buffer and store when both contribute", func(t *testing.T) {
		buffer := staging.NewBuffer()
		buffer.Append([]domain.Message{storedMsg("1", "a", base.Add(5*time.Hour))})
		uc := NewLogsUseCase(repo, buffer, testLogger)

		stream, err := uc.ReadChannel(context.Background(), "1", timeRange, domain.LogsParams{Limit: 4})
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}

		if got := collectTimestamps(t, stream); len(got) != 4 {
			t.Errorf("expected exactly 4 rows, got %v", got)
		}

		// The trim happens on the combined stream, never in the store query.
		last := repo.Queries[len(repo.Queries)-1]
		if last.Limit != 0 || last.Offset != 0 {
			t.Errorf("store query must be untrimmed when the buffer contributes, got %+v", last)
		}
	})
}

func TestReadChannelWindowed(t *testing.T) {
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	fortyDays := domain.TimeRange{From: base, To: base.Add(40 * 24 * time.Hour)}

	rows := []domain.Message{
		storedMsg("1", "a", base.Add(1*24*time.Hour)),
		storedMsg("1", "a", base.Add(20*24*time.Hour)),
		storedMsg("1", "a", base.Add(35*24*time.Hour)),
	}

	t.Run("partitions the range into one query per window", func(t *testing.T) {
		repo := &mocks.MockMessageRepository{Rows: rows}
		uc := NewLogsUseCase(repo, staging.NewBuffer(), testLogger)

		stream, err := uc.ReadChannel(context.Background(), "1", fortyDays, domain.LogsParams{})
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}

		got := collectTimestamps(t, stream)
		if len(got) != 3 {
			t.Fatalf("expected all 3 rows, got %d", len(got))
		}
		for i := 1; i < len(got); i++ {
			if got[i] < got[i-1] {
				t.Fatalf("ascending order violated: %v", got)
			}
		}

		if len(repo.Queries) != 3 {
			t.Errorf("expected 3 window queries for a 40 day range, got %d", len(repo.Queries))
		}
		for _, q := range repo.Queries {
			if q.To.Sub(q.From) > channelQueryWindow {
				t.Errorf("window exceeds the maximum width: %v to %v", q.From, q.To)
			}
			if q.Limit != 0 || q.Offset != 0 {
				t.Errorf("per-window limit/offset must stay zero, got %+v", q)
			}
		}
	})

	t.Run("reverse order reverses the window sequence", func(t *testing.T) {
		repo := &mocks.MockMessageRepository{Rows: rows}
		uc := NewLogsUseCase(repo, staging.NewBuffer(), testLogger)

		stream, err := uc.ReadChannel(context.Background(), "1", fortyDays, domain.LogsParams{Reverse: true})
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}

		got := collectTimestamps(t, stream)
		for i := 1; i < len(got); i++ {
			if got[i] > got[i-1] {
				t.Fatalf("descending order violated: %v", got)
			}
		}

		if !repo.Queries[0].From.Equal(base.Add(28 * 24 * time.Hour)) {
			t.Errorf("expected the newest window first, got from=%v", repo.Queries[0].From)
		}
	})

	t.Run("empty range short-circuits with not found", func(t *testing.T) {
		repo := &mocks.MockMessageRepository{}
		uc := NewLogsUseCase(repo, staging.NewBuffer(), testLogger)

		_, err := uc.ReadChannel(context.Background(), "1", fortyDays, domain.LogsParams{})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if len(repo.Queries) != 0 {
			t.Errorf("expected no window cursors after a failed probe, got %d", len(repo.Queries))
		}
	})

	t.Run("global limit applies across windows", func(t *testing.T) {
		repo := &mocks.MockMessageRepository{Rows: rows}
		uc := NewLogsUseCase(repo, staging.NewBuffer(), testLogger)

		stream, err := uc.ReadChannel(context.Background(), "1", fortyDays, domain.LogsParams{Limit: 2})
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if got := collectTimestamps(t, stream); len(got) != 2 {
			t.Errorf("expected 2 rows, got %v", got)
		}
	})
}

func TestRandomLine(t *testing.T) {
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("empty scope", func(t *testing.T) {
		uc := NewLogsUseCase(&mocks.MockMessageRepository{}, staging.NewBuffer(), testLogger)
		_, err := uc.RandomChannelLine(context.Background(), "1")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("returns a row of the requested scope", func(t *testing.T) {
		repo := &mocks.MockMessageRepository{
			Rows: []domain.Message{
				storedMsg("1", "a", base),
				storedMsg("1", "b", base.Add(time.Hour)),
				storedMsg("1", "a", base.Add(2*time.Hour)),
			},
		}
		uc := NewLogsUseCase(repo, staging.NewBuffer(), testLogger)

		for i := 0; i < 20; i++ {
			msg, err := uc.RandomUserLine(context.Background(), "1", "a")
			if err != nil {
				t.Fatalf("random line failed: %v", err)
			}
			if msg.UserID != "a" {
				t.Fatalf("row outside the user scope: %+v", msg)
			}
		}
	})
}

func TestSearchUser(t *testing.T) {
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("empty search string", func(t *testing.T) {
		uc := NewLogsUseCase(&mocks.MockMessageRepository{}, staging.NewBuffer(), testLogger)
		_, err := uc.SearchUser(context.Background(), "1", "a", "", domain.LogsParams{})
		if !errors.Is(err, domain.ErrInvalidParam) {
			t.Errorf("expected ErrInvalidParam, got %v", err)
		}
	})

	t.Run("matches durable rows only", func(t *testing.T) {
		stored := storedMsg("1", "a", base)
		stored.Text = "Hello World"
		repo := &mocks.MockMessageRepository{Rows: []domain.Message{stored}}

		buffered := storedMsg("1", "a", base.Add(time.Hour))
		buffered.Text = "hello again"
		buffer := staging.NewBuffer()
		buffer.Append([]domain.Message{buffered})

		uc := NewLogsUseCase(repo, buffer, testLogger)

		stream, err := uc.SearchUser(context.Background(), "1", "a", "hello", domain.LogsParams{})
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}

		got := collectTimestamps(t, stream)
		if len(got) != 1 || got[0] != base.UnixMilli() {
			t.Errorf("expected only the stored row, got %v", got)
		}
	})
}

func TestAvailableLogs(t *testing.T) {
	t.Run("no dates means not found", func(t *testing.T) {
		uc := NewLogsUseCase(&mocks.MockMessageRepository{}, staging.NewBuffer(), testLogger)
		if _, err := uc.AvailableChannelLogs(context.Background(), "1"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if _, err := uc.AvailableUserLogs(context.Background(), "1", "a"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("passes dates through", func(t *testing.T) {
		repo := &mocks.MockMessageRepository{
			AvailableChannel: []domain.AvailableLogDate{{Year: "2023", Month: "6", Day: "1"}},
		}
		uc := NewLogsUseCase(repo, staging.NewBuffer(), testLogger)

		dates, err := uc.AvailableChannelLogs(context.Background(), "1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(dates) != 1 || dates[0].String() != "2023/6/1" {
			t.Errorf("unexpected dates: %v", dates)
		}
	})
}

func TestUsersWithLogs(t *testing.T) {
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	repo := &mocks.MockMessageRepository{
		Rows: []domain.Message{storedMsg("1", "a", base)},
	}
	uc := NewLogsUseCase(repo, staging.NewBuffer(), testLogger)

	result, err := uc.UsersWithLogs(context.Background(), "1", []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []domain.UserHasLogs{{User: "a", HasLogs: true}, {User: "b", HasLogs: false}}
	if len(result) != 2 || result[0] != want[0] || result[1] != want[1] {
		t.Errorf("got %v, want %v", result, want)
	}
}

func TestPartitionWindows(t *testing.T) {
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		days int
		want int
	}{
		{"single partial window", 3, 1},
		{"exact multiple", 28, 2},
		{"remainder window", 40, 3},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			timeRange := domain.TimeRange{From: base, To: base.Add(time.Duration(tc.days) * 24 * time.Hour)}
			windows := partitionWindows(timeRange, channelQueryWindow)

			if len(windows) != tc.want {
				t.Fatalf("expected %d windows, got %d", tc.want, len(windows))
			}
			if !windows[0].From.Equal(timeRange.From) {
				t.Error("first window must start at the range start")
			}
			if !windows[len(windows)-1].To.Equal(timeRange.To) {
				t.Error("last window must end at the range end")
			}
			for i := 1; i < len(windows); i++ {
				if !windows[i].From.Equal(windows[i-1].To) {
					t.Errorf("gap between windows %d and %d", i-1, i)
				}
			}
		})
	}
}
