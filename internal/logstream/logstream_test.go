package logstream

import (
	"context"
	"errors"
	"testing"

	"github.com/user/chatvault/internal/domain"
)

func msgs(timestamps ...int64) []domain.Message {
	out := make([]domain.Message, len(timestamps))
	for i, ts := range timestamps {
		out[i] = domain.Message{Timestamp: ts}
	}
	return out
}

func timestamps(t *testing.T, stream domain.LogStream) []int64 {
	t.Helper()
	collected, err := Collect(context.Background(), stream)
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	out := make([]int64, len(collected))
	for i, m := range collected {
		out[i] = m.Timestamp
	}
	return out
}

func equal(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestConcat(t *testing.T) {
	stream := Concat([]domain.LogStream{
		FromMessages(msgs(1, 2)),
		FromMessages(nil),
		FromMessages(msgs(3)),
	})

	if got := timestamps(t, stream); !equal(got, []int64{1, 2, 3}) {
		t.Errorf("unexpected order: %v", got)
	}
}

func TestLazyConcat(t *testing.T) {
	t.Run("opens streams on demand", func(t *testing.T) {
		opened := 0
		openers := []StreamOpener{
			func(_ context.Context) (domain.LogStream, error) {
				opened++
				return FromMessages(msgs(1, 2)), nil
			},
			func(_ context.Context) (domain.LogStream, error) {
				opened++
				return FromMessages(msgs(3)), nil
			},
		}

		stream := LazyConcat(openers)
		ctx := context.Background()

		if _, err := stream.Next(ctx); err != nil {
			t.Fatalf("first next failed: %v", err)
		}
		if opened != 1 {
			t.Errorf("expected only the first opener to have run, got %d", opened)
		}

		if got := timestamps(t, stream); !equal(got, []int64{2, 3}) {
			t.Errorf("unexpected remainder: %v", got)
		}
		if opened != 2 {
			t.Errorf("expected both openers to have run, got %d", opened)
		}
	})

	t.Run("opener error is surfaced", func(t *testing.T) {
		wantErr := errors.New("cursor failed")
		stream := LazyConcat([]StreamOpener{
			func(_ context.Context) (domain.LogStream, error) { return nil, wantErr },
		})

		if _, err := stream.Next(context.Background()); !errors.Is(err, wantErr) {
			t.Errorf("expected opener error, got %v", err)
		}
	})
}

func TestSplice(t *testing.T) {
	t.Run("ascending puts buffered rows last", func(t *testing.T) {
		stream := Splice(FromMessages(msgs(1, 2)), msgs(3, 4), false)
		if got := timestamps(t, stream); !equal(got, []int64{1, 2, 3, 4}) {
			t.Errorf("unexpected order: %v", got)
		}
	})

	t.Run("descending puts buffered rows first", func(t *testing.T) {
		stream := Splice(FromMessages(msgs(2, 1)), msgs(4, 3), true)
		if got := timestamps(t, stream); !equal(got, []int64{4, 3, 2, 1}) {
			t.Errorf("unexpected order: %v", got)
		}
	})

	t.Run("empty buffer passes the store stream through", func(t *testing.T) {
		store := FromMessages(msgs(1))
		if got := Splice(store, nil, false); got != store {
			t.Error("expected the store stream unchanged")
		}
	})
}

func TestTrim(t *testing.T) {
	cases := []struct {
		name   string
		limit  uint64
		offset uint64
		want   []int64
	}{
		{"limit only", 2, 0, []int64{1, 2}},
		{"offset only", 0, 2, []int64{3, 4, 5}},
		{"limit and offset", 2, 1, []int64{2, 3}},
		{"offset past end", 0, 10, nil},
		{"zero values pass through", 0, 0, []int64{1, 2, 3, 4, 5}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stream := Trim(FromMessages(msgs(1, 2, 3, 4, 5)), tc.limit, tc.offset)
			if got := timestamps(t, stream); !equal(got, tc.want) {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}
