package writer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/user/chatvault/internal/adapter/metrics"
	"github.com/user/chatvault/internal/domain"
	"github.com/user/chatvault/internal/domain/mocks"
	"github.com/user/chatvault/internal/staging"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestWriter(buffer *staging.Buffer, messages *mocks.MockMessageRepository, streams *mocks.MockStreamRepository) *Writer {
	return New(buffer, messages, streams, testLogger, metrics.New(prometheus.NewRegistry()), time.Hour, 4)
}

func staged(channelID string, ts int64) domain.Message {
	return domain.Message{ChannelID: channelID, UserID: "u", Timestamp: ts, Type: domain.TypePrivMsg}
}

func TestFlushAllPersistsAndEvicts(t *testing.T) {
	buffer := staging.NewBuffer()
	buffer.Append([]domain.Message{staged("1", 100), staged("1", 200), staged("2", 300)})

	messages := &mocks.MockMessageRepository{}
	w := newTestWriter(buffer, messages, &mocks.MockStreamRepository{})

	w.flushAll(context.Background())

	if len(messages.Written) != 3 {
		t.Errorf("expected 3 persisted rows, got %d", len(messages.Written))
	}
	if buffer.Pending() != 0 {
		t.Errorf("expected the buffer drained after flush, %d left", buffer.Pending())
	}
}

func TestFlushAllKeepsEntriesOnFailure(t *testing.T) {
	buffer := staging.NewBuffer()
	buffer.Append([]domain.Message{staged("1", 100)})

	messages := &mocks.MockMessageRepository{WriteErr: errors.New("store down")}
	w := newTestWriter(buffer, messages, &mocks.MockStreamRepository{})

	w.flushAll(context.Background())

	if buffer.Pending() != 1 {
		t.Fatalf("expected the entry retained for retry, %d buffered", buffer.Pending())
	}

	// Once the store recovers the retained entry flushes normally.
	messages.WriteErr = nil
	w.flushAll(context.Background())
	if buffer.Pending() != 0 {
		t.Errorf("expected the retry to drain the buffer, %d left", buffer.Pending())
	}
}

func TestFlushDoesNotEvictPostSnapshotArrivals(t *testing.T) {
	buffer := staging.NewBuffer()
	buffer.Append([]domain.Message{staged("1", 100)})

	arrived := make(chan struct{})
	messages := &mocks.MockMessageRepository{}
	w := newTestWriter(buffer, messages, &mocks.MockStreamRepository{})

	// Simulate a message arriving while the batch write is in flight.
	go func() {
		buffer.Append([]domain.Message{staged("1", 200)})
		close(arrived)
	}()
	<-arrived
	w.flushAll(context.Background())

	remaining := buffer.Slice("1", "", time.UnixMilli(0), time.UnixMilli(1000), false)
	for _, msg := range remaining {
		if msg.Timestamp == 100 && len(messages.Written) > 0 {
			t.Error("flushed entry must be evicted")
		}
	}
	if buffer.Pending()+len(messages.Written) != 2 {
		t.Errorf("every message must be either buffered or persisted, %d buffered %d persisted",
			buffer.Pending(), len(messages.Written))
	}
}

func TestRunWritesSubmittedStreamBatches(t *testing.T) {
	buffer := staging.NewBuffer()
	streams := &mocks.MockStreamRepository{}
	w := newTestWriter(buffer, &mocks.MockMessageRepository{}, streams)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	batch := []domain.StreamRecord{{ChannelID: "1", StreamID: "s1", StartedAt: 1700000000}}
	if err := w.SubmitStreams(ctx, batch); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for streams.WrittenCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("stream batch was never written")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestRunFlushesOnShutdown(t *testing.T) {
	buffer := staging.NewBuffer()
	buffer.Append([]domain.Message{staged("1", 100)})

	messages := &mocks.MockMessageRepository{}
	w := newTestWriter(buffer, messages, &mocks.MockStreamRepository{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("writer did not stop on cancellation")
	}

	if len(messages.Written) != 1 {
		t.Errorf("expected the staged row flushed on shutdown, got %d", len(messages.Written))
	}
	if buffer.Pending() != 0 {
		t.Errorf("expected the buffer drained on shutdown, %d left", buffer.Pending())
	}
}
