package staging

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/user/chatvault/internal/domain"
)

func msg(channelID, userID string, ts int64) domain.Message {
	return domain.Message{
		ChannelID: channelID,
		UserID:    userID,
		Timestamp: ts,
		Text:      fmt.Sprintf("msg-%d", ts),
	}
}

func TestAppendAndSnapshot(t *testing.T) {
	b := NewBuffer()
	b.Append([]domain.Message{
		msg("1", "a", 100),
		msg("1", "a", 200),
		msg("2", "b", 300),
	})

	if got := b.Pending(); got != 3 {
		t.Fatalf("expected 3 pending entries, got %d", got)
	}

	messages, upToSeq := b.Snapshot("1")
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages in channel 1 snapshot, got %d", len(messages))
	}
	if upToSeq != 1 {
		t.Errorf("expected high-water mark 1, got %d", upToSeq)
	}

	channels := b.Channels()
	if len(channels) != 2 {
		t.Errorf("expected 2 channels with entries, got %v", channels)
	}
}

func TestSnapshotEmptyChannel(t *testing.T) {
	b := NewBuffer()
	messages, upToSeq := b.Snapshot("nope")
	if messages != nil || upToSeq != 0 {
		t.Errorf("expected empty snapshot, got %v / %d", messages, upToSeq)
	}
}

func TestEvictKeepsNewerEntries(t *testing.T) {
	b := NewBuffer()
	b.Append([]domain.Message{msg("1", "a", 100), msg("1", "a", 200)})

	_, upToSeq := b.Snapshot("1")

	// New arrival after the snapshot must survive eviction.
	b.Append([]domain.Message{msg("1", "a", 300)})
	b.Evict("1", upToSeq)

	messages, _ := b.Snapshot("1")
	if len(messages) != 1 {
		t.Fatalf("expected 1 surviving message, got %d", len(messages))
	}
	if messages[0].Timestamp != 300 {
		t.Errorf("expected the post-snapshot message to survive, got ts %d", messages[0].Timestamp)
	}
}

func TestSliceFiltersAndOrders(t *testing.T) {
	b := NewBuffer()
	b.Append([]domain.Message{
		msg("1", "a", 100),
		msg("1", "b", 200),
		msg("1", "a", 300),
		msg("1", "a", 400),
		msg("2", "a", 250),
	})

	from := time.UnixMilli(100)
	to := time.UnixMilli(400)

	t.Run("range is half open", func(t *testing.T) {
		got := b.Slice("1", "", from, to, false)
		if len(got) != 3 {
			t.Fatalf("expected 3 messages in [100, 400), got %d", len(got))
		}
		if got[0].Timestamp != 100 || got[2].Timestamp != 300 {
			t.Errorf("unexpected bounds: first %d last %d", got[0].Timestamp, got[2].Timestamp)
		}
	})

	t.Run("user filter", func(t *testing.T) {
		got := b.Slice("1", "a", from, to, false)
		if len(got) != 2 {
			t.Fatalf("expected 2 messages for user a, got %d", len(got))
		}
	})

	t.Run("descending order", func(t *testing.T) {
		got := b.Slice("1", "", from, to, true)
		for i := 1; i < len(got); i++ {
			if got[i].Timestamp > got[i-1].Timestamp {
				t.Fatalf("descending order violated at %d", i)
			}
		}
	})

	t.Run("channels do not bleed", func(t *testing.T) {
		got := b.Slice("2", "", from, to, false)
		if len(got) != 1 || got[0].Timestamp != 250 {
			t.Errorf("expected only channel 2's message, got %v", got)
		}
	})
}

func TestConcurrentAppendSliceEvict(t *testing.T) {
	b := NewBuffer()
	var wg sync.WaitGroup

	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				b.Append([]domain.Message{msg("1", "a", int64(g*1000+i))})
			}
		}(g)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			b.Slice("1", "", time.UnixMilli(0), time.UnixMilli(10000), false)
			if messages, upToSeq := b.Snapshot("1"); messages != nil {
				b.Evict("1", upToSeq)
			}
		}
	}()

	wg.Wait()

	// Whatever was not evicted mid-run is still snapshottable.
	messages, upToSeq := b.Snapshot("1")
	b.Evict("1", upToSeq)
	if messages != nil && b.Pending() != 0 {
		t.Errorf("expected final eviction to drain the buffer, %d left", b.Pending())
	}
}
