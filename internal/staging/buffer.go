// Package staging holds decoded messages between acceptance and durable
// persistence. Every read path merges this buffer with the store so rows
// are queryable the moment they are ingested.
package staging

import (
	"sort"
	"sync"
	"time"

	"github.com/user/chatvault/internal/domain"
)

// Buffer is a concurrency-safe per-channel holding area. Each channel gets
// its own shard with its own lock, so flushing one channel never blocks
// reads on another. Construct with NewBuffer and pass the handle around;
// lifecycle is tied to process start and shutdown.
type Buffer struct {
	shards sync.Map // channel id -> *shard
}

type shard struct {
	mu      sync.RWMutex
	entries []entry
	nextSeq uint64
}

type entry struct {
	seq uint64
	msg domain.Message
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

func (b *Buffer) shard(channelID string) *shard {
	if s, ok := b.shards.Load(channelID); ok {
		return s.(*shard)
	}
	s, _ := b.shards.LoadOrStore(channelID, &shard{})
	return s.(*shard)
}

// Append accepts decoded messages into the buffer. Safe to call
// concurrently with reads and eviction.
func (b *Buffer) Append(messages []domain.Message) {
	for i := range messages {
		s := b.shard(messages[i].ChannelID)
		s.mu.Lock()
		s.entries = append(s.entries, entry{seq: s.nextSeq, msg: messages[i]})
		s.nextSeq++
		s.mu.Unlock()
	}
}

// Channels lists channel ids with buffered entries.
func (b *Buffer) Channels() []string {
	var channels []string
	b.shards.Range(func(key, value any) bool {
		s := value.(*shard)
		s.mu.RLock()
		pending := len(s.entries) > 0
		s.mu.RUnlock()
		if pending {
			channels = append(channels, key.(string))
		}
		return true
	})
	return channels
}

// Snapshot copies a channel's buffered messages along with the sequence
// high-water mark to pass to Evict once the batch is durable.
func (b *Buffer) Snapshot(channelID string) ([]domain.Message, uint64) {
	s := b.shard(channelID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return nil, 0
	}
	messages := make([]domain.Message, len(s.entries))
	for i, e := range s.entries {
		messages[i] = e.msg
	}
	return messages, s.entries[len(s.entries)-1].seq
}

// Evict drops all entries up to and including upToSeq. The removal is
// atomic with respect to readers: a concurrent Slice sees the batch either
// fully present or fully gone.
func (b *Buffer) Evict(channelID string, upToSeq uint64) {
	s := b.shard(channelID)
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.seq > upToSeq {
			kept = append(kept, e)
		}
	}
	s.entries = kept
}

// Pending returns the total number of buffered entries across channels.
func (b *Buffer) Pending() int {
	total := 0
	b.shards.Range(func(_, value any) bool {
		s := value.(*shard)
		s.mu.RLock()
		total += len(s.entries)
		s.mu.RUnlock()
		return true
	})
	return total
}

// Slice returns buffered messages of a channel intersecting the half-open
// range [from, to), optionally narrowed to one user, ordered by timestamp
// in the requested direction.
func (b *Buffer) Slice(channelID, userID string, from, to time.Time, descending bool) []domain.Message {
	s := b.shard(channelID)
	s.mu.RLock()

	fromMillis := from.UnixMilli()
	toMillis := to.UnixMilli()

	var matched []domain.Message
	for _, e := range s.entries {
		if e.msg.Timestamp < fromMillis || e.msg.Timestamp >= toMillis {
			continue
		}
		if userID != "" && e.msg.UserID != userID {
			continue
		}
		matched = append(matched, e.msg)
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if descending {
			return matched[i].Timestamp > matched[j].Timestamp
		}
		return matched[i].Timestamp < matched[j].Timestamp
	})

	return matched
}
