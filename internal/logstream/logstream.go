// Package logstream provides the lazy ordered row sequences returned by
// every read query: an in-memory backing, window concatenation for
// multi-query reads, and decorators splicing the staging buffer and
// honoring limit/offset.
package logstream

import (
	"context"
	"io"

	"github.com/user/chatvault/internal/domain"
)

type sliceStream struct {
	messages []domain.Message
	pos      int
}

// FromMessages wraps a fixed, already-ordered list of messages.
func FromMessages(messages []domain.Message) domain.LogStream {
	return &sliceStream{messages: messages}
}

func (s *sliceStream) Next(_ context.Context) (*domain.Message, error) {
	if s.pos >= len(s.messages) {
		return nil, io.EOF
	}
	msg := &s.messages[s.pos]
	s.pos++
	return msg, nil
}

func (s *sliceStream) Close() error { return nil }

type concatStream struct {
	streams []domain.LogStream
	current int
}

// Concat chains streams back to back. Correct ordering is the caller's
// responsibility: the streams must cover disjoint, consecutive ranges in
// the requested direction.
func Concat(streams []domain.LogStream) domain.LogStream {
	return &concatStream{streams: streams}
}

func (c *concatStream) Next(ctx context.Context) (*domain.Message, error) {
	for c.current < len(c.streams) {
		msg, err := c.streams[c.current].Next(ctx)
		if err == io.EOF {
			if closeErr := c.streams[c.current].Close(); closeErr != nil {
				return nil, closeErr
			}
			c.current++
			continue
		}
		return msg, err
	}
	return nil, io.EOF
}

func (c *concatStream) Close() error {
	var firstErr error
	for ; c.current < len(c.streams); c.current++ {
		if err := c.streams[c.current].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// StreamOpener defers opening a store cursor until the stream is consumed
// up to it.
type StreamOpener func(ctx context.Context) (domain.LogStream, error)

type lazyConcat struct {
	openers []StreamOpener
	current domain.LogStream
	next    int
}

// LazyConcat chains streams like Concat but opens each one on demand, so a
// multi-window read holds at most one store cursor at a time.
func LazyConcat(openers []StreamOpener) domain.LogStream {
	return &lazyConcat{openers: openers}
}

func (l *lazyConcat) Next(ctx context.Context) (*domain.Message, error) {
	for {
		if l.current == nil {
			if l.next >= len(l.openers) {
				return nil, io.EOF
			}
			stream, err := l.openers[l.next](ctx)
			if err != nil {
				return nil, err
			}
			l.current = stream
			l.next++
		}

		msg, err := l.current.Next(ctx)
		if err == io.EOF {
			if closeErr := l.current.Close(); closeErr != nil {
				return nil, closeErr
			}
			l.current = nil
			continue
		}
		return msg, err
	}
}

func (l *lazyConcat) Close() error {
	if l.current == nil {
		return nil
	}
	err := l.current.Close()
	l.current = nil
	return err
}

// Splice merges a staging-buffer slice with a store-backed stream into one
// timestamp-consistent sequence. Buffered rows are strictly newer than
// stored rows, so for ascending order they follow the store rows and for
// descending order they precede them; no sort is needed. The flush and
// eviction contract guarantees a row is never in both backings at once.
func Splice(store domain.LogStream, buffered []domain.Message, descending bool) domain.LogStream {
	if len(buffered) == 0 {
		return store
	}
	if descending {
		return Concat([]domain.LogStream{FromMessages(buffered), store})
	}
	return Concat([]domain.LogStream{store, FromMessages(buffered)})
}

type trimStream struct {
	inner   domain.LogStream
	limit   uint64
	offset  uint64
	skipped uint64
	emitted uint64
}

// Trim skips offset rows and then stops after limit rows. A zero limit
// means unlimited. Used when limit and offset could not be pushed into the
// store query itself.
func Trim(inner domain.LogStream, limit, offset uint64) domain.LogStream {
	if limit == 0 && offset == 0 {
		return inner
	}
	return &trimStream{inner: inner, limit: limit, offset: offset}
}

func (t *trimStream) Next(ctx context.Context) (*domain.Message, error) {
	if t.limit > 0 && t.emitted >= t.limit {
		return nil, io.EOF
	}
	for t.skipped < t.offset {
		if _, err := t.inner.Next(ctx); err != nil {
			return nil, err
		}
		t.skipped++
	}
	msg, err := t.inner.Next(ctx)
	if err != nil {
		return nil, err
	}
	t.emitted++
	return msg, nil
}

func (t *trimStream) Close() error { return t.inner.Close() }

// Collect drains a stream into a slice, closing it afterwards.
func Collect(ctx context.Context, stream domain.LogStream) ([]domain.Message, error) {
	defer stream.Close()

	var messages []domain.Message
	for {
		msg, err := stream.Next(ctx)
		if err == io.EOF {
			return messages, nil
		}
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
}
