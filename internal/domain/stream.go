package domain

// LiveStream is one item of the external "currently live" listing.
type LiveStream struct {
	ID          string
	ChannelID   string
	ChannelName string
	ViewerCount int
	StartedAt   int64
}

// StreamRecord is the durable record kept for a broadcast observed by the
// reconciliation loop.
type StreamRecord struct {
	ChannelID string
	StreamID  string
	// StartedAt is a unix timestamp in seconds.
	StartedAt int64
}
