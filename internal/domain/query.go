package domain

import (
	"fmt"
	"time"
)

// LogsParams carries the caller-supplied knobs of a log query.
type LogsParams struct {
	// Reverse orders the result newest-first instead of oldest-first.
	Reverse bool
	// Limit caps the number of returned rows; 0 means unlimited.
	Limit uint64
	// Offset skips that many rows from the start of the ordered result.
	Offset uint64
}

// TimeRange is a half-open [From, To) interval.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Validate enforces From < To.
func (r TimeRange) Validate() error {
	if !r.From.Before(r.To) {
		return fmt.Errorf("%w: range start must be before range end", ErrInvalidParam)
	}
	return nil
}

// Duration returns the length of the range.
func (r TimeRange) Duration() time.Duration {
	return r.To.Sub(r.From)
}

// AvailableLogDate marks a day (channel scope) or month (user scope) for
// which the archive holds rows.
type AvailableLogDate struct {
	Year  string `json:"year"`
	Month string `json:"month"`
	Day   string `json:"day,omitempty"`
}

func (d AvailableLogDate) String() string {
	if d.Day != "" {
		return fmt.Sprintf("%s/%s/%s", d.Year, d.Month, d.Day)
	}
	return fmt.Sprintf("%s/%s", d.Year, d.Month)
}

// UserLogsStats is the per-user message count inside a channel.
type UserLogsStats struct {
	UserID       string `json:"userId"`
	MessageCount uint64 `json:"messageCount"`
}

// ChannelLogsStats aggregates a channel's message count with its most
// active chatters.
type ChannelLogsStats struct {
	MessageCount uint64          `json:"messageCount"`
	TopChatters  []UserLogsStats `json:"topChatters"`
}

// UserHasLogs reports whether a user has any rows in a channel.
type UserHasLogs struct {
	User    string `json:"user"`
	HasLogs bool   `json:"hasLogs"`
}

// PreviousName is one entry of a user's login history.
type PreviousName struct {
	UserLogin      string    `json:"userLogin"`
	FirstTimestamp time.Time `json:"firstTimestamp"`
	LastTimestamp  time.Time `json:"lastTimestamp"`
}
