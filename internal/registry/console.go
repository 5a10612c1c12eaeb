// console.go - Per-session live console ring: recent console and runtime-error
// entries, queryable without touching the database.
package registry

import (
	"strings"

	"github.com/firelens/firelens/internal/buffers"
)

const (
	// DefaultConsoleCapacity bounds entries per session.
	DefaultConsoleCapacity = 1500
	// MaxConsoleArgs bounds the args slice of one entry.
	MaxConsoleArgs = 25
	// MaxConsoleMessageChars bounds one entry's message text.
	MaxConsoleMessageChars = 2000

	// DefaultConsoleQueryLimit and MaxConsoleQueryLimit bound query paging.
	DefaultConsoleQueryLimit = 100
	MaxConsoleQueryLimit     = 500
)

// ConsoleEntry is one live console or runtime-error record.
type ConsoleEntry struct {
	Timestamp    int64    `json:"timestamp"`
	Level        string   `json:"level"`
	Message      string   `json:"message"`
	Args         []string `json:"args,omitempty"`
	TabID        int      `json:"tabId,omitempty"`
	Origin       string   `json:"origin,omitempty"`
	RuntimeError bool     `json:"runtimeError,omitempty"`
	Stack        string   `json:"stack,omitempty"`
}

// ConsoleBuffer wraps a ring buffer with the per-entry budgets.
type ConsoleBuffer struct {
	ring *buffers.RingBuffer[ConsoleEntry]
}

// NewConsoleBuffer creates a buffer holding at most capacity entries.
func NewConsoleBuffer(capacity int) *ConsoleBuffer {
	return &ConsoleBuffer{ring: buffers.NewRingBuffer[ConsoleEntry](capacity)}
}

// Append clamps the entry to the per-entry budgets and adds it to the ring.
func (b *ConsoleBuffer) Append(entry ConsoleEntry) {
	if len(entry.Message) > MaxConsoleMessageChars {
		entry.Message = entry.Message[:MaxConsoleMessageChars]
	}
	if len(entry.Args) > MaxConsoleArgs {
		entry.Args = entry.Args[:MaxConsoleArgs]
	}
	for i, a := range entry.Args {
		if len(a) > MaxConsoleMessageChars {
			entry.Args[i] = a[:MaxConsoleMessageChars]
		}
	}
	b.ring.Append(entry)
}

// ConsoleQuery filters a live console read.
type ConsoleQuery struct {
	TabID            *int
	Origin           string
	Levels           []string
	Contains         string
	SinceTimestamp   int64
	ExcludeRuntimeEr bool
	Limit            int
}

// ConsoleQueryResult is the filtered, newest-first view of the ring.
type ConsoleQueryResult struct {
	Entries  []ConsoleEntry `json:"entries"`
	Matched  int            `json:"matched"`
	Buffered int            `json:"buffered"`
	Dropped  int64          `json:"dropped"`
}

// Query returns the newest matching entries, newest first. Matched counts all
// filter matches before the limit is applied.
func (b *ConsoleBuffer) Query(q ConsoleQuery) ConsoleQueryResult {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultConsoleQueryLimit
	}
	if limit > MaxConsoleQueryLimit {
		limit = MaxConsoleQueryLimit
	}

	levels := make(map[string]bool, len(q.Levels))
	for _, l := range q.Levels {
		levels[strings.ToLower(l)] = true
	}

	all := b.ring.Snapshot()
	var matched []ConsoleEntry
	for _, e := range all {
		if q.TabID != nil && e.TabID != *q.TabID {
			continue
		}
		if q.Origin != "" && e.Origin != q.Origin {
			continue
		}
		if len(levels) > 0 && !levels[strings.ToLower(e.Level)] {
			continue
		}
		if q.Contains != "" && !strings.Contains(e.Message, q.Contains) {
			continue
		}
		if q.SinceTimestamp > 0 && e.Timestamp < q.SinceTimestamp {
			continue
		}
		if q.ExcludeRuntimeEr && e.RuntimeError {
			continue
		}
		matched = append(matched, e)
	}

	// Newest first.
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}

	res := ConsoleQueryResult{
		Matched:  len(matched),
		Buffered: b.ring.Len(),
		Dropped:  b.ring.Dropped(),
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	res.Entries = matched
	return res
}
