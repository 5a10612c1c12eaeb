// time.go - Millisecond-epoch timestamp helpers used across the wire protocol and store.
package util

import "time"

// NowMs returns the current time as milliseconds since the Unix epoch.
func NowMs() int64 {
	return time.Now().UnixMilli()
}

// MsToTime converts a millisecond epoch value to a time.Time.
func MsToTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// ParseTimestamp parses an RFC3339 timestamp string, trying RFC3339Nano first
// (since it's a superset of RFC3339), then RFC3339 as a fallback.
// Returns zero time on failure.
func ParseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}
