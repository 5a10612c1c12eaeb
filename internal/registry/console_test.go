// console_test.go - Live console ring behavior and query filtering.
package registry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func entry(ts int64, level, msg string) ConsoleEntry {
	return ConsoleEntry{Timestamp: ts, Level: level, Message: msg}
}

func TestConsoleBufferCapacityAndDropAccounting(t *testing.T) {
	b := NewConsoleBuffer(2)
	b.Append(entry(1, "log", "a"))
	b.Append(entry(2, "log", "b"))
	b.Append(entry(3, "log", "c"))

	res := b.Query(ConsoleQuery{})
	require.Equal(t, 2, res.Buffered)
	require.Equal(t, int64(1), res.Dropped)
	require.Len(t, res.Entries, 2)
	// Newest first.
	require.Equal(t, "c", res.Entries[0].Message)
	require.Equal(t, "b", res.Entries[1].Message)
}

func TestConsoleBufferClampsEntryBudgets(t *testing.T) {
	b := NewConsoleBuffer(10)

	args := make([]string, MaxConsoleArgs+5)
	for i := range args {
		args[i] = "arg"
	}
	b.Append(ConsoleEntry{
		Timestamp: 1,
		Level:     "log",
		Message:   strings.Repeat("m", MaxConsoleMessageChars+100),
		Args:      args,
	})

	res := b.Query(ConsoleQuery{})
	require.Len(t, res.Entries, 1)
	require.Len(t, res.Entries[0].Message, MaxConsoleMessageChars)
	require.Len(t, res.Entries[0].Args, MaxConsoleArgs)
}

func TestConsoleQueryFilters(t *testing.T) {
	b := NewConsoleBuffer(100)
	tab1, tab2 := 1, 2
	b.Append(ConsoleEntry{Timestamp: 10, Level: "log", Message: "hello", TabID: tab1, Origin: "https://a.example.com"})
	b.Append(ConsoleEntry{Timestamp: 20, Level: "warn", Message: "careful now", TabID: tab1, Origin: "https://a.example.com"})
	b.Append(ConsoleEntry{Timestamp: 30, Level: "error", Message: "boom", TabID: tab2, Origin: "https://b.example.com", RuntimeError: true, Stack: "at x"})
	b.Append(ConsoleEntry{Timestamp: 40, Level: "ERROR", Message: "console.error call", TabID: tab1, Origin: "https://a.example.com"})

	tests := []struct {
		name string
		q    ConsoleQuery
		want []string
	}{
		{"no filter", ConsoleQuery{}, []string{"console.error call", "boom", "careful now", "hello"}},
		{"by tab", ConsoleQuery{TabID: &tab2}, []string{"boom"}},
		{"by origin", ConsoleQuery{Origin: "https://b.example.com"}, []string{"boom"}},
		{"levels case-insensitive", ConsoleQuery{Levels: []string{"Error"}}, []string{"console.error call", "boom"}},
		{"contains", ConsoleQuery{Contains: "careful"}, []string{"careful now"}},
		{"since", ConsoleQuery{SinceTimestamp: 25}, []string{"console.error call", "boom"}},
		{"exclude runtime errors", ConsoleQuery{ExcludeRuntimeEr: true, Levels: []string{"error"}}, []string{"console.error call"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := b.Query(tt.q)
			var got []string
			for _, e := range res.Entries {
				got = append(got, e.Message)
			}
			require.Equal(t, tt.want, got)
			require.Equal(t, len(tt.want), res.Matched)
		})
	}
}

func TestConsoleQueryLimitAndMatchedCount(t *testing.T) {
	b := NewConsoleBuffer(100)
	for i := int64(1); i <= 10; i++ {
		b.Append(entry(i, "log", "m"))
	}

	res := b.Query(ConsoleQuery{Limit: 3})
	require.Len(t, res.Entries, 3)
	require.Equal(t, 10, res.Matched)
	require.Equal(t, int64(10), res.Entries[0].Timestamp)

	// Limit above the cap clamps.
	res = b.Query(ConsoleQuery{Limit: MaxConsoleQueryLimit + 100})
	require.Len(t, res.Entries, 10)
}
