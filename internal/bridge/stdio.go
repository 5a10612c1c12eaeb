// stdio.go - Stdio framing for the MCP loop.
// Reads both line-delimited JSON and Content-Length framed messages; always
// writes line-delimited JSON, which every current MCP client accepts.
package bridge

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
)

// DefaultMaxBodyBytes caps a Content-Length frame body.
const DefaultMaxBodyBytes = 16 * 1024 * 1024

// ReadStdioMessage reads one message from a buffered reader. maxBodyBytes
// caps the Content-Length value so a hostile header cannot force a huge
// allocation.
func ReadStdioMessage(reader *bufio.Reader, maxBodyBytes int) ([]byte, error) {
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				trimmed := strings.TrimSpace(string(line))
				if trimmed == "" {
					return nil, io.EOF
				}
				return []byte(trimmed), nil
			}
			return nil, err
		}

		first := strings.TrimSpace(string(line))
		if first == "" {
			continue
		}

		if !strings.HasPrefix(strings.ToLower(first), "content-length:") {
			return []byte(first), nil
		}

		parts := strings.SplitN(first, ":", 2)
		if len(parts) != 2 {
			return []byte(first), nil
		}
		n, convErr := strconv.Atoi(strings.TrimSpace(parts[1]))
		if convErr != nil || n < 0 || n > maxBodyBytes {
			return []byte(first), nil
		}

		// Skip remaining headers up to the blank separator line.
		for {
			header, headerErr := reader.ReadBytes('\n')
			if headerErr != nil {
				if errors.Is(headerErr, io.EOF) {
					return nil, io.EOF
				}
				return nil, headerErr
			}
			if strings.TrimSpace(string(header)) == "" {
				break
			}
		}

		body := make([]byte, n)
		if _, readErr := io.ReadFull(reader, body); readErr != nil {
			return nil, readErr
		}
		return bytes.TrimSpace(body), nil
	}
}

// StdioWriter serializes newline-delimited frames onto one writer. Safe for
// concurrent use.
type StdioWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStdioWriter wraps w.
func NewStdioWriter(w io.Writer) *StdioWriter {
	return &StdioWriter{w: w}
}

// WriteMessage writes one frame followed by a newline.
func (s *StdioWriter) WriteMessage(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(frame); err != nil {
		return err
	}
	_, err := s.w.Write([]byte("\n"))
	return err
}
