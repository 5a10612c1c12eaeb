// ids.go - Id minting: readable session ids, monotonic event ids, error fingerprints.
package store

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"
)

var sessionAdjectives = []string{
	"amber", "bold", "calm", "dapper", "eager", "fuzzy", "gentle", "happy",
	"icy", "jolly", "keen", "lucky", "mellow", "nimble", "odd", "plucky",
	"quick", "rusty", "sly", "tidy", "upbeat", "vivid", "witty", "zesty",
}

var sessionAnimals = []string{
	"badger", "crane", "dingo", "eagle", "ferret", "gecko", "heron", "ibis",
	"jackal", "koala", "lemur", "marmot", "newt", "otter", "puffin", "quail",
	"raven", "stoat", "tapir", "urchin", "vole", "walrus", "yak", "zebra",
}

const base36Chars = "0123456789abcdefghijklmnopqrstuvwxyz"

// MintSessionID returns a fresh human-readable session id:
// sess-<adjective>-<animal>-<YYYYMMDD>-<6 base36 chars>.
func MintSessionID(now time.Time) SessionID {
	adj := sessionAdjectives[randIndex(len(sessionAdjectives))]
	animal := sessionAnimals[randIndex(len(sessionAnimals))]
	date := now.Format("20060102")

	suffix := make([]byte, 6)
	for i := range suffix {
		suffix[i] = base36Chars[randIndex(len(base36Chars))]
	}
	return SessionID(fmt.Sprintf("sess-%s-%s-%s-%s", adj, animal, date, suffix))
}

func randIndex(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand failure means the platform is broken; fall back to time
		return int(time.Now().UnixNano() % int64(n))
	}
	return int(v.Int64())
}

// mintEventID returns an event id unique within this process, monotonic per
// millisecond: evt-<ms>-<seq>.
func (s *Store) mintEventID(ts int64) EventID {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	if ts <= s.lastMs {
		ts = s.lastMs
		s.lastSeq++
	} else {
		s.lastMs = ts
		s.lastSeq = 0
	}
	return EventID(fmt.Sprintf("evt-%d-%04d", ts, s.lastSeq))
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Fingerprint computes the stable id for an error message+stack pair.
// Normalization: lowercase, collapse whitespace runs, trim. Identical
// normalized pairs always share one id.
func Fingerprint(message, stack string) FingerprintID {
	norm := func(s string) string {
		return strings.TrimSpace(whitespaceRun.ReplaceAllString(strings.ToLower(s), " "))
	}
	sum := sha256.Sum256([]byte(norm(message) + "\n" + norm(stack)))
	return FingerprintID("fp-" + hex.EncodeToString(sum[:])[:16])
}

var unsafePathChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SanitizeID strips characters unsafe for filesystem paths from an id.
func SanitizeID(id string) string {
	out := unsafePathChars.ReplaceAllString(id, "_")
	if len(out) > 64 {
		out = out[:64]
	}
	return out
}
