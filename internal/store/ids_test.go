// ids_test.go - Id minting and fingerprint normalization.
package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFingerprintNormalization(t *testing.T) {
	base := Fingerprint("TypeError: bad", "at a.js:1")

	same := []struct{ message, stack string }{
		{"typeerror: bad", "at a.js:1"},
		{"TypeError:   bad", "at  a.js:1"},
		{"  TypeError: bad  ", "\tat a.js:1\n"},
	}
	for _, tt := range same {
		require.Equal(t, base, Fingerprint(tt.message, tt.stack),
			"message %q stack %q", tt.message, tt.stack)
	}

	require.NotEqual(t, base, Fingerprint("TypeError: worse", "at a.js:1"))
	require.NotEqual(t, base, Fingerprint("TypeError: bad", "at b.js:2"))
	require.Regexp(t, `^fp-[0-9a-f]{16}$`, string(base))
}

func TestMintEventIDMonotonicWithinMillisecond(t *testing.T) {
	st := newTestStore(t)

	a := st.mintEventID(5000)
	b := st.mintEventID(5000)
	c := st.mintEventID(5000)
	require.Equal(t, EventID("evt-5000-0000"), a)
	require.Equal(t, EventID("evt-5000-0001"), b)
	require.Equal(t, EventID("evt-5000-0002"), c)

	// A fresh millisecond resets the sequence.
	d := st.mintEventID(6000)
	require.Equal(t, EventID("evt-6000-0000"), d)

	// A clock that goes backwards never mints a smaller id.
	e := st.mintEventID(4000)
	require.Equal(t, EventID("evt-6000-0001"), e)
}

func TestSanitizeID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"sess-amber-otter-20260101-abc123", "sess-amber-otter-20260101-abc123"},
		{"../../etc/passwd", ".._.._etc_passwd"},
		{"id with spaces", "id_with_spaces"},
		{"", ""},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, SanitizeID(tt.in))
	}

	long := SanitizeID(string(make([]byte, 200)))
	require.LessOrEqual(t, len(long), 64)
}

func TestMintSessionIDShape(t *testing.T) {
	seen := map[SessionID]bool{}
	for i := 0; i < 20; i++ {
		id := MintSessionID(msToTime(1767225600000))
		require.Regexp(t, `^sess-[a-z]+-[a-z]+-\d{8}-[0-9a-z]{6}$`, string(id))
		seen[id] = true
	}
	require.Greater(t, len(seen), 1)
}
