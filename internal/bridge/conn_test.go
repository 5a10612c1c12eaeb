// conn_test.go - Health probe and connection error classification.
package bridge

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsConnectionError(t *testing.T) {
	require.False(t, IsConnectionError(nil))
	require.False(t, IsConnectionError(errors.New("500 internal server error")))

	require.True(t, IsConnectionError(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	require.True(t, IsConnectionError(&net.DNSError{Name: "nope.invalid"}))
	require.True(t, IsConnectionError(fmt.Errorf("probe: %w", errors.New("connection refused"))))
	require.True(t, IsConnectionError(errors.New("lookup nope.invalid: no such host")))
}

func TestIsServerRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	require.True(t, IsServerRunning(port))

	srv.Close()
	require.False(t, IsServerRunning(port))
}
