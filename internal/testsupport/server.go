package testsupport

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// NewStalledServer starts an API server that accepts requests but never
// answers them, keeping the queue head in flight. Handlers are released
// before the server closes so cleanup cannot block on them.
func NewStalledServer(t testing.TB) *httptest.Server {
	t.Helper()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Client disconnects are only noticed once the body has been read.
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})
	return srv
}
