package kmstest

import (
	"net/http/httptest"
	"testing"
)

// Start serves a new Server on a local httptest listener until the test
// ends. It returns the server and its base URL.
func Start(t testing.TB, opts ...Option) (*Server, string) {
	t.Helper()
	srv := New(opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts.URL
}
