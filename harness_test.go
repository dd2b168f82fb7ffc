package conformance

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// transportFunc adapts a function to http.RoundTripper so tests can script
// responses without opening a socket.
type transportFunc func(req *http.Request) (*http.Response, error)

func (f transportFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// jsonResponse builds a synthetic JSON response for a scripted transport.
func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

// serveTransport routes every request through an in-process handler, so a
// whole suite run can execute against a server implementation without a
// listener.
func serveTransport(h http.Handler) transportFunc {
	return func(req *http.Request) (*http.Response, error) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Result(), nil
	}
}

// newTestClient builds a client wired to the given transport, for driving
// single checks directly.
func newTestClient(t *testing.T, rt http.RoundTripper) *client {
	t.Helper()
	c, err := newClient(Options{
		BaseURL:          "http://conformance.test",
		APIKey:           "test-key",
		TransportFactory: func() http.RoundTripper { return rt },
	})
	require.NoError(t, err)
	return c
}
