// Package testhelpers provides common utilities for testing the relay server.
//
// It contains reusable helpers shared across package tests: creating test
// servers, minting credentials, dialing WebSocket channels, and reading typed
// relay events with deadlines.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/presence-relay/internal/auth"
)

// TestOrigin is the Origin header sent by ConnectWebSocket.
const TestOrigin = "http://localhost:8080"

// CreateTestServer creates a test HTTP server with the given handler.
// It returns a running httptest.Server that should be closed after use.
func CreateTestServer(handler http.Handler) *httptest.Server {
	return httptest.NewServer(handler)
}

// IssueToken mints a credential for identity that expires after ttl.
func IssueToken(t *testing.T, secret, identity string, ttl time.Duration) string {
	t.Helper()
	token, _, err := auth.NewIssuer(secret, ttl).Issue(identity)
	require.NoError(t, err)
	return token
}

// IssueExpiredToken mints a credential for identity that expired an hour ago.
func IssueExpiredToken(t *testing.T, secret, identity string) string {
	t.Helper()
	past := func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := auth.NewIssuer(secret, time.Hour).WithClock(past).Issue(identity)
	require.NoError(t, err)
	return token
}

// WebSocketURL converts a test server URL into a WebSocket URL for path,
// carrying token as a query parameter when it is not empty.
func WebSocketURL(t *testing.T, serverURL, path, token string) string {
	t.Helper()
	u, err := url.Parse(serverURL)
	require.NoError(t, err)

	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = path
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// ConnectWebSocket dials url with the test Origin header plus any extra
// headers. The handshake response body is closed before returning.
func ConnectWebSocket(url string, extra http.Header) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	headers.Set("Origin", TestOrigin)
	for k, v := range extra {
		headers[k] = v
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// MustConnect dials url and fails the test if the handshake does not succeed.
// The connection is closed when the test ends.
func MustConnect(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := ConnectWebSocket(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendJSON writes v as a single JSON text frame.
func SendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

// ReadEvent reads one JSON event, waiting at most timeout.
func ReadEvent(conn *websocket.Conn, timeout time.Duration) (map[string]any, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var evt map[string]any
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, err
	}
	return evt, nil
}

// ReadEventOfType reads events until one with the given type arrives,
// discarding others. It fails the test after timeout.
func ReadEventOfType(t *testing.T, conn *websocket.Conn, eventType string, timeout time.Duration) map[string]any {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		require.Positive(t, remaining, "timed out waiting for %s", eventType)

		evt, err := ReadEvent(conn, remaining)
		require.NoError(t, err, "waiting for %s", eventType)
		if evt["type"] == eventType {
			return evt
		}
	}
}

// ExpectNoEvent fails the test if any event arrives within timeout. The
// read deadline it hits leaves conn unusable for further reads.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	evt, err := ReadEvent(conn, timeout)
	if err == nil {
		t.Fatalf("expected no event, got %v", evt)
	}
	var netErr interface{ Timeout() bool }
	require.ErrorAs(t, err, &netErr, "expected a read timeout, got %v", err)
	require.True(t, netErr.Timeout())
}

// Users extracts the users list from a presence event.
func Users(evt map[string]any) []string {
	raw, _ := evt["users"].([]any)
	out := make([]string, 0, len(raw))
	for _, u := range raw {
		s, _ := u.(string)
		out = append(out, s)
	}
	return out
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// MakeRequest creates and executes an HTTP request with an optional JSON
// body, returning the response.
func MakeRequest(t *testing.T, method, url, body string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	var req *http.Request
	var err error
	if body == "" {
		req, err = http.NewRequest(method, url, http.NoBody)
	} else {
		req, err = http.NewRequest(method, url, strings.NewReader(body))
		if req != nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	require.Equal(t, expected, resp.StatusCode, "unexpected status code")
}

// AssertContentType checks if the HTTP response Content-Type starts with expected.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	require.True(t, strings.HasPrefix(contentType, expected), "expected content type %s, got %s", expected, contentType)
}
