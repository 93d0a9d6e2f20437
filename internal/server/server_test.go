package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"deephat/internal/chat"
	"deephat/internal/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

type fakeReplier struct {
	mu      sync.Mutex
	reply   string
	err     error
	block   bool
	inputs  []string
	history [][]chat.Message
}

func (f *fakeReplier) Reply(ctx context.Context, input string, history []chat.Message) (string, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, input)
	f.history = append(f.history, history)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if strings.TrimSpace(input) == "" {
		return "", chat.ErrEmptyMessage
	}
	return f.reply, f.err
}

func newTestServer(t *testing.T, rep Replier, opts Options) *httptest.Server {
	t.Helper()
	opts.Logger = logging.Discard()
	srv := httptest.NewServer(New(rep, opts).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestRootAndHealth(t *testing.T) {
	srv := newTestServer(t, &fakeReplier{}, Options{})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	var health map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, map[string]string{"status": "healthy", "service": "DeepHat Agent API"}, health)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	resp2, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var root rootResponse
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&root))
	assert.Equal(t, Version, root.Version)
	assert.Equal(t, "/chat/stream", root.Endpoints["stream"])
}

func TestChatReturnsReplyAndPassesHistory(t *testing.T) {
	rep := &fakeReplier{reply: "Use SSH keys."}
	srv := newTestServer(t, rep, Options{})

	resp := postJSON(t, srv.URL+"/chat", `{"message":"how to harden ssh?","history":[
		{"role":"user","content":"hi"},
		{"role":"assistant","content":"hello"},
		{"role":"robot","content":"ignored"}]}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body chatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Use SSH keys.", body.Response)

	require.Len(t, rep.history, 1)
	assert.Equal(t, []chat.Message{
		{Role: chat.RoleUser, Content: "hi"},
		{Role: chat.RoleAssistant, Content: "hello"},
	}, rep.history[0])
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	rep := &fakeReplier{reply: "never"}
	srv := newTestServer(t, rep, Options{})

	for _, body := range []string{`{"message":"   "}`, `{}`, `not json`} {
		resp := postJSON(t, srv.URL+"/chat", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		var e errorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
		assert.NotEmpty(t, e.Detail)
	}
	assert.Empty(t, rep.inputs, "the dialogue must not start for a rejected request")
}

func TestChatMapsFailuresTo500(t *testing.T) {
	srv := newTestServer(t, &fakeReplier{err: errors.New("model is loading, retry shortly")}, Options{})

	resp := postJSON(t, srv.URL+"/chat", `{"message":"scan it"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var e errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	assert.Equal(t, "model is loading, retry shortly", e.Detail)
}

func readEvents(t *testing.T, resp *http.Response) []string {
	t.Helper()
	var events []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if data, ok := strings.CutPrefix(sc.Text(), "data: "); ok {
			events = append(events, data)
		}
	}
	return events
}

func TestStreamEmitsWordsThenDone(t *testing.T) {
	srv := newTestServer(t, &fakeReplier{reply: "Port 22  is\nopen"}, Options{StreamDelay: time.Millisecond})

	resp := postJSON(t, srv.URL+"/chat/stream", `{"message":"scan"}`)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readEvents(t, resp)
	assert.Equal(t, []string{
		`{"token":"Port "}`,
		`{"token":"22 "}`,
		`{"token":"is "}`,
		`{"token":"open"}`,
		"[DONE]",
	}, events)
}

func TestStreamReportsErrorFrame(t *testing.T) {
	srv := newTestServer(t, &fakeReplier{err: errors.New("boom")}, Options{})

	events := readEvents(t, postJSON(t, srv.URL+"/chat/stream", `{"message":"scan"}`))
	assert.Equal(t, []string{`{"error":"boom"}`}, events)

}

func TestStreamRejectsBadRequestsBeforeStreaming(t *testing.T) {
	rep := &fakeReplier{reply: "never"}
	srv := newTestServer(t, rep, Options{})

	for _, body := range []string{`{"message":"  "}`, `{"message":`} {
		resp := postJSON(t, srv.URL+"/chat/stream", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		var e errorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
		assert.NotEmpty(t, e.Detail)
	}
	assert.Empty(t, rep.inputs)
}

func TestStreamStopsOnClientDisconnect(t *testing.T) {
	reply := strings.Repeat("word ", 200)
	srv := newTestServer(t, &fakeReplier{reply: reply}, Options{StreamDelay: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, srv.URL+"/chat/stream", strings.NewReader(`{"message":"go"}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	sc := bufio.NewScanner(resp.Body)
	received := 0
	for sc.Scan() && received < 3 {
		if strings.HasPrefix(sc.Text(), "data: ") {
			received++
		}
	}
	cancel()
	_ = resp.Body.Close()
	assert.Equal(t, 3, received)
	// httptest.Server.Close, run by Cleanup, waits for the handler to return.
}

func TestStreamHonoursRequestTimeout(t *testing.T) {
	srv := newTestServer(t, &fakeReplier{block: true}, Options{RequestTimeout: 20 * time.Millisecond})

	events := readEvents(t, postJSON(t, srv.URL+"/chat/stream", `{"message":"hang"}`))
	require.Len(t, events, 1)
	assert.Contains(t, events[0], "deadline exceeded")
}

func TestTokens(t *testing.T) {
	assert.Empty(t, Tokens("   "))
	assert.Equal(t, []string{"one"}, Tokens("one"))
	assert.Equal(t, []string{"a ", "b ", "c"}, Tokens(" a\tb\n\nc "))
	assert.Equal(t, "a b c", strings.Join(Tokens("a  b c"), ""))
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t, &fakeReplier{}, Options{CORSOrigins: []string{"http://localhost:3000"}})

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))

	req2, _ := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	req2.Header.Set("Origin", "http://evil.example")
	resp2, err := http.DefaultClient.Do(req2)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Empty(t, resp2.Header.Get("Access-Control-Allow-Origin"))
}
