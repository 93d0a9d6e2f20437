package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamCollectsTokens(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/stream", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, ": keep-alive\n\n"+
			"data: {\"token\":\"Port \"}\n\n"+
			"data: {\"token\":\"22 \"}\n\n"+
			"data: {\"token\":\"open\"}\n\n"+
			"data: [DONE]\n\n")
	}))
	defer srv.Close()

	var b strings.Builder
	err := New(srv.URL+"/", nil).Stream(context.Background(), "scan",
		[]Message{{Role: "user", Content: "hi"}}, func(tok string) { b.WriteString(tok) })
	require.NoError(t, err)
	assert.Equal(t, "Port 22 open", b.String())
	assert.Equal(t, "scan", got.Message)
	assert.Equal(t, []Message{{Role: "user", Content: "hi"}}, got.History)
}

func TestStreamErrorFrame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "data: {\"error\":\"model is loading\"}\n\n")
	}))
	defer srv.Close()

	err := New(srv.URL, nil).Stream(context.Background(), "x", nil, nil)
	assert.EqualError(t, err, "model is loading")
}

func TestStreamTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "data: {\"token\":\"half\"}\n\n")
	}))
	defer srv.Close()

	err := New(srv.URL, nil).Stream(context.Background(), "x", nil, nil)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		if req.Message == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"detail":"message is required"}`)
			return
		}
		assert.NotNil(t, req.History)
		_, _ = io.WriteString(w, `{"response":"all good"}`)
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	got, err := c.Chat(context.Background(), "status?", nil)
	require.NoError(t, err)
	assert.Equal(t, "all good", got)

	_, err = c.Chat(context.Background(), "", nil)
	assert.EqualError(t, err, "server returned 400: message is required")
}
