package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const doneFrame = "[DONE]"

type tokenFrame struct {
	Token string `json:"token"`
}

type errorFrame struct {
	Error string `json:"error"`
}

// handleChatStream runs the full dialogue first, then replays the answer
// word by word as server-sent events. The body is read before anything is
// written, so a bad request still gets a plain 400.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, history, err := decodeChatRequest(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErr(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	send := func(v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return writeEvent(w, flusher, string(b))
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	reply, err := s.replier.Reply(ctx, req.Message, history)
	if err != nil {
		s.logger.Error("chat stream failed", "request_id", requestIDFrom(r.Context()), "error", err)
		_ = send(errorFrame{Error: err.Error()})
		return
	}

	tokens := Tokens(reply)
	for i, tok := range tokens {
		if err := send(tokenFrame{Token: tok}); err != nil {
			return
		}
		if i < len(tokens)-1 {
			if err := pause(ctx, s.opts.StreamDelay); err != nil {
				s.logger.Debug("stream stopped", "request_id", requestIDFrom(r.Context()), "sent", i+1, "total", len(tokens))
				return
			}
		}
	}
	_ = writeEvent(w, flusher, doneFrame)
}

// Tokens splits a reply on whitespace, keeping one trailing space on every
// word except the last so the concatenation reads naturally.
func Tokens(text string) []string {
	words := strings.Fields(text)
	for i := range words[:max(len(words)-1, 0)] {
		words[i] += " "
	}
	return words
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, data string) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
