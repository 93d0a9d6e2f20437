package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"deephat/internal/chat"
)

const maxRequestBytes = 1 << 20

type historyMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Message string           `json:"message"`
	History []historyMessage `json:"history"`
}

type chatResponse struct {
	Response string `json:"response"`
}

type rootResponse struct {
	Message   string            `json:"message"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, history, err := decodeChatRequest(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	reply, err := s.replier.Reply(ctx, req.Message, history)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, chat.ErrEmptyMessage) {
			status = http.StatusBadRequest
		}
		s.logger.Error("chat failed", "request_id", requestIDFrom(r.Context()), "error", err)
		writeErr(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Response: reply})
}

// decodeChatRequest parses the body and converts the caller's history.
// Entries with an unknown role are skipped.
func decodeChatRequest(r *http.Request) (chatRequest, []chat.Message, error) {
	var req chatRequest
	body := io.LimitReader(r.Body, maxRequestBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return req, nil, fmt.Errorf("invalid request body: %w", err)
	}
	// Reaching EOF lets the server watch the connection, so a client that
	// goes away cancels the request context.
	_, _ = io.Copy(io.Discard, body)
	if strings.TrimSpace(req.Message) == "" {
		return req, nil, chat.ErrEmptyMessage
	}

	history := make([]chat.Message, 0, len(req.History))
	for _, h := range req.History {
		role, ok := chat.ParseRole(h.Role)
		if !ok {
			continue
		}
		history = append(history, chat.Message{Role: role, Content: h.Content})
	}
	return req, history, nil
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

func writeErr(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, errorResponse{Detail: detail})
}
