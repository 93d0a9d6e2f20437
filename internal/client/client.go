// Package client talks to a running DeepHat server.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const doneToken = "[DONE]"

// Message is one prior turn sent as history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Message string    `json:"message"`
	History []Message `json:"history"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the server at baseURL. A nil httpClient uses
// http.DefaultClient.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Chat posts to /chat and returns the full reply.
func (c *Client) Chat(ctx context.Context, message string, history []Message) (string, error) {
	resp, err := c.post(ctx, "/chat", message, history)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body struct {
		Response string `json:"response"`
		Detail   string `json:"detail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server returned %d: %s", resp.StatusCode, body.Detail)
	}
	return body.Response, nil
}

// Stream posts to /chat/stream and calls onToken for each word as it
// arrives. It returns when the server sends [DONE], reports an error frame,
// or ctx ends.
func (c *Client) Stream(ctx context.Context, message string, history []Message, onToken func(string)) error {
	resp, err := c.post(ctx, "/chat/stream", message, history)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	done := false
	err = consumeSSEData(resp.Body, func(data string) error {
		if data == doneToken {
			done = true
			return errStop
		}
		var frame struct {
			Token *string `json:"token"`
			Error string  `json:"error"`
		}
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			return fmt.Errorf("decode frame %q: %w", data, err)
		}
		if frame.Error != "" {
			return errors.New(frame.Error)
		}
		if frame.Token != nil && onToken != nil {
			onToken(*frame.Token)
		}
		return nil
	})
	if errors.Is(err, errStop) {
		err = nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	if !done {
		return io.ErrUnexpectedEOF
	}
	return nil
}

func (c *Client) post(ctx context.Context, path, message string, history []Message) (*http.Response, error) {
	if history == nil {
		history = []Message{}
	}
	b, err := json.Marshal(chatRequest{Message: message, History: history})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	return resp, nil
}

var errStop = errors.New("stop")

// consumeSSEData calls onData with the payload of every event. Comment lines
// and non-data fields are skipped.
func consumeSSEData(r io.Reader, onData func(string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var lines []string
	flush := func() error {
		if len(lines) == 0 {
			return nil
		}
		payload := strings.TrimSpace(strings.Join(lines, "\n"))
		lines = lines[:0]
		if payload == "" {
			return nil
		}
		return onData(payload)
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		if data, ok := strings.CutPrefix(line, "data:"); ok {
			lines = append(lines, strings.TrimPrefix(data, " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return flush()
}
