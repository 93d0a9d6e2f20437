package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"deephat/internal/chat"
)

// generator is the part of llms.Model the client needs.
type generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Client sends transcripts to the hosted model. It implements chat.Adapter.
type Client struct {
	gen   generator
	opts  Options
	sleep func(ctx context.Context, d time.Duration) error
}

var _ chat.Adapter = (*Client)(nil)

// Complete prepends the persona, sends the transcript and returns the
// completion text. A 503 answer is retried with linear backoff (RetryDelay,
// 2*RetryDelay, ...) up to MaxAttempts attempts in total; any other failure
// is returned at once.
func (c *Client) Complete(ctx context.Context, history []chat.Message) (string, error) {
	messages := toMessageContent(history)
	callOpts := []llms.CallOption{
		llms.WithMaxTokens(c.opts.MaxTokens),
		llms.WithTemperature(c.opts.Temperature),
		llms.WithTopP(c.opts.TopP),
	}

	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		text, err := c.generate(ctx, messages, callOpts)
		if err == nil {
			return text, nil
		}
		if !isUnavailable(err) {
			return "", fmt.Errorf("model request failed: %w", err)
		}
		if attempt == c.opts.MaxAttempts {
			break
		}

		delay := time.Duration(attempt) * c.opts.RetryDelay
		c.opts.Logger.Warn("model unavailable, retrying",
			"attempt", attempt, "max_attempts", c.opts.MaxAttempts, "delay", delay)
		if err := c.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
	c.opts.Logger.Error("model still unavailable after retries", "attempts", c.opts.MaxAttempts)
	return "", ErrModelLoading
}

func (c *Client) generate(ctx context.Context, messages []llms.MessageContent, callOpts []llms.CallOption) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	attemptCtx, rec := withStatusRecorder(attemptCtx)

	start := time.Now()
	resp, err := c.gen.GenerateContent(attemptCtx, messages, callOpts...)
	if err != nil {
		if rec.unavailable.Load() {
			return "", fmt.Errorf("%w: %v", errUnavailable, err)
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty response from model")
	}
	c.opts.Logger.Debug("model replied", "model", c.opts.Model, "duration", time.Since(start))
	return resp.Choices[0].Content, nil
}

// toMessageContent merges the persona with any leading system messages into
// a single system message, then maps the rest of the transcript.
func toMessageContent(history []chat.Message) []llms.MessageContent {
	system := []string{Persona}
	i := 0
	for ; i < len(history) && history[i].Role == chat.RoleSystem; i++ {
		system = append(system, history[i].Content)
	}

	messages := make([]llms.MessageContent, 0, len(history)-i+1)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, strings.Join(system, "\n\n")))
	for _, m := range history[i:] {
		switch m.Role {
		case chat.RoleUser:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		case chat.RoleAssistant:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeAI, m.Content))
		case chat.RoleSystem:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, m.Content))
		}
	}
	return messages
}

func isUnavailable(err error) bool {
	return errors.Is(err, errUnavailable)
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
