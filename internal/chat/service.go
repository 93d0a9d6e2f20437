package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"deephat/internal/sanitize"
	"deephat/internal/tools"
)

// ErrEmptyMessage is returned when the user message is blank.
var ErrEmptyMessage = errors.New("message is required")

const (
	// ToolResultsMarker heads the synthetic message carrying tool output.
	ToolResultsMarker = "TOOL_RESULTS:"

	finalAnswerInstruction = "Based on these results, provide a clear and helpful final answer to the user."

	defaultMaxToolRounds = 5
)

// Service runs the tool-augmented dialogue for a single request. It keeps no
// state between calls and is safe for concurrent use.
type Service struct {
	adapter   Adapter
	parser    *tools.Parser
	runner    ToolRunner
	prompt    string
	maxRounds int
	logger    *slog.Logger
}

type ServiceOption func(*Service)

// WithToolRunner replaces the default executor built from the registry.
func WithToolRunner(r ToolRunner) ServiceOption {
	return func(s *Service) {
		s.runner = r
	}
}

// WithMaxToolRounds caps the number of tool executions per request.
func WithMaxToolRounds(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxRounds = n
		}
	}
}

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(adapter Adapter, reg *tools.Registry, opts ...ServiceOption) *Service {
	s := &Service{
		adapter:   adapter,
		maxRounds: defaultMaxToolRounds,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.parser = tools.NewParser(reg, s.logger)
	if s.runner == nil {
		s.runner = tools.NewExecutor(reg, tools.WithLogger(s.logger))
	}
	s.prompt = SystemPrompt(reg)
	return s
}

// Reply answers input given the prior conversation. It alternates between
// asking the model and running the tools it requests until the model stops
// asking, then returns the sanitized final text.
func (s *Service) Reply(ctx context.Context, input string, history []Message) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrEmptyMessage
	}

	transcript := make([]Message, 0, len(history)+3)
	transcript = append(transcript, history...)
	transcript = append(transcript, Message{Role: RoleUser, Content: input})

	for round := 0; ; round++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		out, err := s.adapter.Complete(ctx, s.withSystemPrompt(transcript))
		if err != nil {
			return "", err
		}

		calls := s.parser.Parse(out)
		if len(calls) == 0 {
			return sanitize.Response(out), nil
		}
		if round >= s.maxRounds {
			s.logger.Warn("tool round limit reached, returning last model output",
				"rounds", round, "pending_calls", len(calls))
			return sanitize.Response(out), nil
		}

		s.logger.Debug("executing tool calls", "round", round+1, "calls", len(calls))
		results := s.runner.Run(ctx, calls)
		transcript = append(transcript,
			Message{Role: RoleAssistant, Content: out},
			Message{Role: RoleUser, Content: toolResultsMessage(results)},
		)
	}
}

// withSystemPrompt prepends the tool catalogue prompt on the first model turn
// of a request only, i.e. while no tool results are in the transcript.
func (s *Service) withSystemPrompt(transcript []Message) []Message {
	if s.prompt == "" || hasToolResults(transcript) {
		return transcript
	}
	out := make([]Message, 0, len(transcript)+1)
	out = append(out, Message{Role: RoleSystem, Content: s.prompt})
	return append(out, transcript...)
}

func hasToolResults(transcript []Message) bool {
	for _, m := range transcript {
		if m.Role == RoleUser && strings.HasPrefix(m.Content, ToolResultsMarker) {
			return true
		}
	}
	return false
}

func toolResultsMessage(results string) string {
	return fmt.Sprintf("%s\n%s\n\n%s", ToolResultsMarker, results, finalAnswerInstruction)
}

// SystemPrompt describes the available tools and the TOOL_CALL convention.
// It is empty when no tools are registered.
func SystemPrompt(reg *tools.Registry) string {
	catalogue := reg.Catalogue()
	if catalogue == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString("You have access to the following tools:\n")
	b.WriteString(catalogue)
	b.WriteString("\n\nTo use a tool, reply with a line of exactly this form:\n")
	b.WriteString("TOOL_CALL: tool_name(arg1, arg2)\n")
	b.WriteString("Put each tool call on its own line. The results will be sent back to you prefixed with ")
	b.WriteString(ToolResultsMarker)
	b.WriteString(" and you must then answer the user. If no tool is needed, answer directly.")
	return b.String()
}
