package tools

import (
	"log/slog"
	"regexp"
	"strings"
)

// callPattern matches `TOOL_CALL: name(args)` anywhere in the text. Arguments
// end at the first closing parenthesis on the same line, so nested
// parentheses and commas inside quotes are not supported.
var callPattern = regexp.MustCompile(`(?i)TOOL_CALL:\s*([A-Za-z0-9_]+)\(([^)\n]*)\)`)

// Parser extracts tool calls for registered tools from model output.
type Parser struct {
	reg    *Registry
	logger *slog.Logger
}

func NewParser(reg *Registry, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{reg: reg, logger: logger}
}

// Parse returns the calls found in text, in order of appearance. Calls to
// unknown tools are dropped and logged.
func (p *Parser) Parse(text string) []Call {
	matches := callPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	calls := make([]Call, 0, len(matches))
	for _, m := range matches {
		name := m[1]
		if _, ok := p.reg.Get(name); !ok {
			p.logger.Warn("dropping call to unknown tool", "tool", name)
			continue
		}
		calls = append(calls, Call{Name: name, Args: SplitArgs(m[2])})
	}
	return calls
}

// SplitArgs splits a raw argument list on commas, trims each token, strips
// one layer of matching quotes and drops empty tokens.
func SplitArgs(raw string) []string {
	parts := strings.Split(raw, ",")
	args := make([]string, 0, len(parts))
	for _, part := range parts {
		arg := unquote(strings.TrimSpace(part))
		if arg == "" {
			continue
		}
		args = append(args, arg)
	}
	return args
}

func unquote(s string) string {
	if len(s) < 2 {
		return s
	}
	first, last := s[0], s[len(s)-1]
	if first == last && (first == '"' || first == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}
