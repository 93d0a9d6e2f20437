package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// NoToolsExecuted is returned by Executor.Run for an empty call list.
const NoToolsExecuted = "No tools executed."

// Executor runs parsed calls against a registry, one after another.
type Executor struct {
	reg     *Registry
	timeout time.Duration
	logger  *slog.Logger
}

type ExecutorOption func(*Executor)

// WithTimeout bounds each tool invocation. Zero disables the bound. Tools
// implementing Budgeted with a longer budget get that budget instead.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = d
	}
}

func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func NewExecutor(reg *Registry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		reg:     reg,
		timeout: 90 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run invokes every call in order and joins the per-call results with
// newlines. A failing call yields an "[name] Error: ..." line and never stops
// the remaining calls.
func (e *Executor) Run(ctx context.Context, calls []Call) string {
	if len(calls) == 0 {
		return NoToolsExecuted
	}
	lines := make([]string, 0, len(calls))
	for _, call := range calls {
		out, err := e.invoke(ctx, call)
		if err != nil {
			lines = append(lines, fmt.Sprintf("[%s] Error: %s", call.Name, err))
			continue
		}
		lines = append(lines, fmt.Sprintf("[%s] %s", call.Name, out))
	}
	return strings.Join(lines, "\n")
}

func (e *Executor) invoke(ctx context.Context, call Call) (out string, err error) {
	tool, ok := e.reg.Get(call.Name)
	if !ok {
		return "", fmt.Errorf("unknown tool %q", call.Name)
	}

	if timeout := e.timeoutFor(tool); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("tool panicked: %v", p)
		}
		if err != nil {
			e.logger.Warn("tool failed", "tool", call.Name, "args", call.Args, "duration", time.Since(start), "error", err)
			return
		}
		e.logger.Info("tool finished", "tool", call.Name, "args", call.Args, "duration", time.Since(start))
	}()

	return tool.Invoke(ctx, call.Args)
}

// timeoutFor is the executor bound, raised to the tool's own budget when the
// tool declares a longer one. Zero means unbounded.
func (e *Executor) timeoutFor(tool Tool) time.Duration {
	if e.timeout <= 0 {
		return 0
	}
	if b, ok := tool.(Budgeted); ok && b.Budget() > e.timeout {
		return b.Budget()
	}
	return e.timeout
}
