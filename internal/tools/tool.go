// Package tools holds the tool registry the model can call into, the parser
// that finds TOOL_CALL directives in model output, and the executor that runs
// them.
package tools

import (
	"context"
	"time"
)

// Tool is a named capability the model can request.
type Tool interface {
	// Name is the identifier used in TOOL_CALL lines.
	Name() string
	// Description is a one-line summary shown to the model.
	Description() string
	// Params lists the positional parameter names in call order.
	Params() []string
	// Invoke runs the tool with positional string arguments.
	Invoke(ctx context.Context, args []string) (string, error)
}

// Call is a single invocation parsed from model output.
type Call struct {
	Name string
	Args []string
}

// Budgeted is implemented by tools that may legitimately run longer than the
// executor's default per-call bound.
type Budgeted interface {
	Budget() time.Duration
}

// Func adapts a plain function into a Tool.
type Func struct {
	ToolName   string
	Desc       string
	ParamNames []string
	// Timeout, when set, is the time the tool needs; it raises the executor
	// bound for this tool but never lowers it.
	Timeout time.Duration
	Fn      func(ctx context.Context, args []string) (string, error)
}

// Name returns ToolName.
func (f Func) Name() string { return f.ToolName }

// Description returns Desc.
func (f Func) Description() string { return f.Desc }

// Params returns ParamNames.
func (f Func) Params() []string { return f.ParamNames }

// Budget returns Timeout.
func (f Func) Budget() time.Duration { return f.Timeout }

// Invoke calls Fn.
func (f Func) Invoke(ctx context.Context, args []string) (string, error) {
	return f.Fn(ctx, args)
}

// Arg returns args[i] or fallback when the argument was not supplied.
func Arg(args []string, i int, fallback string) string {
	if i < len(args) && args[i] != "" {
		return args[i]
	}
	return fallback
}
