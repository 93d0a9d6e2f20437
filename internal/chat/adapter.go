package chat

import (
	"context"

	"deephat/internal/tools"
)

// Adapter abstracts chat completion providers.
type Adapter interface {
	// Complete sends the transcript and returns the generated text.
	Complete(ctx context.Context, history []Message) (string, error)
}

// ToolRunner executes the calls parsed from one model turn and returns the
// combined result block.
type ToolRunner interface {
	Run(ctx context.Context, calls []tools.Call) string
}
