package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deephat/internal/logging"
	"deephat/internal/tools"
)

// scriptedAdapter replays canned replies and records every transcript it
// receives.
type scriptedAdapter struct {
	replies []string
	err     error
	seen    [][]Message
}

func (a *scriptedAdapter) Complete(_ context.Context, history []Message) (string, error) {
	a.seen = append(a.seen, append([]Message(nil), history...))
	if a.err != nil {
		return "", a.err
	}
	i := len(a.seen) - 1
	if i >= len(a.replies) {
		i = len(a.replies) - 1
	}
	return a.replies[i], nil
}

type countingRunner struct {
	inner func(context.Context, []tools.Call) string
	calls [][]tools.Call
}

func (r *countingRunner) Run(ctx context.Context, calls []tools.Call) string {
	r.calls = append(r.calls, calls)
	return r.inner(ctx, calls)
}

func statusRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg, err := tools.NewRegistry(tools.Func{
		ToolName:   "check_system_status",
		Desc:       "Report the status of a component",
		ParamNames: []string{"component"},
		Fn: func(_ context.Context, args []string) (string, error) {
			return "component " + tools.Arg(args, 0, "all") + " is operational", nil
		},
	})
	require.NoError(t, err)
	return reg
}

func newTestService(t *testing.T, adapter Adapter, opts ...ServiceOption) (*Service, *countingRunner) {
	t.Helper()
	reg := statusRegistry(t)
	exec := tools.NewExecutor(reg, tools.WithLogger(logging.Discard()))
	runner := &countingRunner{inner: exec.Run}
	opts = append([]ServiceOption{WithToolRunner(runner), WithLogger(logging.Discard())}, opts...)
	return NewService(adapter, reg, opts...), runner
}

func TestReplyWithoutTools(t *testing.T) {
	adapter := &scriptedAdapter{replies: []string{"Hi there"}}
	svc, runner := newTestService(t, adapter)

	got, err := svc.Reply(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "Hi there", got)
	assert.Len(t, adapter.seen, 1)
	assert.Empty(t, runner.calls)

	first := adapter.seen[0]
	require.Len(t, first, 2)
	assert.Equal(t, RoleSystem, first[0].Role)
	assert.Contains(t, first[0].Content, "check_system_status(component)")
	assert.Equal(t, Message{Role: RoleUser, Content: "hello"}, first[1])
}

func TestReplyRunsToolsThenAnswers(t *testing.T) {
	adapter := &scriptedAdapter{replies: []string{
		"Let me look.\nTOOL_CALL: check_system_status(api)",
		"The API is operational.",
	}}
	svc, runner := newTestService(t, adapter)

	history := []Message{{Role: RoleUser, Content: "earlier"}, {Role: RoleAssistant, Content: "reply"}}
	got, err := svc.Reply(context.Background(), "is the api up?", history)
	require.NoError(t, err)
	assert.Equal(t, "The API is operational.", got)

	require.Len(t, adapter.seen, 2)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, []tools.Call{{Name: "check_system_status", Args: []string{"api"}}}, runner.calls[0])

	second := adapter.seen[1]
	for _, m := range second {
		assert.NotEqual(t, RoleSystem, m.Role, "catalogue prompt must only be sent on the first turn")
	}
	last := second[len(second)-1]
	assert.Equal(t, RoleUser, last.Role)
	assert.True(t, strings.HasPrefix(last.Content, ToolResultsMarker))
	assert.Contains(t, last.Content, "[check_system_status] component api is operational")
	assert.Contains(t, last.Content, finalAnswerInstruction)
	assert.Equal(t, RoleAssistant, second[len(second)-2].Role)
}

func TestReplyStopsAtRoundLimit(t *testing.T) {
	adapter := &scriptedAdapter{replies: []string{"Again.\nTOOL_CALL: check_system_status(db)"}}
	svc, runner := newTestService(t, adapter, WithMaxToolRounds(2))

	got, err := svc.Reply(context.Background(), "loop forever", nil)
	require.NoError(t, err)
	assert.Equal(t, "Again.", got)
	assert.Len(t, runner.calls, 2)
	assert.Len(t, adapter.seen, 3)
}

func TestReplyRejectsEmptyMessage(t *testing.T) {
	adapter := &scriptedAdapter{replies: []string{"unused"}}
	svc, _ := newTestService(t, adapter)

	_, err := svc.Reply(context.Background(), "   ", nil)
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, adapter.seen)
}

func TestReplyPropagatesAdapterError(t *testing.T) {
	boom := errors.New("upstream exploded")
	svc, _ := newTestService(t, &scriptedAdapter{err: boom})

	_, err := svc.Reply(context.Background(), "hello", nil)
	assert.ErrorIs(t, err, boom)
}

func TestReplyHonoursCanceledContext(t *testing.T) {
	adapter := &scriptedAdapter{replies: []string{"unused"}}
	svc, _ := newTestService(t, adapter)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Reply(ctx, "hello", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, adapter.seen)
}

func TestSystemPromptEmptyWithoutTools(t *testing.T) {
	reg, err := tools.NewRegistry()
	require.NoError(t, err)
	assert.Empty(t, SystemPrompt(reg))

	adapter := &scriptedAdapter{replies: []string{"ok"}}
	svc := NewService(adapter, reg, WithLogger(logging.Discard()))
	_, err = svc.Reply(context.Background(), "hello", nil)
	require.NoError(t, err)
	require.Len(t, adapter.seen[0], 1)
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole(" Assistant ")
	assert.True(t, ok)
	assert.Equal(t, RoleAssistant, r)

	_, ok = ParseRole("tool")
	assert.False(t, ok)
}
