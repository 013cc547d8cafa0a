package chat

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricepilot-ai/pricepilot/internal/transcript"
	"github.com/pricepilot-ai/pricepilot/pkg/types"
)

func newTestSession() (*Session, *transcript.Store) {
	store := transcript.New(nil)
	return NewSession(store), store
}

func TestSessionFinalizesWithTerminalMessage(t *testing.T) {
	s, store := newTestSession()
	s.Start()
	assert.Equal(t, Streaming, s.State())

	assert.False(t, s.Apply(&types.StreamEvent{Token: "Hello "}))
	assert.False(t, s.Apply(&types.StreamEvent{Token: "world!"}))

	content, _, ok := store.Streaming()
	require.True(t, ok)
	assert.Equal(t, "Hello world!", content)

	assert.True(t, s.Apply(&types.StreamEvent{Message: "Hello world!", Done: true}))
	assert.Equal(t, Finalized, s.State())

	msgs := store.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, types.RoleAssistant, msgs[0].Role)
	assert.Equal(t, "Hello world!", msgs[0].Content)

	_, _, ok = store.Streaming()
	assert.False(t, ok)
}

func TestSessionTerminalMessageIsAuthoritative(t *testing.T) {
	s, store := newTestSession()
	s.Start()

	s.Apply(&types.StreamEvent{Token: "The price is "})
	// Accumulated tokens and the terminal message are expected to match,
	// but when they diverge the terminal value wins.
	s.Apply(&types.StreamEvent{Message: "The price is $24.50", Done: true})

	msgs := store.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "The price is $24.50", msgs[0].Content)
}

func TestSessionToolFlow(t *testing.T) {
	s, store := newTestSession()
	s.Start()

	tool := "optimize_price"
	s.Apply(&types.StreamEvent{ToolCall: &tool, ToolCallSet: true})

	_, active, _ := store.Streaming()
	assert.Equal(t, "optimize_price", active)

	// An event that omits tool_call leaves the marker in place.
	s.Apply(&types.StreamEvent{Token: "The price is "})
	_, active, _ = store.Streaming()
	assert.Equal(t, "optimize_price", active)

	s.Apply(&types.StreamEvent{
		Message:   "The price is $24.50",
		ToolsUsed: []string{"optimize_price"},
		Done:      true,
	})

	msgs := store.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"optimize_price"}, msgs[0].ToolsUsed)
}

func TestSessionExplicitNullClearsTool(t *testing.T) {
	s, store := newTestSession()
	s.Start()

	tool := "demand_forecast"
	s.Apply(&types.StreamEvent{ToolCall: &tool, ToolCallSet: true})
	s.Apply(&types.StreamEvent{ToolCall: nil, ToolCallSet: true})

	_, active, _ := store.Streaming()
	assert.Empty(t, active)
}

func TestSessionToolsSeenUsedWhenTerminalOmitsThem(t *testing.T) {
	s, store := newTestSession()
	s.Start()

	tool := "optimize_price"
	s.Apply(&types.StreamEvent{ToolCall: &tool, ToolCallSet: true})
	s.Apply(&types.StreamEvent{Message: "done", Done: true})

	msgs := store.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"optimize_price"}, msgs[0].ToolsUsed)
}

func TestSessionErrorEventAppendsErrorMessage(t *testing.T) {
	s, store := newTestSession()
	s.Start()

	assert.True(t, s.Apply(&types.StreamEvent{Error: "Model unavailable", Done: true}))
	assert.Equal(t, Errored, s.State())

	msgs := store.Messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsError)
	assert.Equal(t, "Model unavailable", msgs[0].Content)
	assert.Equal(t, "Model unavailable", store.StreamError())
}

func TestSessionIgnoresEventsAfterTerminal(t *testing.T) {
	s, store := newTestSession()
	s.Start()

	s.Apply(&types.StreamEvent{Message: "final", Done: true})
	// Only one terminal transition is honored.
	s.Apply(&types.StreamEvent{Message: "late duplicate", Done: true})
	s.Apply(&types.StreamEvent{Token: "late token"})

	msgs := store.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "final", msgs[0].Content)
}

func TestSessionCancelIsSilent(t *testing.T) {
	s, store := newTestSession()
	s.Start()

	s.Apply(&types.StreamEvent{Token: "some "})
	s.Apply(&types.StreamEvent{Token: "tokens"})
	s.Cancel()

	assert.Equal(t, Cancelled, s.State())
	assert.Empty(t, store.Messages())
	assert.Empty(t, store.StreamError())
	_, _, ok := store.Streaming()
	assert.False(t, ok)

	// Cancel after terminal is a no-op either way.
	s.Cancel()
	assert.Equal(t, Cancelled, s.State())
}

func TestSessionDoneWithoutMessageUsesAccumulatedText(t *testing.T) {
	s, store := newTestSession()
	s.Start()

	s.Apply(&types.StreamEvent{Token: "partial "})
	s.Apply(&types.StreamEvent{Token: "answer"})
	s.Apply(&types.StreamEvent{Done: true})

	msgs := store.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "partial answer", msgs[0].Content)
}

func TestSessionFailTransport(t *testing.T) {
	s, store := newTestSession()
	s.Start()

	s.FailTransport(errors.New("connection reset"))
	assert.Equal(t, Errored, s.State())

	msgs := store.Messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsError)
	assert.Contains(t, msgs[0].Content, "connection reset")
}

func TestSessionStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "streaming", Streaming.String())
	assert.Equal(t, "finalized", Finalized.String())
	assert.Equal(t, "errored", Errored.String())
	assert.Equal(t, "cancelled", Cancelled.String())
}
