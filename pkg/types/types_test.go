package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamEvent_ToolCallPresence(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		set     bool
		value   *string
	}{
		{
			name:    "absent",
			payload: `{"token":"hi","done":false}`,
			set:     false,
		},
		{
			name:    "explicit null clears",
			payload: `{"tool_call":null,"done":false}`,
			set:     true,
			value:   nil,
		},
		{
			name:    "named tool",
			payload: `{"tool_call":"optimize_price","done":false}`,
			set:     true,
			value:   ptr("optimize_price"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ev StreamEvent
			require.NoError(t, json.Unmarshal([]byte(tt.payload), &ev))
			assert.Equal(t, tt.set, ev.ToolCallSet)
			assert.Equal(t, tt.value, ev.ToolCall)
		})
	}
}

func TestStreamEvent_Terminal(t *testing.T) {
	assert.False(t, (&StreamEvent{Token: "x"}).Terminal())
	assert.True(t, (&StreamEvent{Done: true, Message: "final"}).Terminal())
	// An error frame is terminal even without done.
	assert.True(t, (&StreamEvent{Error: "model unavailable"}).Terminal())
}

func TestNewMessageIDsAreOrdered(t *testing.T) {
	a := NewMessageID()
	b := NewMessageID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 26)
}

func TestNewErrorMessage(t *testing.T) {
	msg := NewErrorMessage("something broke")
	assert.Equal(t, RoleAssistant, msg.Role)
	assert.True(t, msg.IsError)
	assert.NotZero(t, msg.Time.Created)
}

func ptr[T any](v T) *T { return &v }
