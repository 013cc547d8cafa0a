package types

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Role identifies the author of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in the conversation transcript. Messages are
// immutable once created: the orchestrator builds them fully formed and the
// transcript store only ever appends them.
type Message struct {
	ID      string      `json:"id"`
	Role    Role        `json:"role"`
	Content string      `json:"content"`
	Time    MessageTime `json:"time"`

	// Assistant-specific fields
	Confidence *float64 `json:"confidence,omitempty"`
	ToolsUsed  []string `json:"toolsUsed,omitempty"`
	IsError    bool     `json:"isError,omitempty"`
}

// MessageTime contains the creation timestamp in Unix milliseconds.
type MessageTime struct {
	Created int64 `json:"created"`
}

// NewUserMessage creates a user message from submitted text.
func NewUserMessage(content string) Message {
	return Message{
		ID:      NewMessageID(),
		Role:    RoleUser,
		Content: content,
		Time:    MessageTime{Created: time.Now().UnixMilli()},
	}
}

// NewAssistantMessage creates a finalized assistant message.
func NewAssistantMessage(content string, toolsUsed []string, confidence *float64) Message {
	return Message{
		ID:         NewMessageID(),
		Role:       RoleAssistant,
		Content:    content,
		Time:       MessageTime{Created: time.Now().UnixMilli()},
		Confidence: confidence,
		ToolsUsed:  toolsUsed,
	}
}

// NewErrorMessage creates an assistant message describing a failed turn.
func NewErrorMessage(content string) Message {
	return Message{
		ID:      NewMessageID(),
		Role:    RoleAssistant,
		Content: content,
		Time:    MessageTime{Created: time.Now().UnixMilli()},
		IsError: true,
	}
}

// NewMessageID generates a new ULID. ULIDs are lexicographically sortable,
// which keeps transcript order stable across serialization.
func NewMessageID() string {
	return ulid.Make().String()
}
