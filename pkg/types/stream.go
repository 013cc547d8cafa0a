package types

import "encoding/json"

// StreamEvent is one decoded event from the streaming chat response.
//
// The tool_call field has three-valued semantics: absent (the current tool
// marker persists), present with a name (set the marker), or present and
// explicitly null (clear the marker). Plain struct unmarshaling cannot tell
// absent from null, so UnmarshalJSON records key presence in ToolCallSet.
type StreamEvent struct {
	Token       string   `json:"token,omitempty"`
	ToolCall    *string  `json:"tool_call,omitempty"`
	ToolCallSet bool     `json:"-"`
	Message     string   `json:"message,omitempty"`
	ToolsUsed   []string `json:"tools_used,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
	Error       string   `json:"error,omitempty"`
	Done        bool     `json:"done"`
}

// UnmarshalJSON decodes the event and records whether the tool_call key was
// present at all, so a null value can be distinguished from an omitted one.
func (e *StreamEvent) UnmarshalJSON(data []byte) error {
	type alias StreamEvent
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*e = StreamEvent(a)
	_, e.ToolCallSet = fields["tool_call"]
	return nil
}

// Terminal reports whether this event ends the stream. A frame with done set
// is terminal, as is any frame carrying an error.
func (e *StreamEvent) Terminal() bool {
	return e.Done || e.Error != ""
}

// ChatRequest is the request body for both the streaming and fallback
// transport calls. Context is the market-context payload, forwarded verbatim.
type ChatRequest struct {
	Query            string          `json:"query"`
	Context          json.RawMessage `json:"context,omitempty"`
	HeartbeatSeconds int             `json:"heartbeat_seconds,omitempty"`
}

// Completion is the response of the non-streaming fallback call.
type Completion struct {
	Message    string   `json:"message"`
	ToolsUsed  []string `json:"tools_used,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}
