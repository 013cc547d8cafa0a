package chat

import (
	"fmt"

	"github.com/pricepilot-ai/pricepilot/internal/transcript"
	"github.com/pricepilot-ai/pricepilot/pkg/types"
)

// State is the lifecycle state of a stream session.
type State int

const (
	// Idle means the session has not started.
	Idle State = iota
	// Streaming means events are arriving and the live buffer is growing.
	Streaming
	// Finalized means the stream completed with a terminal message.
	Finalized
	// Errored means the stream ended in a failure, explicit or transport.
	Errored
	// Cancelled means the caller interrupted the session before a terminal
	// event. Cancellation is silent: no message, no recorded outcome.
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	case Finalized:
		return "finalized"
	case Errored:
		return "errored"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session folds decoded stream events into the transcript store's live
// buffer. One session exists per user turn; it is never reused after
// reaching a terminal state.
type Session struct {
	store *transcript.Store
	state State

	// toolsSeen are tools observed during streaming, used when the terminal
	// frame omits tools_used.
	toolsSeen []string
}

// NewSession creates a session bound to the transcript store.
func NewSession(store *transcript.Store) *Session {
	return &Session{store: store}
}

// State returns the current session state.
func (s *Session) State() State { return s.state }

// Terminal reports whether the session reached a terminal state.
func (s *Session) Terminal() bool {
	return s.state == Finalized || s.state == Errored || s.state == Cancelled
}

// Start transitions Idle → Streaming and opens the live buffer.
func (s *Session) Start() {
	if s.state != Idle {
		return
	}
	s.state = Streaming
	s.store.BeginStreaming()
}

// Apply folds one decoded event into the live buffer. Events arriving after
// a terminal state are ignored; the decoder sequence is abandoned once the
// session is terminal. Returns true when the event was terminal.
func (s *Session) Apply(ev *types.StreamEvent) bool {
	if s.state != Streaming {
		return s.Terminal()
	}

	if ev.Token != "" {
		s.store.AppendToken(ev.Token)
	}

	// tool_call has three-valued semantics: a name sets the marker, an
	// explicit null clears it, absence leaves it untouched.
	if ev.ToolCallSet {
		if ev.ToolCall != nil && *ev.ToolCall != "" {
			s.store.SetActiveTool(*ev.ToolCall)
			s.toolsSeen = appendUnique(s.toolsSeen, *ev.ToolCall)
		} else {
			s.store.ClearActiveTool()
		}
	}

	if !ev.Terminal() {
		return false
	}

	if ev.Error != "" {
		s.state = Errored
		s.store.Fail(ev.Error)
		return true
	}

	s.state = Finalized
	s.store.Finalize(types.NewAssistantMessage(
		s.finalContent(ev),
		s.finalTools(ev),
		ev.Confidence,
	))
	return true
}

// FailTransport ends the session with a transport or decode failure. The
// failure text becomes a user-visible assistant message.
func (s *Session) FailTransport(err error) {
	if s.state != Streaming {
		return
	}
	s.state = Errored
	s.store.Fail(fmt.Sprintf("The pricing copilot connection failed: %v", err))
}

// Cancel transitions Streaming → Cancelled and drops the buffer silently.
func (s *Session) Cancel() {
	if s.state != Streaming {
		return
	}
	s.state = Cancelled
	s.store.CancelStreaming()
}

// finalContent prefers the terminal frame's complete message over the
// locally accumulated tokens. The two are expected to match, but the
// terminal value is the contract.
func (s *Session) finalContent(ev *types.StreamEvent) string {
	if ev.Message != "" {
		return ev.Message
	}
	if content, _, ok := s.store.Streaming(); ok {
		return content
	}
	return ""
}

// finalTools prefers the terminal frame's tools_used, falling back to the
// tools observed while streaming.
func (s *Session) finalTools(ev *types.StreamEvent) []string {
	if len(ev.ToolsUsed) > 0 {
		return ev.ToolsUsed
	}
	return s.toolsSeen
}

func appendUnique(list []string, v string) []string {
	for _, item := range list {
		if item == v {
			return list
		}
	}
	return append(list, v)
}
