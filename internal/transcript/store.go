// Package transcript holds the durable, ordered conversation transcript and
// the single live streaming buffer. It is the only source of truth the
// rendering layer reads; every mutation goes through the operations here and
// is mirrored onto the event bus.
package transcript

import (
	"strings"
	"sync"

	"github.com/pricepilot-ai/pricepilot/internal/event"
	"github.com/pricepilot-ai/pricepilot/pkg/types"
)

// liveBuffer accumulates a not-yet-finalized streaming response. At most one
// exists at a time.
type liveBuffer struct {
	text       strings.Builder
	activeTool string
}

// Store is the transcript store. All operations are safe for concurrent use
// and never fail: calls that need a live buffer when none exists are no-ops.
type Store struct {
	mu          sync.RWMutex
	messages    []types.Message
	live        *liveBuffer
	streamError string

	bus *event.Bus
}

// New creates an empty transcript store. Events are published on bus; a nil
// bus disables publishing (useful in tests).
func New(bus *event.Bus) *Store {
	return &Store{bus: bus}
}

func (s *Store) publish(e event.Event) {
	if s.bus != nil {
		s.bus.PublishSync(e)
	}
}

// Append adds a completed message to the transcript.
func (s *Store) Append(msg types.Message) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	s.publish(event.Event{
		Type: event.MessageCreated,
		Data: event.MessageCreatedData{Message: &msg},
	})
}

// BeginStreaming creates the live buffer for a new session and clears any
// stream error left over from a previous turn. A buffer that is already live
// is replaced; the orchestrator guarantees the old session was cancelled
// first.
func (s *Store) BeginStreaming() {
	s.mu.Lock()
	s.live = &liveBuffer{}
	s.streamError = ""
	s.mu.Unlock()

	s.publish(event.Event{Type: event.StreamStarted, Data: event.StreamStartedData{}})
}

// AppendToken appends a token to the live buffer. No-op without one.
func (s *Store) AppendToken(token string) {
	s.mu.Lock()
	if s.live == nil || token == "" {
		s.mu.Unlock()
		return
	}
	s.live.text.WriteString(token)
	content := s.live.text.String()
	s.mu.Unlock()

	s.publish(event.Event{
		Type: event.StreamDelta,
		Data: event.StreamDeltaData{Content: content, Delta: token},
	})
}

// SetActiveTool records the tool currently in use. No-op without a buffer.
func (s *Store) SetActiveTool(tool string) {
	s.mu.Lock()
	if s.live == nil {
		s.mu.Unlock()
		return
	}
	s.live.activeTool = tool
	s.mu.Unlock()

	s.publish(event.Event{Type: event.StreamTool, Data: event.StreamToolData{Tool: tool}})
}

// ClearActiveTool clears the tool marker. No-op without a buffer.
func (s *Store) ClearActiveTool() {
	s.SetActiveTool("")
}

// Finalize clears the live buffer and appends the finalized message exactly
// once. No-op if no buffer is live, so a second finalization cannot append a
// duplicate.
func (s *Store) Finalize(msg types.Message) {
	s.mu.Lock()
	if s.live == nil {
		s.mu.Unlock()
		return
	}
	s.live = nil
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	s.publish(event.Event{
		Type: event.StreamFinished,
		Data: event.StreamFinishedData{Message: &msg},
	})
	s.publish(event.Event{
		Type: event.MessageCreated,
		Data: event.MessageCreatedData{Message: &msg},
	})
}

// Fail clears the live buffer, appends an assistant message describing the
// failure and surfaces the error for the UI. No-op without a buffer.
func (s *Store) Fail(errText string) {
	s.mu.Lock()
	if s.live == nil {
		s.mu.Unlock()
		return
	}
	s.live = nil
	s.streamError = errText
	msg := types.NewErrorMessage(errText)
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	s.publish(event.Event{
		Type: event.StreamFailed,
		Data: event.StreamFailedData{Error: errText},
	})
	s.publish(event.Event{
		Type: event.MessageCreated,
		Data: event.MessageCreatedData{Message: &msg},
	})
}

// CancelStreaming drops the live buffer silently. Cancellation is not a
// failure: no message is appended and no error is surfaced.
func (s *Store) CancelStreaming() {
	s.mu.Lock()
	if s.live == nil {
		s.mu.Unlock()
		return
	}
	s.live = nil
	s.mu.Unlock()

	s.publish(event.Event{Type: event.StreamCancelled})
}

// ClearStreamError clears a previously surfaced stream error.
func (s *Store) ClearStreamError() {
	s.mu.Lock()
	s.streamError = ""
	s.mu.Unlock()
}

// Clear drops all messages and any live buffer.
func (s *Store) Clear() {
	s.mu.Lock()
	s.messages = nil
	s.live = nil
	s.streamError = ""
	s.mu.Unlock()

	s.publish(event.Event{Type: event.TranscriptCleared})
}

// Messages returns a snapshot of the completed messages.
func (s *Store) Messages() []types.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Streaming returns the live buffer's accumulated text and active tool.
// ok is false when no buffer is live.
func (s *Store) Streaming() (content, activeTool string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.live == nil {
		return "", "", false
	}
	return s.live.text.String(), s.live.activeTool, true
}

// StreamError returns the error surfaced by the last failed turn, if any.
func (s *Store) StreamError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streamError
}

// LastUserMessage returns the most recent user message, if any.
func (s *Store) LastUserMessage() (types.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == types.RoleUser {
			return s.messages[i], true
		}
	}
	return types.Message{}, false
}
