package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/pricepilot-ai/pricepilot/internal/logging"
	"github.com/pricepilot-ai/pricepilot/internal/sse"
	"github.com/pricepilot-ai/pricepilot/internal/transcript"
	"github.com/pricepilot-ai/pricepilot/pkg/types"
)

// Transport is the upstream copilot API surface the orchestrator calls.
type Transport interface {
	// StreamChat opens the streaming call and returns the raw event stream.
	StreamChat(ctx context.Context, req *types.ChatRequest) (io.ReadCloser, error)
	// Complete performs the one-shot fallback call.
	Complete(ctx context.Context, req *types.ChatRequest) (*types.Completion, error)
}

// ContextProvider supplies the market-context payload forwarded verbatim on
// every turn.
type ContextProvider interface {
	Current(ctx context.Context) (json.RawMessage, error)
}

// Orchestrator issues one stream session per user turn, owns its
// cancellation, reconciles the outcome into the transcript and keeps the
// fallback policy informed. At most one session is active at a time: a new
// turn cancels the previous session before it starts, so two live buffers
// can never interleave.
type Orchestrator struct {
	transport Transport
	contexts  ContextProvider
	store     *transcript.Store
	policy    *FallbackPolicy

	// heartbeatSeconds is the keep-alive hint forwarded to the upstream.
	heartbeatSeconds int

	// submitMu serializes turn submission so cancelling the previous
	// session and registering the new one form one atomic claim. Without
	// it, two concurrent submitters could both observe the slot empty and
	// run two sessions against the same store.
	submitMu sync.Mutex

	mu     sync.Mutex
	active *activeTurn
}

type activeTurn struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Options configures an Orchestrator.
type Options struct {
	Transport        Transport
	Contexts         ContextProvider // optional
	Store            *transcript.Store
	Policy           *FallbackPolicy
	HeartbeatSeconds int
}

// NewOrchestrator creates an orchestrator. A nil Policy gets the default
// threshold.
func NewOrchestrator(opts Options) *Orchestrator {
	policy := opts.Policy
	if policy == nil {
		policy = NewFallbackPolicy(DefaultFailureThreshold)
	}
	heartbeat := opts.HeartbeatSeconds
	if heartbeat <= 0 {
		heartbeat = types.DefaultHeartbeatSeconds
	}
	return &Orchestrator{
		transport:        opts.Transport,
		contexts:         opts.Contexts,
		store:            opts.Store,
		policy:           policy,
		heartbeatSeconds: heartbeat,
	}
}

// Store returns the transcript store the orchestrator writes to.
func (o *Orchestrator) Store() *transcript.Store { return o.store }

// Policy returns the fallback policy.
func (o *Orchestrator) Policy() *FallbackPolicy { return o.policy }

// SubmitTurn submits a user turn. The user message lands in the transcript
// synchronously; the response is produced asynchronously and reconciled into
// the transcript store. Any session still active is cancelled first.
func (o *Orchestrator) SubmitTurn(text string) {
	o.submitMu.Lock()
	defer o.submitMu.Unlock()

	o.cancelActiveAndWait()

	o.store.Append(types.NewUserMessage(text))

	ctx, cancel := context.WithCancel(context.Background())
	turn := &activeTurn{cancel: cancel, done: make(chan struct{})}

	o.mu.Lock()
	o.active = turn
	o.mu.Unlock()

	go func() {
		defer func() {
			o.mu.Lock()
			if o.active == turn {
				o.active = nil
			}
			o.mu.Unlock()
			cancel()
			close(turn.done)
		}()
		o.runTurn(ctx, text)
	}()
}

// RetryLastTurn clears the recorded stream error and resubmits the most
// recent user message. This is the only retry mechanism: no turn is ever
// retried automatically.
func (o *Orchestrator) RetryLastTurn() error {
	last, ok := o.store.LastUserMessage()
	if !ok {
		return errors.New("no user turn to retry")
	}
	o.store.ClearStreamError()
	o.SubmitTurn(last.Content)
	return nil
}

// Cancel cancels the active session, if any. The session winds down
// silently; cancellation leaves no message and records no outcome.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	turn := o.active
	o.mu.Unlock()
	if turn != nil {
		turn.cancel()
	}
}

// Active reports whether a turn is currently being processed.
func (o *Orchestrator) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active != nil
}

// Wait blocks until the currently active turn (if any) has finished.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	turn := o.active
	o.mu.Unlock()
	if turn != nil {
		<-turn.done
	}
}

// Shutdown cancels any active turn and waits for it to wind down.
func (o *Orchestrator) Shutdown() {
	o.Cancel()
	o.Wait()
}

func (o *Orchestrator) cancelActiveAndWait() {
	o.mu.Lock()
	turn := o.active
	o.mu.Unlock()
	if turn != nil {
		turn.cancel()
		<-turn.done
	}
}

func (o *Orchestrator) runTurn(ctx context.Context, text string) {
	req := &types.ChatRequest{
		Query:            text,
		Context:          o.marketContext(ctx),
		HeartbeatSeconds: o.heartbeatSeconds,
	}

	if o.policy.ShouldUseStreaming() {
		o.runStreamingTurn(ctx, req)
		return
	}

	session := NewSession(o.store)
	session.Start()
	o.completeFallback(ctx, session, req)
}

// runStreamingTurn drives the streaming path: open the stream, decode
// events, fold them through the session state machine. A transport failure
// before the first event decodes falls through to the one-shot call within
// the same turn.
func (o *Orchestrator) runStreamingTurn(ctx context.Context, req *types.ChatRequest) {
	session := NewSession(o.store)
	session.Start()

	body, err := o.transport.StreamChat(ctx, req)
	if err != nil {
		if cancelled(ctx, err) {
			session.Cancel()
			return
		}
		logging.Warn().Err(err).Msg("stream open failed, falling back to one-shot call")
		o.completeFallback(ctx, session, req)
		return
	}
	defer body.Close()

	decoder := sse.NewDecoder(body)
	decoded := false
	for {
		ev, err := decoder.Next()
		if err == io.EOF {
			if !session.Terminal() {
				// The stream ended without a terminal frame; the reply is
				// incomplete and the turn failed.
				session.FailTransport(errors.New("stream ended before completion"))
				o.policy.RecordOutcome(false)
			}
			return
		}
		if err != nil {
			if cancelled(ctx, err) {
				session.Cancel()
				return
			}
			// A read error before any event arrived is a transport failure
			// like a failed open, not a mid-stream break: the same in-turn
			// fallback applies. Malformed payloads are decode failures and
			// never fall back.
			var decodeErr *sse.DecodeError
			if !decoded && !errors.As(err, &decodeErr) {
				logging.Warn().Err(err).Msg("stream failed before first event, falling back to one-shot call")
				o.completeFallback(ctx, session, req)
				return
			}
			logging.Error().Err(err).Msg("stream decode failed")
			session.FailTransport(err)
			o.policy.RecordOutcome(false)
			return
		}
		decoded = true

		if session.Apply(ev) {
			// Terminal transition honored; the rest of the stream is
			// abandoned.
			o.policy.RecordOutcome(session.State() == Finalized)
			return
		}
	}
}

// completeFallback performs the non-streaming call and reconciles its result
// through the same session, so finalize/fail semantics stay identical to the
// streaming path.
func (o *Orchestrator) completeFallback(ctx context.Context, session *Session, req *types.ChatRequest) {
	comp, err := o.transport.Complete(ctx, req)
	if err != nil {
		if cancelled(ctx, err) {
			session.Cancel()
			return
		}
		logging.Error().Err(err).Msg("fallback call failed")
		session.FailTransport(err)
		o.policy.RecordOutcome(false)
		return
	}

	session.Apply(&types.StreamEvent{
		Message:    comp.Message,
		ToolsUsed:  comp.ToolsUsed,
		Confidence: comp.Confidence,
		Done:       true,
	})
	o.policy.RecordOutcome(true)
}

// marketContext fetches the current market-context payload. The payload is
// forwarded verbatim; a provider failure downgrades the turn to no context
// rather than failing it.
func (o *Orchestrator) marketContext(ctx context.Context) json.RawMessage {
	if o.contexts == nil {
		return nil
	}
	payload, err := o.contexts.Current(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("market context unavailable for this turn")
		return nil
	}
	return payload
}

// cancelled reports whether an error is due to the turn's own cancellation
// rather than a transport failure.
func cancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}
