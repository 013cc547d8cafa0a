package chat

import "sync"

// DefaultFailureThreshold is the number of consecutive failed turns after
// which streaming is disabled.
const DefaultFailureThreshold = 3

// FallbackPolicy tracks consecutive turn failures and decides whether the
// next turn uses the streaming path or the one-shot fallback call.
//
// Disabling is one-way for the life of the process: a success resets the
// failure counter but never re-enables streaming. Flapping between modes
// mid-conversation is worse than staying on the predictable path.
type FallbackPolicy struct {
	mu                  sync.Mutex
	threshold           int
	consecutiveFailures int
	streamingEnabled    bool
}

// NewFallbackPolicy creates a policy with the given failure threshold.
// Values below 1 fall back to DefaultFailureThreshold.
func NewFallbackPolicy(threshold int) *FallbackPolicy {
	if threshold < 1 {
		threshold = DefaultFailureThreshold
	}
	return &FallbackPolicy{
		threshold:        threshold,
		streamingEnabled: true,
	}
}

// RecordOutcome records the result of a completed turn. Cancelled turns are
// never recorded.
func (p *FallbackPolicy) RecordOutcome(success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if success {
		p.consecutiveFailures = 0
		return
	}

	p.consecutiveFailures++
	if p.consecutiveFailures >= p.threshold {
		p.streamingEnabled = false
	}
}

// ShouldUseStreaming reports whether the next turn may use the streaming
// path.
func (p *FallbackPolicy) ShouldUseStreaming() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streamingEnabled
}

// ConsecutiveFailures returns the current failure count.
func (p *FallbackPolicy) ConsecutiveFailures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.consecutiveFailures
}
