// Package transport implements the HTTP client for the upstream
// pricing-copilot API: the streaming chat call and the one-shot fallback.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pricepilot-ai/pricepilot/pkg/types"
)

const (
	streamPath   = "/api/chat/stream"
	completePath = "/api/chat"
)

// Client calls the upstream copilot API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the given base URL. The underlying HTTP
// client carries no timeout: streaming responses stay open for the life of
// a turn and are bounded by the request context instead.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
}

// StreamChat opens the streaming chat call and returns the response body.
// The caller owns the body; cancelling ctx fails the next read.
func (c *Client) StreamChat(ctx context.Context, req *types.ChatRequest) (io.ReadCloser, error) {
	httpReq, err := c.newRequest(ctx, streamPath, req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("stream request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("stream request failed: status %d", resp.StatusCode)
	}

	return resp.Body, nil
}

// Complete performs the non-streaming fallback call.
func (c *Client) Complete(ctx context.Context, req *types.ChatRequest) (*types.Completion, error) {
	httpReq, err := c.newRequest(ctx, completePath, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("completion request failed: status %d", resp.StatusCode)
	}

	var comp types.Completion
	if err := json.NewDecoder(resp.Body).Decode(&comp); err != nil {
		return nil, fmt.Errorf("failed to decode completion: %w", err)
	}

	return &comp, nil
}

func (c *Client) newRequest(ctx context.Context, path string, req *types.ChatRequest) (*http.Request, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	return httpReq, nil
}
