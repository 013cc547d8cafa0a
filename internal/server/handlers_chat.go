package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pricepilot-ai/pricepilot/pkg/types"
)

// SubmitTurnRequest is the body for POST /chat.
type SubmitTurnRequest struct {
	Text string `json:"text"`
}

// ChatStatusResponse is the response for GET /chat/status.
type ChatStatusResponse struct {
	Active        bool   `json:"active"`
	StreamContent string `json:"streamContent,omitempty"`
	ActiveTool    string `json:"activeTool,omitempty"`
}

// TranscriptResponse is the response for GET /transcript: the finalized
// messages plus whatever live streaming state exists at snapshot time.
type TranscriptResponse struct {
	Messages      []types.Message `json:"messages"`
	Streaming     bool            `json:"streaming"`
	StreamContent string          `json:"streamContent,omitempty"`
	ActiveTool    string          `json:"activeTool,omitempty"`
	StreamError   string          `json:"streamError,omitempty"`
}

// submitTurn handles POST /chat. The turn runs asynchronously; progress is
// delivered over /event and /ws.
func (s *Server) submitTurn(w http.ResponseWriter, r *http.Request) {
	var req SubmitTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "text is required")
		return
	}

	s.conductor.SubmitTurn(req.Text)
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

// retryTurn handles POST /chat/retry.
func (s *Server) retryTurn(w http.ResponseWriter, r *http.Request) {
	if err := s.conductor.RetryLastTurn(); err != nil {
		writeError(w, http.StatusConflict, ErrCodeInvalidRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

// abortTurn handles POST /chat/abort. Aborting when nothing is active is
// fine; cancellation is always silent.
func (s *Server) abortTurn(w http.ResponseWriter, r *http.Request) {
	s.conductor.Cancel()
	writeSuccess(w)
}

// chatStatus handles GET /chat/status.
func (s *Server) chatStatus(w http.ResponseWriter, r *http.Request) {
	resp := ChatStatusResponse{Active: s.conductor.Active()}
	if content, tool, ok := s.store.Streaming(); ok {
		resp.StreamContent = content
		resp.ActiveTool = tool
	}
	writeJSON(w, http.StatusOK, resp)
}

// getTranscript handles GET /transcript.
func (s *Server) getTranscript(w http.ResponseWriter, r *http.Request) {
	messages := s.store.Messages()
	if messages == nil {
		messages = []types.Message{}
	}
	resp := TranscriptResponse{
		Messages:    messages,
		StreamError: s.store.StreamError(),
	}
	if content, tool, ok := s.store.Streaming(); ok {
		resp.Streaming = true
		resp.StreamContent = content
		resp.ActiveTool = tool
	}
	writeJSON(w, http.StatusOK, resp)
}

// clearTranscript handles DELETE /transcript. The active turn, if any, is
// cancelled first so no live buffer survives the clear.
func (s *Server) clearTranscript(w http.ResponseWriter, r *http.Request) {
	s.conductor.Cancel()
	s.store.Clear()
	writeSuccess(w)
}
