package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricepilot-ai/pricepilot/internal/event"
	"github.com/pricepilot-ai/pricepilot/internal/storage"
	"github.com/pricepilot-ai/pricepilot/internal/transcript"
	"github.com/pricepilot-ai/pricepilot/pkg/types"
	"github.com/spf13/afero"
)

type fakeConductor struct {
	mu        sync.Mutex
	submitted []string
	retries   int
	cancels   int
	retryErr  error
	active    bool
}

func (f *fakeConductor) SubmitTurn(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, text)
}

func (f *fakeConductor) RetryLastTurn() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries++
	return f.retryErr
}

func (f *fakeConductor) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
}

func (f *fakeConductor) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func newTestServer(t *testing.T, conductor *fakeConductor) (*Server, *transcript.Store, *event.Bus) {
	t.Helper()
	bus := event.NewBus()
	t.Cleanup(func() { bus.Close() })
	store := transcript.New(bus)
	cfg := &Config{Port: 0, EnableCORS: false, HeartbeatInterval: 50 * time.Millisecond}
	return New(cfg, conductor, store, bus, nil), store, bus
}

func TestSubmitTurn(t *testing.T) {
	conductor := &fakeConductor{}
	srv, _, _ := newTestServer(t, conductor)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/chat", strings.NewReader(`{"text":"why did widget margin drop?"}`))
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, conductor.submitted, 1)
	assert.Equal(t, "why did widget margin drop?", conductor.submitted[0])
}

func TestSubmitTurnRejectsBlankText(t *testing.T) {
	conductor := &fakeConductor{}
	srv, _, _ := newTestServer(t, conductor)

	for _, body := range []string{`{"text":"   "}`, `{}`, `not json`} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/chat", strings.NewReader(body))
		srv.Router().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}
	assert.Empty(t, conductor.submitted)
}

func TestRetryTurn(t *testing.T) {
	conductor := &fakeConductor{}
	srv, _, _ := newTestServer(t, conductor)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("POST", "/chat/retry", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, conductor.retries)
}

func TestRetryTurnConflict(t *testing.T) {
	conductor := &fakeConductor{retryErr: assert.AnError}
	srv, _, _ := newTestServer(t, conductor)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("POST", "/chat/retry", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, ErrCodeInvalidRequest, resp.Error.Code)
}

func TestAbortTurn(t *testing.T) {
	conductor := &fakeConductor{}
	srv, _, _ := newTestServer(t, conductor)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("POST", "/chat/abort", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, conductor.cancels)
}

func TestChatStatus(t *testing.T) {
	conductor := &fakeConductor{active: true}
	srv, store, _ := newTestServer(t, conductor)

	store.BeginStreaming()
	store.AppendToken("Margins fell")
	store.SetActiveTool("margin_analyzer")

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/chat/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ChatStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Active)
	assert.Equal(t, "Margins fell", resp.StreamContent)
	assert.Equal(t, "margin_analyzer", resp.ActiveTool)
}

func TestGetTranscript(t *testing.T) {
	conductor := &fakeConductor{}
	srv, store, _ := newTestServer(t, conductor)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/transcript", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TranscriptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Messages)

	store.Append(types.NewUserMessage("hello"))

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/transcript", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "hello", resp.Messages[0].Content)
	assert.False(t, resp.Streaming)
}

func TestGetTranscriptSnapshotsLiveStream(t *testing.T) {
	conductor := &fakeConductor{}
	srv, store, _ := newTestServer(t, conductor)

	store.Append(types.NewUserMessage("hello"))
	store.BeginStreaming()
	store.AppendToken("Widget margins ")
	store.AppendToken("dropped 4%")
	store.SetActiveTool("margin_analyzer")

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/transcript", nil))

	var resp TranscriptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Streaming)
	assert.Equal(t, "Widget margins dropped 4%", resp.StreamContent)
	assert.Equal(t, "margin_analyzer", resp.ActiveTool)
	assert.Empty(t, resp.StreamError)
}

func TestGetTranscriptReportsStreamError(t *testing.T) {
	conductor := &fakeConductor{}
	srv, store, _ := newTestServer(t, conductor)

	store.Append(types.NewUserMessage("hello"))
	store.BeginStreaming()
	store.Fail("upstream unreachable")

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/transcript", nil))

	var resp TranscriptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Streaming)
	assert.Equal(t, "upstream unreachable", resp.StreamError)
	// the failure message itself lands in the transcript
	require.Len(t, resp.Messages, 2)
	assert.True(t, resp.Messages[1].IsError)
}

func TestClearTranscriptCancelsActiveTurn(t *testing.T) {
	conductor := &fakeConductor{}
	srv, store, _ := newTestServer(t, conductor)

	store.Append(types.NewUserMessage("hello"))

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("DELETE", "/transcript", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, conductor.cancels)
	assert.Empty(t, store.Messages())
}

func TestEventStream(t *testing.T) {
	conductor := &fakeConductor{}
	srv, store, _ := newTestServer(t, conductor)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/event")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)

	readEvent := func() WireEvent {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			var e WireEvent
			require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &e))
			return e
		}
	}

	assert.Equal(t, event.EventType("server.connected"), readEvent().Type)

	store.Append(types.NewUserMessage("hello"))

	e := readEvent()
	assert.Equal(t, event.MessageCreated, e.Type)
}

func TestArchiveWritesFinalizedMessages(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()
	store := transcript.New(bus)
	archive := storage.NewWithFs(afero.NewMemMapFs(), "/data")

	cfg := &Config{Port: 0, EnableCORS: false, HeartbeatInterval: time.Second}
	srv := New(cfg, &fakeConductor{}, store, bus, archive)
	defer srv.Shutdown(context.Background())

	msg := types.NewUserMessage("archive me")
	store.Append(msg)

	keys, err := archive.List([]string{"transcript", srv.archiveID})
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, msg.ID, keys[0])
}
