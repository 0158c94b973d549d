package chat_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/procurechat/pochat/agentclient"
	"github.com/procurechat/pochat/chat"
	"github.com/procurechat/pochat/domain"
	"github.com/procurechat/pochat/session"
)

// sseServer serves the given SSE records once per request and captures the
// decoded request bodies.
type sseServer struct {
	mu       sync.Mutex
	requests []domain.ChatRequest
	scripts  [][]string
	calls    int
}

func (s *sseServer) handler(w http.ResponseWriter, r *http.Request) {
	var req domain.ChatRequest
	json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	s.requests = append(s.requests, req)
	idx := s.calls
	if idx >= len(s.scripts) {
		idx = len(s.scripts) - 1
	}
	script := s.scripts[idx]
	s.calls++
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	for _, record := range script {
		fmt.Fprint(w, record)
	}
}

func record(event, data string) string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", event, data)
}

func newTestClient(t *testing.T, scripts ...[]string) (*chat.Client, *sseServer) {
	t.Helper()
	srv := &sseServer{scripts: scripts}
	httpSrv := httptest.NewServer(http.HandlerFunc(srv.handler))
	t.Cleanup(httpSrv.Close)

	store := session.NewStore(nil)
	client := chat.New(agentclient.NewClient(httpSrv.URL, 5*time.Second), store, nil, nil)
	return client, srv
}

func TestSendMessageStreamsTokensIntoOneMessage(t *testing.T) {
	client, _ := newTestClient(t, []string{
		record("session", `{"session_id":"s1"}`),
		record("token", `{"content":"Hello"}`),
		record("token", `{"content":" world"}`),
		record("done", `{}`),
	})

	err := client.SendMessage(context.Background(), "hi", nil)
	assert.NoError(t, err)

	snap := client.Store().Snapshot()
	assert.Equal(t, "s1", snap.SessionID)
	assert.False(t, snap.Streaming)
	assert.Equal(t, "", snap.StreamingContent)
	assert.Empty(t, snap.Err)
	if assert.Len(t, snap.Messages, 2) {
		assert.Equal(t, domain.RoleUser, snap.Messages[0].Role)
		assert.Equal(t, "hi", snap.Messages[0].Content)
		assert.Equal(t, domain.RoleAssistant, snap.Messages[1].Role)
		assert.Equal(t, "Hello world", snap.Messages[1].Content)
	}
}

func TestSessionIDEchoedOnNextRequest(t *testing.T) {
	client, srv := newTestClient(t, []string{
		record("session", `{"session_id":"s1"}`),
		record("done", `{}`),
	})

	assert.NoError(t, client.SendMessage(context.Background(), "first", nil))
	assert.NoError(t, client.SendMessage(context.Background(), "second", nil))

	assert.Nil(t, srv.requests[0].SessionID)
	if assert.NotNil(t, srv.requests[1].SessionID) {
		assert.Equal(t, "s1", *srv.requests[1].SessionID)
	}
	assert.Equal(t, domain.ChatActionMessage, srv.requests[1].Action)
}

func TestClarificationFlushesStreamingFirst(t *testing.T) {
	client, _ := newTestClient(t, []string{
		record("token", `{"content":"Checking terms"}`),
		record("clarification", `{"question":"Which terms?","field":"terms","options":[{"label":"Net 30","value":"trm_001","isFigureItOut":false}]}`),
		record("done", `{}`),
	})

	assert.NoError(t, client.SendMessage(context.Background(), "order steel", nil))

	snap := client.Store().Snapshot()
	if assert.Len(t, snap.Messages, 3) {
		assert.Equal(t, "Checking terms", snap.Messages[1].Content)
		clar, ok := snap.Messages[2].Payload.(*domain.Clarification)
		if assert.True(t, ok, "expected clarification payload") {
			assert.Equal(t, "terms", clar.Field)
			assert.False(t, clar.Answered)
		}
	}
}

func TestDraftUpdateThenPreview(t *testing.T) {
	client, _ := newTestClient(t, []string{
		record("draft_update", `{"counterparty":{"id":"c1","name":"Acme"}}`),
		record("preview", `{"counterparty":{"id":"c1","name":"Acme"},"items":[{"item_id":"i1","name":"Rod","qty":2,"unit":"kg","rate":21,"total":42}],"subtotal":42.0}`),
		record("done", `{}`),
	})

	assert.NoError(t, client.SendMessage(context.Background(), "2kg rods from acme", nil))

	snap := client.Store().Snapshot()
	assert.True(t, snap.POReady)
	if assert.NotNil(t, snap.PODraft.Subtotal) {
		assert.Equal(t, 42.0, *snap.PODraft.Subtotal)
	}
	assert.Equal(t, "Acme", snap.PODraft.Counterparty.Name)
	assert.Len(t, snap.PODraft.Items, 1)
}

func TestDraftUpdateAloneDoesNotSetReady(t *testing.T) {
	client, _ := newTestClient(t, []string{
		record("draft_update", `{"counterparty":{"id":"c1","name":"Acme"}}`),
		record("done", `{}`),
	})

	assert.NoError(t, client.SendMessage(context.Background(), "acme please", nil))
	assert.False(t, client.Store().Snapshot().POReady)
}

func TestFailedSubmitResultKeepsSubmittedFalse(t *testing.T) {
	client, _ := newTestClient(t, []string{
		record("submit_result", `{"success":false,"error":"credit hold"}`),
		record("done", `{}`),
	})

	assert.NoError(t, client.SendMessage(context.Background(), "Confirmed. Please submit the PO.", nil))

	snap := client.Store().Snapshot()
	assert.False(t, snap.POSubmitted)
	result, ok := snap.Messages[len(snap.Messages)-1].Payload.(*domain.SubmitResult)
	if assert.True(t, ok, "expected submit result payload") {
		assert.Equal(t, "credit hold", result.Error)
	}
}

func TestErrorEventDoesNotAbortStream(t *testing.T) {
	client, _ := newTestClient(t, []string{
		record("error", `{"message":"item lookup degraded"}`),
		record("token", `{"content":"Continuing anyway"}`),
		record("done", `{}`),
	})

	err := client.SendMessage(context.Background(), "hello", nil)
	assert.NoError(t, err)

	snap := client.Store().Snapshot()
	assert.Equal(t, "item lookup degraded", snap.Err)
	assert.Equal(t, "Continuing anyway", snap.Messages[len(snap.Messages)-1].Content)
	// The draft survives a backend-reported error.
	assert.False(t, snap.Streaming)
}

func TestMalformedPayloadSkippedNotFatal(t *testing.T) {
	client, _ := newTestClient(t, []string{
		record("token", `{not json`),
		record("token", `{"content":"still here"}`),
		record("done", `{}`),
	})

	err := client.SendMessage(context.Background(), "hello", nil)
	assert.NoError(t, err)

	snap := client.Store().Snapshot()
	assert.Contains(t, snap.Err, "malformed token event")
	assert.Equal(t, "still here", snap.Messages[len(snap.Messages)-1].Content)
}

func TestUnknownEventKindIgnored(t *testing.T) {
	client, _ := newTestClient(t, []string{
		record("typing_indicator", `{"state":"on"}`),
		record("token", `{"content":"ok"}`),
		record("done", `{}`),
	})

	assert.NoError(t, client.SendMessage(context.Background(), "hello", nil))

	snap := client.Store().Snapshot()
	assert.Empty(t, snap.Err)
	assert.Equal(t, "ok", snap.Messages[len(snap.Messages)-1].Content)
}

func TestTransportErrorSurfacedAndInFlightCleared(t *testing.T) {
	httpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	t.Cleanup(httpSrv.Close)

	store := session.NewStore(nil)
	client := chat.New(agentclient.NewClient(httpSrv.URL, 5*time.Second), store, nil, nil)

	err := client.SendMessage(context.Background(), "hello", nil)
	assert.Error(t, err)

	snap := store.Snapshot()
	assert.False(t, snap.Streaming)
	assert.Contains(t, snap.Err, "503")
	// The optimistic user message survives the failure.
	if assert.Len(t, snap.Messages, 1) {
		assert.Equal(t, domain.RoleUser, snap.Messages[0].Role)
	}
}

func TestRespondToClarificationSynthesizesMessage(t *testing.T) {
	clarScript := []string{
		record("clarification", `{"question":"Which terms?","field":"terms","options":[{"label":"Net 30","value":"trm_001","isFigureItOut":false},{"label":"Figure it out","value":"figure_it_out","isFigureItOut":true}]}`),
		record("done", `{}`),
	}
	ackScript := []string{
		record("token", `{"content":"Net 30 it is."}`),
		record("done", `{}`),
	}
	client, srv := newTestClient(t, clarScript, ackScript)

	assert.NoError(t, client.SendMessage(context.Background(), "order steel", nil))

	snap := client.Store().Snapshot()
	var clarID string
	for _, m := range snap.Messages {
		if _, ok := m.Payload.(*domain.Clarification); ok {
			clarID = m.ID
		}
	}
	assert.NotEmpty(t, clarID)

	assert.NoError(t, client.RespondToClarification(context.Background(), clarID, "terms", "trm_001"))

	assert.Equal(t, "Selected trm_001 for terms", srv.requests[1].Message)
	snap = client.Store().Snapshot()
	for _, m := range snap.Messages {
		if clar, ok := m.Payload.(*domain.Clarification); ok {
			assert.True(t, clar.Answered)
			assert.Equal(t, "trm_001", clar.SelectedValue)
		}
	}
}

func TestFigureItOutUsesSentinel(t *testing.T) {
	clarScript := []string{
		record("clarification", `{"question":"Which terms?","field":"terms","options":[]}`),
		record("done", `{}`),
	}
	ackScript := []string{record("done", `{}`)}
	client, srv := newTestClient(t, clarScript, ackScript)

	assert.NoError(t, client.SendMessage(context.Background(), "order steel", nil))
	clarID := client.Store().Snapshot().Messages[1].ID

	assert.NoError(t, client.FigureItOut(context.Background(), clarID, "terms"))

	assert.Equal(t, "Figure it out for terms", srv.requests[1].Message)
	clar := client.Store().Snapshot().Messages[1].Payload.(*domain.Clarification)
	assert.Equal(t, domain.FigureItOutValue, clar.SelectedValue)
}

func TestResetRefusedWhileStreaming(t *testing.T) {
	store := session.NewStore(nil)
	client := chat.New(nil, store, nil, nil)

	store.SetStreaming(true)
	assert.ErrorIs(t, client.Reset(), chat.ErrStreamInFlight)

	store.SetStreaming(false)
	store.SetSessionID("s1")
	assert.NoError(t, client.Reset())
	assert.Empty(t, store.Snapshot().SessionID)
}
