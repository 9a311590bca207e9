package server

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/prodkit/assetq-go/internal/agent"
	"github.com/prodkit/assetq-go/internal/store"
)

// ---------------------------------------------------------------------------
// Fake agent for chat handler tests
// ---------------------------------------------------------------------------

// fakeAgent implements the chatAgent interface for tests. It records the
// request it received and returns configurable values.
type fakeAgent struct {
	// out is returned on each Run call.
	out *agent.Outcome
	// err is returned as the error value.
	err error
	// lastReq captures the most recent request for assertions.
	lastReq agent.Request
}

func (f *fakeAgent) Run(_ context.Context, req agent.Request) (*agent.Outcome, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	if f.out != nil {
		return f.out, nil
	}
	return &agent.Outcome{FinalAnswer: "ok", QueryResults: []map[string]any{}}, nil
}

// fakeHistory is an in-memory ConversationStore.
type fakeHistory struct {
	messages map[string][]store.Message
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{messages: make(map[string][]store.Message)}
}

func (f *fakeHistory) Append(_ context.Context, conversationID string, role store.Role, content, sqlUsed string) error {
	f.messages[conversationID] = append(f.messages[conversationID],
		store.Message{Role: role, Content: content, SQL: sqlUsed})
	return nil
}

func (f *fakeHistory) Recent(_ context.Context, conversationID string, n int) ([]store.Message, error) {
	msgs := f.messages[conversationID]
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs, nil
}

func (f *fakeHistory) Close() error { return nil }

// newTestServer builds a minimal *Server backed by an isolated metrics
// registry so tests never touch prometheus.DefaultRegisterer.
func newTestServer() *Server {
	return newChatTestServer(&fakeAgent{})
}

// newChatTestServer builds a *Server wired with the given agent fake.
func newChatTestServer(a chatAgent) *Server {
	reg := prometheus.NewRegistry()
	return &Server{
		agent:   a,
		cfg:     &Config{ChatTimeout: time.Minute},
		log:     slog.Default(),
		metrics: newServerMetrics(reg),
	}
}

// ---------------------------------------------------------------------------
// POST /api/chat — validation error paths (no agent run needed)
// ---------------------------------------------------------------------------

func TestHandleChat_MissingMessage(t *testing.T) {
	t.Parallel()

	s := newChatTestServer(&fakeAgent{})
	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"conversation_id":"abc"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleChat_InvalidJSON(t *testing.T) {
	t.Parallel()

	s := newChatTestServer(&fakeAgent{})
	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`not-json`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleChat_MalformedImage(t *testing.T) {
	t.Parallel()

	s := newChatTestServer(&fakeAgent{})
	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"message":"find this","image":"not!!base64"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /api/chat — happy path (fake agent, SSE response)
// ---------------------------------------------------------------------------

// TestHandleChat_Success verifies that a valid request produces an SSE stream
// with start, answer, metadata, and done events. httptest.ResponseRecorder
// implements http.Flusher so the handler's flusher check passes without a
// real connection.
func TestHandleChat_Success(t *testing.T) {
	t.Parallel()

	a := &fakeAgent{out: &agent.Outcome{
		FinalAnswer:  "There are 4 blend files in the charge show.",
		QueryResults: []map[string]any{{"count": int64(4)}},
		History: []agent.SQLAttempt{{
			Attempt:      1,
			SQL:          "SELECT COUNT(*) FROM files WHERE file_type = 'blend'",
			Satisfactory: true,
		}},
	}}
	s := newChatTestServer(a)

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"message":"how many blend files?","conversation_id":"conv-1"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	body := w.Body.String()

	if !strings.Contains(body, "event: start") {
		t.Errorf("expected SSE start event in body, got: %s", body)
	}
	if !strings.Contains(body, "data: conv-1") {
		t.Errorf("expected conversation ID in start event, got: %s", body)
	}
	if !strings.Contains(body, "event: answer") {
		t.Errorf("expected SSE answer event in body, got: %s", body)
	}
	if !strings.Contains(body, "There are 4 blend files in the charge show.") {
		t.Errorf("expected final answer in body, got: %s", body)
	}
	if !strings.Contains(body, "event: metadata") {
		t.Errorf("expected SSE metadata event in body, got: %s", body)
	}
	if !strings.Contains(body, `\"attempts\":1`) && !strings.Contains(body, `"attempts":1`) {
		t.Errorf("expected attempt count in metadata, got: %s", body)
	}
	if !strings.Contains(body, "event: results") {
		t.Errorf("expected SSE results event in body, got: %s", body)
	}
	if !strings.Contains(body, "event: done") {
		t.Errorf("expected SSE done event in body, got: %s", body)
	}
	if !strings.Contains(body, "[DONE]") {
		t.Errorf("expected [DONE] sentinel in body, got: %s", body)
	}
}

// TestHandleChat_GeneratesConversationID verifies that a request without a
// conversation ID gets a fresh one announced in the start event.
func TestHandleChat_GeneratesConversationID(t *testing.T) {
	t.Parallel()

	s := newChatTestServer(&fakeAgent{})
	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"message":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	body := w.Body.String()
	start := strings.Index(body, "event: start\ndata: ")
	if start < 0 {
		t.Fatalf("no start event in body: %s", body)
	}
	id := body[start+len("event: start\ndata: "):]
	id = id[:strings.Index(id, "\n")]
	if len(id) != 16 {
		t.Errorf("generated conversation ID = %q, want 16 hex chars", id)
	}
}

// TestHandleChat_AgentError verifies that when the agent returns an error,
// the SSE stream includes an "error" event and the response is still 200
// (SSE errors are delivered in-band, not via HTTP status).
func TestHandleChat_AgentError(t *testing.T) {
	t.Parallel()

	a := &fakeAgent{err: fmt.Errorf("LLM unavailable")}
	s := newChatTestServer(a)

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"message":"count files"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "event: error") {
		t.Errorf("expected error event in body, got: %s", body)
	}
	if !strings.Contains(body, "LLM unavailable") {
		t.Errorf("expected error message in body, got: %s", body)
	}
	if strings.Contains(body, "event: done") {
		t.Errorf("error stream must not contain a done event, got: %s", body)
	}
}

// TestHandleChat_ImageDecodedForAgent verifies the base64 image payload is
// decoded and handed to the agent as raw bytes.
func TestHandleChat_ImageDecodedForAgent(t *testing.T) {
	t.Parallel()

	a := &fakeAgent{}
	s := newChatTestServer(a)

	raw := []byte{0x89, 0x50, 0x4e, 0x47}
	body := fmt.Sprintf(`{"message":"find images like this","image":%q}`,
		base64.StdEncoding.EncodeToString(raw))

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if string(a.lastReq.Image) != string(raw) {
		t.Errorf("agent image = %v, want %v", a.lastReq.Image, raw)
	}
}

// TestHandleChat_HistoryRoundTrip verifies that prior turns are loaded into
// the agent request and the new turn is persisted with its SQL.
func TestHandleChat_HistoryRoundTrip(t *testing.T) {
	t.Parallel()

	history := newFakeHistory()
	_ = history.Append(context.Background(), "conv-2", store.RoleUser, "how many videos?", "")
	_ = history.Append(context.Background(), "conv-2", store.RoleAssistant, "There are 12 videos.",
		"SELECT COUNT(*) FROM files WHERE file_type = 'video'")

	a := &fakeAgent{out: &agent.Outcome{
		FinalAnswer:  "There are 3 images.",
		QueryResults: []map[string]any{{"count": int64(3)}},
		History: []agent.SQLAttempt{{
			Attempt: 1,
			SQL:     "SELECT COUNT(*) FROM files WHERE file_type = 'image'",
		}},
	}}
	s := newChatTestServer(a)
	s.history = history

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"message":"and images?","conversation_id":"conv-2"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if len(a.lastReq.History) != 2 {
		t.Fatalf("agent history length = %d, want 2", len(a.lastReq.History))
	}
	if a.lastReq.History[1].SQL == "" {
		t.Error("assistant turn should carry its SQL into the agent history")
	}

	msgs := history.messages["conv-2"]
	if len(msgs) != 4 {
		t.Fatalf("persisted messages = %d, want 4", len(msgs))
	}
	last := msgs[3]
	if last.Role != store.RoleAssistant || last.Content != "There are 3 images." {
		t.Errorf("last persisted message = %+v", last)
	}
	if last.SQL != "SELECT COUNT(*) FROM files WHERE file_type = 'image'" {
		t.Errorf("persisted SQL = %q", last.SQL)
	}
}
