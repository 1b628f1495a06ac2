package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciciliostudio/probe/internal/chat"
	"github.com/ciciliostudio/probe/internal/session"
)

// Capability stubs. The engine's behavior is covered in the chat package;
// here they only need to produce plausible turns.

type stubExtractor struct{}

func (stubExtractor) ExtractPage(_ context.Context, url string) (*chat.PageData, error) {
	return &chat.PageData{URL: url, Title: "Stub Page", HTML: "<html></html>", Text: "stub"}, nil
}

type stubGenerator struct{}

func (stubGenerator) GenerateTestCases(context.Context, chat.CaseRequest) ([]session.TestCase, error) {
	return []session.TestCase{{Title: "Page loads", TestType: session.TestFunctional}}, nil
}

func (stubGenerator) GenerateTestCode(context.Context, chat.CodeRequest) (*session.GeneratedCode, error) {
	return &session.GeneratedCode{Code: "def test(): pass", Filename: "test_page_loads.py", Status: session.CodeStatusGenerated}, nil
}

func (stubGenerator) RegenerateTestCode(context.Context, chat.FixRequest) (*session.GeneratedCode, error) {
	return &session.GeneratedCode{Code: "def test(): pass", Filename: "test_page_loads.py"}, nil
}

// slowExtractor holds the first action in flight long enough for a test to
// close the socket mid-turn.
type slowExtractor struct {
	delay time.Duration
}

func (e slowExtractor) ExtractPage(_ context.Context, url string) (*chat.PageData, error) {
	time.Sleep(e.delay)
	return &chat.PageData{URL: url, Title: "Slow Page", HTML: "<html></html>", Text: "slow"}, nil
}

type countingGenerator struct {
	stubGenerator
	caseCalls int32
}

func (g *countingGenerator) GenerateTestCases(ctx context.Context, req chat.CaseRequest) ([]session.TestCase, error) {
	atomic.AddInt32(&g.caseCalls, 1)
	return g.stubGenerator.GenerateTestCases(ctx, req)
}

type stubRunner struct{}

func (stubRunner) RunTest(context.Context, session.TestCase, *session.GeneratedCode) (*session.ExecutionResult, error) {
	return &session.ExecutionResult{Status: session.StatusSuccess, Duration: 0.1}, nil
}

type stubAnalyzer struct{}

func (stubAnalyzer) AnalyzeFailure(context.Context, session.TestCase, *session.GeneratedCode, *session.ExecutionResult) (*chat.FailureAnalysis, error) {
	return &chat.FailureAnalysis{Explanation: "stub", FixPriority: "low"}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, session.Store) {
	t.Helper()
	store := session.NewMemoryStore()
	retry := chat.NewRetryController(stubRunner{}, stubAnalyzer{}, stubGenerator{}, 3)
	executor := chat.NewExecutor(stubExtractor{}, stubGenerator{}, nil, retry)
	orchestrator := chat.NewOrchestrator(store, chat.NewPlanner(), executor)

	srv := New("127.0.0.1:0", orchestrator, store)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, store
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestChatEndpoint(t *testing.T) {
	ts, store := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/chat", chat.TurnInput{
		Message:   "Test https://example.com",
		SessionID: "http-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)

	assert.Equal(t, "http-1", body["session_id"])
	assert.NotEmpty(t, body["user_response"])
	assert.NotEmpty(t, body["actions"])
	assert.NotEmpty(t, body["events"])

	sess, ok := store.Get("http-1")
	require.True(t, ok)
	assert.Equal(t, "https://example.com", sess.CurrentURL)
}

func TestChatEndpointRejectsEmptyMessage(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/chat", chat.TurnInput{Message: ""})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatEndpointRejectsBadJSON(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/v1/chat", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessionEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/chat", chat.TurnInput{Message: "Test https://example.com", SessionID: "s-api"})
	resp.Body.Close()

	// List
	resp, err := http.Get(ts.URL + "/api/v1/sessions")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Len(t, body["sessions"], 1)

	// Get
	resp, err = http.Get(ts.URL + "/api/v1/sessions/s-api")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	summary := decodeBody(t, resp)
	assert.Equal(t, "s-api", summary["session_id"])
	assert.Equal(t, "https://example.com", summary["current_url"])

	// Get missing
	resp, err = http.Get(ts.URL + "/api/v1/sessions/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResetSessionEndpoint(t *testing.T) {
	ts, store := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/chat", chat.TurnInput{Message: "Test https://example.com", SessionID: "s-reset"})
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/sessions/s-reset/reset", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	summary := decodeBody(t, resp)
	assert.Empty(t, summary["current_url"])

	sess, ok := store.Get("s-reset")
	require.True(t, ok)
	assert.Empty(t, sess.CurrentURL)
	assert.NotEmpty(t, sess.Messages)
}

func TestDeleteSessionEndpoint(t *testing.T) {
	ts, store := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/chat", chat.TurnInput{Message: "hello", SessionID: "s-del"})
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/sessions/s-del", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, ok := store.Get("s-del")
	assert.False(t, ok)

	// Deleting again is a 404.
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocketChatStream(t *testing.T) {
	ts, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws/chat"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Initial connection frame.
	var frame map[string]interface{}
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "connection", frame["type"])

	require.NoError(t, conn.WriteJSON(map[string]string{
		"type":       "chat",
		"message":    "Test https://example.com",
		"session_id": "ws-1",
	}))

	// Progress events stream first, then the final response.
	sawEvent := false
	for {
		frame = map[string]interface{}{}
		require.NoError(t, conn.ReadJSON(&frame))
		if frame["type"] == "response" {
			break
		}
		sawEvent = true
	}
	assert.True(t, sawEvent)

	resp, ok := frame["response"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "ws-1", resp["session_id"])
	assert.NotEmpty(t, resp["user_response"])
}

func TestWebSocketDisconnectAbandonsRemainingActions(t *testing.T) {
	store := session.NewMemoryStore()
	gen := &countingGenerator{}
	retry := chat.NewRetryController(stubRunner{}, stubAnalyzer{}, gen, 3)
	executor := chat.NewExecutor(slowExtractor{delay: 400 * time.Millisecond}, gen, nil, retry)
	orchestrator := chat.NewOrchestrator(store, chat.NewPlanner(), executor)
	srv := New("127.0.0.1:0", orchestrator, store)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws/chat"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	var frame map[string]interface{}
	require.NoError(t, conn.ReadJSON(&frame)) // connection frame

	require.NoError(t, conn.WriteJSON(map[string]string{
		"type":       "chat",
		"message":    "Test https://example.com",
		"session_id": "ws-gone",
	}))

	// Close while page extraction is still in flight. The extraction
	// commits; the planned test case generation must not run.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, conn.Close())

	// The turn lock is held for the length of the turn, so acquiring it
	// waits for the in-flight turn to wind down.
	store.Acquire("ws-gone")
	store.Release("ws-gone")

	sess, ok := store.Get("ws-gone")
	require.True(t, ok)
	assert.Equal(t, "https://example.com", sess.CurrentURL)
	assert.Empty(t, sess.TestCases)
	assert.Zero(t, atomic.LoadInt32(&gen.caseCalls))
}

func TestWebSocketRejectsUnknownFrameType(t *testing.T) {
	ts, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws/chat"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var frame map[string]interface{}
	require.NoError(t, conn.ReadJSON(&frame)) // connection frame

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "error", frame["type"])
}
