package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AltairaLabs/scenebridge-mcp/internal/config"
	"github.com/AltairaLabs/scenebridge-mcp/internal/metrics"
	"github.com/AltairaLabs/scenebridge-mcp/internal/protocol"
	"github.com/AltairaLabs/scenebridge-mcp/internal/session"
)

const testToken = "s3cret-token-0123456789"

type flagState struct{ rejecting atomic.Bool }

func (f *flagState) Rejecting() bool { return f.rejecting.Load() }

type fixture struct {
	server   *Server
	sessions *session.Manager
	state    *flagState
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.RateLimit.Enabled = false
	if mutate != nil {
		mutate(&cfg)
	}

	d := protocol.NewDispatcher(nil)
	d.Register("echo", func(_ context.Context, params json.RawMessage) (any, error) {
		var v map[string]any
		_ = json.Unmarshal(params, &v)
		return v, nil
	})
	d.Register("notify", func(context.Context, json.RawMessage) (any, error) {
		return nil, nil
	})

	sessions := session.NewManager(cfg.Sessions.QueueSize, cfg.Sessions.IdleTimeout, nil)
	state := &flagState{}
	s := New(Options{
		Config:      cfg,
		Dispatcher:  d,
		Sessions:    sessions,
		Metrics:     metrics.NewCollector(),
		State:       state,
		PendingJobs: func() int { return 2 },
		Counts:      func() (int, int, int) { return 6, 3, 2 },
	})
	return &fixture{server: s, sessions: sessions, state: state}
}

func (f *fixture) do(method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func errorCodeOf(t *testing.T, rec *httptest.ResponseRecorder) int {
	t.Helper()
	e, ok := decodeEnvelope(t, rec)["error"].(map[string]any)
	if !ok {
		t.Fatalf("Expected error envelope, got %s", rec.Body.String())
	}
	return int(e["code"].(float64))
}

func TestRPCRequest(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodPost, PathHTTP, `{"jsonrpc":"2.0","id":7,"method":"echo","params":{"a":1}}`, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := decodeEnvelope(t, rec)
	if body["id"].(float64) != 7 {
		t.Errorf("Expected id 7, got %v", body["id"])
	}
	if body["result"].(map[string]any)["a"].(float64) != 1 {
		t.Errorf("Unexpected result %v", body["result"])
	}
	if rec.Header().Get(HeaderRequestID) == "" {
		t.Errorf("Expected a generated request id")
	}
}

func TestRPCRequestIDEchoed(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodPost, PathHTTP, `{"jsonrpc":"2.0","id":1,"method":"echo"}`, map[string]string{HeaderRequestID: "abc"})
	if got := rec.Header().Get(HeaderRequestID); got != "abc" {
		t.Errorf("Expected request id to be echoed, got %q", got)
	}
}

func TestRPCNotificationIsNoContent(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodPost, PathHTTP, `{"jsonrpc":"2.0","method":"notify"}`, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("Expected empty body, got %q", rec.Body.String())
	}
}

func TestRPCErrors(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Server.MaxBodyBytes = 64 })

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   int
	}{
		{"malformed", `{"jsonrpc":`, http.StatusBadRequest, protocol.CodeParseError},
		{"empty", ``, http.StatusBadRequest, protocol.CodeParseError},
		{"missing method", `{"jsonrpc":"2.0","id":1}`, http.StatusOK, protocol.CodeInvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","id":1,"method":"nope"}`, http.StatusOK, protocol.CodeMethodNotFound},
		{"batch", `[{"jsonrpc":"2.0","id":1,"method":"echo"}]`, http.StatusOK, protocol.CodeInvalidRequest},
		{"too large", `{"jsonrpc":"2.0","id":1,"method":"echo","params":{"x":"` + strings.Repeat("y", 100) + `"}}`, http.StatusRequestEntityTooLarge, protocol.CodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, PathHTTP, tt.body, nil)
			if rec.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if code := errorCodeOf(t, rec); code != tt.wantCode {
				t.Errorf("Expected code %d, got %d", tt.wantCode, code)
			}
		})
	}
}

func TestRPCWrongMethod(t *testing.T) {
	f := newFixture(t, nil)
	if rec := f.do(http.MethodGet, PathHTTP, "", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestAuth(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.Auth.Required = true
		c.Auth.Token = testToken
	})
	body := `{"jsonrpc":"2.0","id":1,"method":"echo"}`

	rec := f.do(http.MethodPost, PathHTTP, body, nil)
	if rec.Code != http.StatusUnauthorized || errorCodeOf(t, rec) != protocol.CodeUnauthorized {
		t.Errorf("Expected 401/-32001 without token, got %d %s", rec.Code, rec.Body.String())
	}

	rec = f.do(http.MethodPost, PathHTTP, body, map[string]string{"Authorization": "Bearer wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for wrong token, got %d", rec.Code)
	}

	rec = f.do(http.MethodPost, PathHTTP, body, map[string]string{"Authorization": "bearer " + testToken})
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 with token, got %d", rec.Code)
	}

	rec = f.do(http.MethodPost, PathHTTP+"?token="+testToken, body, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected query token to be refused outside the stream route, got %d", rec.Code)
	}

	if rec := f.do(http.MethodGet, PathHealth, "", nil); rec.Code != http.StatusOK {
		t.Errorf("Expected health to skip auth, got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, PathMetrics, "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected metrics to require auth, got %d", rec.Code)
	}
}

func TestQueryTokenAllowedOnlyOnLoopback(t *testing.T) {
	local := newFixture(t, func(c *config.Config) {
		c.Auth.Required = true
		c.Auth.Token = testToken
	})
	req := httptest.NewRequest(http.MethodGet, PathSSE+"?token="+testToken, nil)
	if !local.server.queryTokenAllowed(req) {
		t.Errorf("Expected query token on loopback stream open")
	}

	network := newFixture(t, func(c *config.Config) {
		c.Server.Host = "0.0.0.0"
		c.Auth.Required = true
		c.Auth.Token = testToken
	})
	rec := network.do(http.MethodGet, PathSSE+"?token="+testToken, "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 on network bind, got %d", rec.Code)
	}
	msg := decodeEnvelope(t, rec)["error"].(map[string]any)["message"].(string)
	if msg != config.MsgQueryTokenRejected {
		t.Errorf("Expected query-token rejection message, got %q", msg)
	}
	if network.sessions.Count() != 0 {
		t.Errorf("Expected no session to be opened")
	}
}

func TestShutdownGate(t *testing.T) {
	f := newFixture(t, nil)
	f.state.rejecting.Store(true)

	rec := f.do(http.MethodPost, PathHTTP, `{"jsonrpc":"2.0","id":1,"method":"echo"}`, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "5" {
		t.Errorf("Expected Retry-After 5, got %q", got)
	}
	if code := errorCodeOf(t, rec); code != protocol.CodeServerShuttingDown {
		t.Errorf("Expected -32000, got %d", code)
	}

	rec = f.do(http.MethodGet, PathHealth, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected health during shutdown, got %d", rec.Code)
	}
	if status := decodeEnvelope(t, rec)["status"]; status != StatusShuttingDown {
		t.Errorf("Expected shutting_down status, got %v", status)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	f.sessions.Open()
	f.do(http.MethodPost, PathHTTP, `{"jsonrpc":"2.0","id":1,"method":"echo"}`, nil)

	var h HealthResponse
	rec := f.do(http.MethodGet, PathHealth, "", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &h); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if h.Status != StatusHealthy {
		t.Errorf("Expected healthy, got %s", h.Status)
	}
	if h.Connections.ActiveSSESessions != 1 {
		t.Errorf("Expected 1 session, got %d", h.Connections.ActiveSSESessions)
	}
	if h.Statistics.TotalRequests != 1 || h.Statistics.PendingJobs != 2 {
		t.Errorf("Unexpected statistics %+v", h.Statistics)
	}
	if h.Server.ToolsCount != 6 || h.Server.ResourcesCount != 3 || h.Server.PromptsCount != 2 {
		t.Errorf("Unexpected server info %+v", h.Server)
	}
}

func TestCORS(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, PathHTTP, `{"jsonrpc":"2.0","id":1,"method":"echo"}`, map[string]string{"Origin": "https://evil.example"})
	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected foreign origin to be refused, got %d", rec.Code)
	}

	rec = f.do(http.MethodOptions, PathHTTP, "", map[string]string{"Origin": "http://localhost:3000"})
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected preflight 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Expected origin echo, got %q", got)
	}

	network := newFixture(t, func(c *config.Config) { c.Server.Host = "0.0.0.0" })
	rec = network.do(http.MethodOptions, PathHTTP, "", map[string]string{"Origin": "https://app.example"})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("Expected any origin on network bind, got %q", got)
	}
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.RateLimit = config.RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 1}
	})
	body := `{"jsonrpc":"2.0","id":1,"method":"echo"}`

	if rec := f.do(http.MethodPost, PathHTTP, body, nil); rec.Code != http.StatusOK {
		t.Fatalf("Expected first request to pass, got %d", rec.Code)
	}
	rec := f.do(http.MethodPost, PathHTTP, body, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", rec.Code)
	}
	if code := errorCodeOf(t, rec); code != protocol.CodeRateLimited {
		t.Errorf("Expected -32029, got %d", code)
	}
	if rec := f.do(http.MethodGet, PathHealth, "", nil); rec.Code != http.StatusOK {
		t.Errorf("Expected health to bypass the limiter, got %d", rec.Code)
	}
}

func TestSideChannelWithoutSessionIsSynchronous(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodPost, PathSSE, `{"jsonrpc":"2.0","id":3,"method":"echo"}`, map[string]string{HeaderSessionID: "unknown"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected synchronous 200, got %d", rec.Code)
	}
	if decodeEnvelope(t, rec)["id"].(float64) != 3 {
		t.Errorf("Expected response body")
	}
}

func TestSideChannelQueuesResponse(t *testing.T) {
	f := newFixture(t, nil)
	q := f.sessions.Open()

	rec := f.do(http.MethodPost, PathSSEMessages+"?sessionId="+q.ID(), `{"jsonrpc":"2.0","id":9,"method":"echo"}`, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", rec.Code)
	}
	if !q.Wait(context.Background(), 2*time.Second) && q.Len() == 0 {
		t.Fatal("Expected a queued response")
	}
	msg, ok := q.Pop()
	if !ok {
		t.Fatal("Expected a message")
	}
	if msg.Event != EventMessage || !strings.Contains(string(msg.Data), `"id":9`) {
		t.Errorf("Unexpected message %s %s", msg.Event, msg.Data)
	}
}

func TestSideChannelAfterCancel(t *testing.T) {
	f := newFixture(t, nil)
	q := f.sessions.Open()
	f.server.CancelBackground(10 * time.Millisecond)

	rec := f.do(http.MethodPost, PathSSE, `{"jsonrpc":"2.0","id":1,"method":"echo"}`, map[string]string{HeaderSessionID: q.ID()})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 once background work is cancelled, got %d", rec.Code)
	}
}

func TestFlushQueueCoalescesDrops(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Sessions.QueueSize = 2 })
	q := f.sessions.Open()
	for i := 0; i < 5; i++ {
		f.sessions.Push(q.ID(), session.Message{Data: []byte{byte('a' + i)}})
	}

	var b strings.Builder
	if err := f.server.flushQueue(&b, q); err != nil {
		t.Fatalf("flushQueue failed: %v", err)
	}
	out := b.String()
	if strings.Count(out, "event: warning") != 1 || !strings.Contains(out, `"count":3`) {
		t.Errorf("Expected one warning with count 3, got %q", out)
	}
	if !strings.Contains(out, "event: message\ndata: d\n\nevent: message\ndata: e\n\n") {
		t.Errorf("Expected the two newest messages in order, got %q", out)
	}

	b.Reset()
	_ = f.server.flushQueue(&b, q)
	if b.Len() != 0 {
		t.Errorf("Expected nothing on second flush, got %q", b.String())
	}
}

func TestStreamEndToEnd(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Sessions.KeepaliveInterval = 50 * time.Millisecond })
	ts := httptest.NewServer(f.server)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+PathSSE, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Expected event stream, got %q", ct)
	}

	events := make(chan [2]string, 16)
	go func() {
		defer close(events)
		sc := bufio.NewScanner(resp.Body)
		var event string
		for sc.Scan() {
			line := sc.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				events <- [2]string{event, strings.TrimPrefix(line, "data: ")}
			case strings.HasPrefix(line, ": keepalive"):
				events <- [2]string{"keepalive", ""}
			}
		}
	}()

	next := func(want string) string {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					t.Fatalf("Stream ended waiting for %s", want)
				}
				if ev[0] == want {
					return ev[1]
				}
			case <-deadline:
				t.Fatalf("Timed out waiting for %s", want)
			}
		}
	}

	var hello struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal([]byte(next(EventSession)), &hello); err != nil || hello.SessionID == "" {
		t.Fatalf("Expected session event, got %v", err)
	}
	if endpoint := next(EventEndpoint); !strings.Contains(endpoint, hello.SessionID) {
		t.Errorf("Expected endpoint to carry the session id, got %q", endpoint)
	}
	next("keepalive")

	post, _ := http.NewRequest(http.MethodPost, ts.URL+PathSSE, strings.NewReader(`{"jsonrpc":"2.0","id":42,"method":"echo","params":{"k":"v"}}`))
	post.Header.Set(HeaderSessionID, hello.SessionID)
	postResp, err := http.DefaultClient.Do(post)
	if err != nil {
		t.Fatalf("Side-channel post failed: %v", err)
	}
	postResp.Body.Close()
	if postResp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", postResp.StatusCode)
	}

	msg := next(EventMessage)
	if !strings.Contains(msg, `"id":42`) || !strings.Contains(msg, `"k":"v"`) {
		t.Errorf("Unexpected streamed response %q", msg)
	}

	f.sessions.CloseAll()
	for range events {
	}
}
