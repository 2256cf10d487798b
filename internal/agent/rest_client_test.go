package agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/dietnavigator/nutrition-chat/internal/event"
	"google.golang.org/genai"
)

const testEngine = "projects/p/locations/us-central1/reasoningEngines/42"

type recordedCall struct {
	path string
	body queryRequest
}

type fakeEngine struct {
	mu     sync.Mutex
	calls  []recordedCall
	stream string
	status int
}

func (f *fakeEngine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body queryRequest
	raw, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(raw, &body)

	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{path: r.URL.Path, body: body})
	f.mu.Unlock()

	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = io.WriteString(w, `{"error":{"message":"permission denied"}}`)
		return
	}

	switch {
	case strings.HasSuffix(r.URL.Path, ":query"):
		_, _ = io.WriteString(w, `{"output":{"id":"sess-123","user_id":"web-1"}}`)
	case strings.HasSuffix(r.URL.Path, ":streamQuery"):
		if r.URL.Query().Get("alt") != "sse" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, f.stream)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestRESTClient(t *testing.T, engine *fakeEngine) *RESTClient {
	t.Helper()
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	c, err := NewRESTClient(context.Background(), RESTConfig{
		EngineName: testEngine,
		BaseURL:    srv.URL + "/v1",
		HTTPClient: srv.Client(),
	}, nil)
	if err != nil {
		t.Fatalf("NewRESTClient failed: %v", err)
	}
	return c
}

func TestRESTClientCreateSession(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	c := newTestRESTClient(t, engine)

	id, err := c.CreateSession(context.Background(), "web-1")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if id != "sess-123" {
		t.Fatalf("expected sess-123, got %q", id)
	}

	call := engine.calls[0]
	if call.path != "/v1/"+testEngine+":query" {
		t.Fatalf("unexpected path %q", call.path)
	}
	if call.body.ClassMethod != "async_create_session" || call.body.Input["user_id"] != "web-1" {
		t.Fatalf("unexpected body %+v", call.body)
	}
}

func TestRESTClientStreamQuery(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{stream: strings.Join([]string{
		`{"content":{"parts":[{"function_call":{"name":"transfer_to_agent"}}]},"author":"main_agent"}`,
		``,
		`data: {"delta_text":"Oat"}`,
		`{"content":{"parts":[{"text":"Oats are high in fiber."}]},"author":"main_agent"}`,
	}, "\n")}
	c := newTestRESTClient(t, engine)

	var got []event.Event
	for ev, err := range c.StreamQuery(context.Background(), Query{UserID: "web-1", SessionID: "sess-123", Message: TextMessage("oats?")}) {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		got = append(got, ev)
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[0].Kind != event.KindEmpty || got[1].Kind != event.KindDelta || got[2].Text != "Oats are high in fiber." {
		t.Fatalf("unexpected events %+v", got)
	}

	call := engine.calls[0]
	if call.body.ClassMethod != "async_stream_query" {
		t.Fatalf("unexpected class method %q", call.body.ClassMethod)
	}
	if call.body.Input["session_id"] != "sess-123" || call.body.Input["message"] != "oats?" {
		t.Fatalf("unexpected input %+v", call.body.Input)
	}
}

func TestRESTClientSendsContentMessage(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{stream: `{"output":"ok"}`}
	c := newTestRESTClient(t, engine)

	msg := ContentMessage(&genai.Content{Role: "user", Parts: []*genai.Part{
		{FileData: &genai.FileData{FileURI: "gs://b/x.png", MIMEType: "image/png"}},
		{Text: "what is this"},
	}})
	for _, err := range c.StreamQuery(context.Background(), Query{UserID: "u", SessionID: "s", Message: msg}) {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
	}

	m, ok := engine.calls[0].body.Input["message"].(map[string]any)
	if !ok {
		t.Fatalf("expected object message, got %T", engine.calls[0].body.Input["message"])
	}
	parts, _ := m["parts"].([]any)
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %v", m["parts"])
	}
	if _, ok := parts[0].(map[string]any)["fileData"]; !ok {
		t.Fatalf("expected file part first, got %v", parts[0])
	}
}

func TestRESTClientErrorStatus(t *testing.T) {
	t.Parallel()

	c := newTestRESTClient(t, &fakeEngine{status: http.StatusForbidden})

	_, err := c.CreateSession(context.Background(), "web-1")
	if err == nil || !strings.Contains(err.Error(), "permission denied") {
		t.Fatalf("expected status error with message, got %v", err)
	}

	for _, err := range c.StreamQuery(context.Background(), Query{UserID: "u", SessionID: "s", Message: TextMessage("x")}) {
		if err == nil || !strings.Contains(err.Error(), "403") {
			t.Fatalf("expected 403 stream error, got %v", err)
		}
	}
}

func TestNewRESTClientRequiresEngine(t *testing.T) {
	t.Parallel()

	if _, err := NewRESTClient(context.Background(), RESTConfig{HTTPClient: http.DefaultClient}, nil); err == nil {
		t.Fatal("expected error for missing engine name")
	}
}
