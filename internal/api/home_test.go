package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dietnavigator/nutrition-chat/internal/agentdef"
	"github.com/dietnavigator/nutrition-chat/internal/event"
	"github.com/dietnavigator/nutrition-chat/internal/session"
	"github.com/go-chi/chi/v5"
)

func TestHomeResetsSession(t *testing.T) {
	t.Parallel()

	rt := &stubRuntime{events: []event.Event{{Kind: event.KindFinal, Text: "ok"}}}
	svc := newService(rt, nil)
	store := session.NewMemoryStore()

	r := chi.NewRouter()
	r.Use(session.Middleware(session.MemoryProvider{Store: store}))
	NewChatHandler(svc, 0).RegisterRoutes(r)
	NewHomeHandler(svc, []byte("<html>chat</html>")).RegisterRoutes(r)

	postJSON(r, `{"prompt":"a"}`)
	postJSON(r, `{"prompt":"b"}`)
	if rt.sessions != 1 {
		t.Fatalf("expected one session before reload, got %d", rt.sessions)
	}
	userID, _, _ := store.Get(context.Background(), session.UserIDKey)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "chat") {
		t.Fatalf("unexpected page response %d %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if _, ok, _ := store.Get(context.Background(), session.SessionIDKey); ok {
		t.Fatal("expected session id to be cleared on page load")
	}

	postJSON(r, `{"prompt":"c"}`)
	if rt.sessions != 2 {
		t.Fatalf("expected fresh session after reload, got %d", rt.sessions)
	}
	if again, _, _ := store.Get(context.Background(), session.UserIDKey); again != userID {
		t.Fatalf("user id changed across reload: %q -> %q", userID, again)
	}
}

func TestAgentsHandler(t *testing.T) {
	t.Parallel()

	defs, err := agentdef.Catalog(agentdef.Settings{ProjectID: "p", DatasetName: "d"})
	if err != nil {
		t.Fatalf("Catalog failed: %v", err)
	}
	r := chi.NewRouter()
	NewAgentsHandler(defs).RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/agents", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var list struct {
		Agents []struct {
			Name        string   `json:"name"`
			SubAgents   []string `json:"sub_agents"`
			Instruction string   `json:"instruction"`
		} `json:"agents"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Agents) != len(defs) || list.Agents[0].Name != agentdef.RouterName {
		t.Fatalf("unexpected catalog %+v", list.Agents)
	}
	if list.Agents[0].Instruction != "" {
		t.Fatal("instructions must not be exposed")
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/agents/"+agentdef.AllergenName, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for known agent, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/agents/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown agent, got %d", rec.Code)
	}
}
