package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/avress/switchyard/internal/service/hub"
)

func setupRouter() (*chi.Mux, *hub.Hub) {
	core := hub.New(hub.Options{})
	handler := New(core)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, core
}

func TestStatusCounters(t *testing.T) {
	r, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var stats hub.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if stats.Connections != 0 || stats.TotalConnections != 0 {
		t.Fatalf("fresh hub reported activity: %+v", stats)
	}
}

func TestRoomsSnapshot(t *testing.T) {
	r, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/rooms", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body struct {
		Rooms []json.RawMessage `json:"rooms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Rooms) != 0 {
		t.Fatalf("fresh hub has rooms: %d", len(body.Rooms))
	}
}
