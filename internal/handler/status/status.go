package status

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/avress/switchyard/internal/service/hub"
	"github.com/avress/switchyard/pkg/utils"
)

// Handler exposes the hub's aggregate counters and room snapshot. It
// only ever reads; nothing here mutates routing state.
type Handler struct {
	hub *hub.Hub
}

// New builds the status handler.
func New(h *hub.Hub) *Handler {
	return &Handler{hub: h}
}

// RegisterRoutes mounts the read-only observation endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/status", h.handleStatus)
	r.Get("/rooms", h.handleRooms)
	r.Get("/status/stream", h.handleStatusStream)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.hub.Snapshot())
}

func (h *Handler) handleRooms(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"rooms": h.hub.Rooms(),
	})
}

// handleStatusStream pushes counter snapshots over SSE until the client
// goes away.
func (h *Handler) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)

	ctx := r.Context()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	utils.SendSSEChunk(w, flusher, h.hub.Snapshot())

	for {
		select {
		case <-ctx.Done():
			log.Printf("[status] closing stream for %s", r.RemoteAddr)
			return
		case <-ticker.C:
			utils.SendSSEChunk(w, flusher, h.hub.Snapshot())
		}
	}
}
