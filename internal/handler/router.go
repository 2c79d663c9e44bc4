package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/avress/switchyard/internal/handler/status"
	"github.com/avress/switchyard/internal/handler/ws"
	middlewarePkg "github.com/avress/switchyard/internal/middleware"
	"github.com/avress/switchyard/internal/service/admission"
	"github.com/avress/switchyard/internal/service/hub"
	"github.com/avress/switchyard/pkg/utils"
)

// NewRouter wires HTTP routes to the routing core.
func NewRouter(h *hub.Hub, gate *admission.Controller) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	wsHandler := ws.New(h, gate)
	wsHandler.RegisterRoutes(r)

	statusHandler := status.New(h)
	r.Route("/api", func(api chi.Router) {
		statusHandler.RegisterRoutes(api)
	})

	return r
}
