package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pokerplan/planning-poker-backend/internal/config"
	"github.com/pokerplan/planning-poker-backend/internal/hub"
	"github.com/pokerplan/planning-poker-backend/internal/ws"
)

func SetupRoutes(h *hub.Hub, cfg config.Config, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Post("/rooms", CreateRoom(h, cfg, log))
		r.Get("/rooms/{roomId}", GetRoom(h))
	})
	r.Get("/ws", ws.Handler(h, log))
	r.Get("/healthz", Healthz)
	return r
}
