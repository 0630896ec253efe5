package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-engine/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	identitiesHandler := handlers.NewIdentitiesHandler(s.gallery)
	recognizeHandler := handlers.NewRecognizeHandler(s.gallery, s.matcher, s.log)

	s.router.Get("/api/v1/health", identitiesHandler.Health)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/identities", identitiesHandler.List)
		r.Post("/recognize", recognizeHandler.Recognize)
		r.Post("/reload", identitiesHandler.Reload)
	})
}
