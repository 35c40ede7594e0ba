package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/leeyeon3724/civic-archive-api/internal/server/handlers"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	health := s.healthRoutes()
	s.router.Get("/health", health.aggregate)
	s.router.Get("/health/live", health.live)
	s.router.Get("/health/ready", health.ready)
	s.router.Get("/health/startup", health.startup)

	s.router.Get("/version", handlers.VersionHandler)

	s.router.Method(http.MethodGet, "/metrics", MetricsHandler)

	s.router.Route("/api", func(r chi.Router) {
		if s.chain != nil {
			r.Use(s.chain.Handler)
		}
		r.Post("/echo", handlers.EchoHandler)
		r.Get("/whoami", handlers.WhoAmIHandler)
	})
}

type healthRoutes struct {
	aggregate, live, ready, startup http.HandlerFunc
}

// healthRoutes binds probes to the server's manager, or to the global
// manager when none was supplied.
func (s *Server) healthRoutes() healthRoutes {
	if s.health == nil {
		return healthRoutes{
			aggregate: handlers.HealthHandler,
			live:      handlers.LivenessHandler,
			ready:     handlers.ReadinessHandler,
			startup:   handlers.StartupHandler,
		}
	}
	return healthRoutes{
		aggregate: s.health.HealthHandler,
		live:      s.health.LivenessHandler,
		ready:     s.health.ReadinessHandler,
		startup:   s.health.StartupHandler,
	}
}
