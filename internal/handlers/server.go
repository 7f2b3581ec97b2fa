// internal/handlers/server.go
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jason-s-yu/rally/internal/auth"
	"github.com/jason-s-yu/rally/internal/coordinator"
	"github.com/jason-s-yu/rally/internal/live"
	"github.com/jason-s-yu/rally/internal/middleware"
	"github.com/jason-s-yu/rally/internal/reservation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server exposes the reservation and scheduling services over HTTP.
type Server struct {
	Reservations *reservation.Service
	Coordinator  *coordinator.Service
	Auth         *auth.Authenticator
	Hub          *live.Hub
	Gatherer     prometheus.Gatherer
	Logger       *logrus.Logger

	// AllowedOrigins restricts CORS and websocket origins; empty allows any.
	AllowedOrigins []string
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.LogMiddleware(s.Logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins(),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if s.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(s.requireUser)

		r.Post("/sessions", s.createSession)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Post("/join", s.joinSession)
			r.Post("/invite", s.invitePlayer)
			r.Post("/leave", s.leaveSession)
			r.Post("/cancel", s.cancelSession)
			r.Post("/start", s.startEvent)
			r.Get("/schedule", s.getSchedule)
			r.Get("/standings", s.getStandings)
			r.Get("/standings/ws", s.standingsWS)
		})
		r.Post("/matches/{matchID}/score", s.submitScore)
	})
	return r
}

func (s *Server) origins() []string {
	if len(s.AllowedOrigins) == 0 {
		return []string{"https://*", "http://*"}
	}
	return s.AllowedOrigins
}
