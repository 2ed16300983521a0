package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/campus-connect/internal/auth"
	"github.com/npezzotti/campus-connect/internal/config"
	"github.com/npezzotti/campus-connect/internal/database"
	"github.com/npezzotti/campus-connect/internal/server"
	"github.com/npezzotti/campus-connect/internal/types"
)

type CampusApp struct {
	log            *log.Logger
	db             database.CampusRepository
	srv            *http.Server
	hub            *server.Hub
	tokens         *auth.TokenService
	allowedOrigins []string
	now            func() time.Time
}

func NewCampusApp(mux *http.ServeMux, logger *log.Logger, hub *server.Hub, db database.CampusRepository, tokens *auth.TokenService, cfg *config.Config) *CampusApp {
	s := &CampusApp{
		log:            logger,
		db:             db,
		hub:            hub,
		tokens:         tokens,
		allowedOrigins: cfg.AllowedOrigins,
		now:            time.Now,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)

	mux.HandleFunc("POST /api/auth/register", s.register)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))

	mux.HandleFunc("GET /api/chat/messages", s.authMiddleware(s.getChatMessages))
	mux.HandleFunc("GET /chathub", s.authMiddleware(s.serveWs))

	mux.HandleFunc("GET /api/events", s.listEvents)
	mux.HandleFunc("POST /api/events", s.authMiddleware(s.createEvent))
	mux.HandleFunc("GET /api/events/{id}", s.getEvent)
	mux.HandleFunc("PUT /api/events/{id}", s.authMiddleware(s.updateEvent))
	mux.HandleFunc("DELETE /api/events/{id}", s.authMiddleware(s.requireRole(types.RoleAdmin, s.deleteEvent)))
	mux.HandleFunc("POST /api/events/{id}/vote", s.authMiddleware(s.voteEvent))
	mux.HandleFunc("GET /api/events/category/{category}", s.listEventsByCategory)
	mux.HandleFunc("GET /api/events/search", s.searchEvents)
	mux.HandleFunc("GET /api/tags", s.listTags)

	mux.HandleFunc("GET /api/comments/event/{eventId}", s.listComments)
	mux.HandleFunc("POST /api/comments", s.authMiddleware(s.createComment))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization", requestIdHeader}),
		handlers.ExposedHeaders([]string{requestIdHeader}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)
	h = s.requestId(h)
	h = handlers.CombinedLoggingHandler(logger.Writer(), h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *CampusApp) Handler() http.Handler {
	return s.srv.Handler
}

func (s *CampusApp) Start() error {
	s.log.Printf("starting server on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *CampusApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}

func (s *CampusApp) writeJson(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

// writeText sends a human readable reason the client shows as-is.
func (s *CampusApp) writeText(w http.ResponseWriter, statusCode int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(statusCode)
	if _, err := w.Write([]byte(text)); err != nil {
		s.log.Printf("write response: %v", err)
	}
}

func (s *CampusApp) writeError(w http.ResponseWriter, errResp *ApiError) {
	if errResp.Err != nil {
		s.log.Println(errResp.Error())
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *CampusApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
