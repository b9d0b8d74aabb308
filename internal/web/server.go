/*

This file contains the operator dashboard: a read-only HTTP API over the
Reputation Store's Jobs, Rounds, Predictions, and MinerScores, plus a
websocket feed the scheduler pushes round-lifecycle events onto. It
never drives a round itself; it only reads what the scheduler has
already written.

*/

package web

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/elys-network/lpvalidator/internal/logger"
	"github.com/elys-network/lpvalidator/internal/state"
)

var webLogger = logger.GetForComponent("web_server")

// Server serves the operator dashboard API.
type Server struct {
	router *mux.Router
	port   string
	store  *state.Store
	hub    *Hub
}

// New creates a dashboard server bound to store. hub may be nil, in
// which case the websocket feed route is still registered but never
// receives any events.
func New(port string, store *state.Store, hub *Hub) *Server {
	if port == "" {
		port = "8080"
	}
	if hub == nil {
		hub = NewHub()
	}

	s := &Server{
		router: mux.NewRouter(),
		port:   port,
		store:  store,
		hub:    hub,
	}
	s.setupRoutes()
	return s
}

// Hub exposes the server's event hub so callers can wire it into the
// scheduler as a Broadcaster.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/ws", s.hub.ServeWS)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/jobs", s.handleListJobs).Methods("GET")
	api.HandleFunc("/jobs/{jobID}", s.handleGetJob).Methods("GET")
	api.HandleFunc("/jobs/{jobID}/rounds", s.handleListRounds).Methods("GET")
	api.HandleFunc("/jobs/{jobID}/scores", s.handleGetScores).Methods("GET")
	api.HandleFunc("/rounds/{roundID}/predictions", s.handleRoundPredictions).Methods("GET")

	s.router.Use(s.corsMiddleware)
	s.router.Use(s.loggingMiddleware)
}

// Start blocks serving HTTP until the listener errors.
func (s *Server) Start() error {
	webLogger.Info().Str("port", s.port).Msg("starting dashboard server")

	server := &http.Server{
		Addr:         ":" + s.port,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := "OK"
	code := http.StatusOK
	if err := s.store.Ping(ctx); err != nil {
		status = "DEGRADED"
		code = http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.ListActiveJobs(r.Context())
	if err != nil {
		webLogger.Error().Err(err).Msg("failed to list jobs")
		s.writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobID"]
	job, err := s.store.GetJob(r.Context(), jobID)
	if err != nil {
		if err == sql.ErrNoRows {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		webLogger.Error().Err(err).Str("job_id", jobID).Msg("failed to get job")
		s.writeError(w, http.StatusInternalServerError, "failed to get job")
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListRounds(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobID"]
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	rounds, err := s.store.ListRounds(r.Context(), jobID, limit)
	if err != nil {
		webLogger.Error().Err(err).Str("job_id", jobID).Msg("failed to list rounds")
		s.writeError(w, http.StatusInternalServerError, "failed to list rounds")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"rounds": rounds, "count": len(rounds)})
}

func (s *Server) handleGetScores(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobID"]
	scores, err := s.store.GetScores(r.Context(), jobID)
	if err != nil {
		webLogger.Error().Err(err).Str("job_id", jobID).Msg("failed to get scores")
		s.writeError(w, http.StatusInternalServerError, "failed to get scores")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"scores": scores})
}

func (s *Server) handleRoundPredictions(w http.ResponseWriter, r *http.Request) {
	roundID := mux.Vars(r)["roundID"]
	predictions, err := s.store.RoundPredictions(r.Context(), roundID)
	if err != nil {
		webLogger.Error().Err(err).Str("round_id", roundID).Msg("failed to get predictions")
		s.writeError(w, http.StatusInternalServerError, "failed to get predictions")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"predictions": predictions})
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("failed to encode json response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSON(w, statusCode, map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
