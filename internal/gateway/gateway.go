// Package gateway is a self-contained development gateway: the REST surface
// and streaming websocket endpoint the client expects, with a scripted agent
// behind them. It exists so the terminal client can be developed and demoed
// without a real agent backend.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"agentdeck/internal/api"
)

// Config holds the dev gateway settings.
type Config struct {
	Port           int
	AllowedOrigins []string
	// Token is the credential the gateway accepts everywhere. Empty disables
	// the check.
	Token string
	// ChunkDelay spaces out reply chunks to make streaming visible.
	ChunkDelay time.Duration
}

// Server is the development gateway.
type Server struct {
	cfg   Config
	log   *zap.Logger
	state *state

	httpServer *http.Server
}

// NewServer builds the gateway. Call Start to begin serving.
func NewServer(cfg Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.ChunkDelay == 0 {
		cfg.ChunkDelay = 30 * time.Millisecond
	}
	return &Server{
		cfg:   cfg,
		log:   log.With(zap.String("component", "gateway")),
		state: newState(),
	}
}

// Handler builds the full HTTP handler, CORS included. Exposed for tests.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.HandleFunc("/api/login", s.handleLogin).Methods("POST")

	authed := router.PathPrefix("/api").Subrouter()
	authed.Use(s.authMiddleware)
	authed.HandleFunc("/projects", s.handleListProjects).Methods("GET")
	authed.HandleFunc("/projects", s.handleCreateProject).Methods("POST")
	authed.HandleFunc("/projects/{projectId}", s.handleUpdateProject).Methods("PUT")
	authed.HandleFunc("/projects/{projectId}", s.handleDeleteProject).Methods("DELETE")
	authed.HandleFunc("/projects/{projectId}/agents", s.handleListAgents).Methods("GET")
	authed.HandleFunc("/agents", s.handleCreateAgent).Methods("POST")
	authed.HandleFunc("/agents/{agentId}", s.handleUpdateAgent).Methods("PUT")
	authed.HandleFunc("/agents/{agentId}", s.handleDeleteAgent).Methods("DELETE")
	authed.HandleFunc("/agents/{agentId}/transcript", s.handleTranscript).Methods("GET")
	authed.HandleFunc("/agents/{agentId}/session", s.handleClearSession).Methods("DELETE")

	// The websocket endpoint carries its credential as a query parameter and
	// reports rejection through a close code, so it sits outside the REST
	// auth middleware.
	router.HandleFunc("/ws", s.handleWebSocket)

	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(router)
}

// Start begins serving and blocks until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // streaming websocket writes have their own deadlines
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info("gateway listening", zap.Int("port", s.cfg.Port))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the gateway down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// authMiddleware enforces the bearer token on REST routes.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Token != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if got != s.cfg.Token {
				writeError(w, http.StatusUnauthorized, "invalid or missing token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusUnauthorized, "email and password are required")
		return
	}

	// Any non-empty credentials work on the dev gateway.
	writeJSON(w, http.StatusOK, map[string]any{
		"token": s.cfg.Token,
		"user": api.User{
			ID:        "dev-user",
			Email:     req.Email,
			Name:      strings.Split(req.Email, "@")[0],
			CreatedAt: time.Now().UTC(),
		},
	})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.listProjects())
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var p api.Project
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if p.Name == "" {
		writeError(w, http.StatusBadRequest, "project name is required")
		return
	}
	writeJSON(w, http.StatusCreated, s.state.createProject(p))
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var p api.Project
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p.ID = mux.Vars(r)["projectId"]
	updated, ok := s.state.updateProject(p)
	if !ok {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if !s.state.deleteProject(mux.Vars(r)["projectId"]) {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.listAgents(mux.Vars(r)["projectId"]))
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var a api.Agent
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if a.Name == "" || a.ProjectID == "" {
		writeError(w, http.StatusBadRequest, "agent name and projectId are required")
		return
	}
	created, ok := s.state.createAgent(a)
	if !ok {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var a api.Agent
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	a.ID = mux.Vars(r)["agentId"]
	updated, ok := s.state.updateAgent(a)
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	if !s.state.deleteAgent(mux.Vars(r)["agentId"]) {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agentId"]
	if _, ok := s.state.getAgent(agentID); !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	turns, sessionID := s.state.transcript(agentID)
	writeJSON(w, http.StatusOK, api.TranscriptResult{
		Success:    true,
		Turns:      turns,
		HasSession: sessionID != "",
		SessionID:  sessionID,
	})
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	agent, ok := s.state.clearSession(mux.Vars(r)["agentId"])
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
