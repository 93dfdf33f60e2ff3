package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"parlor/internal/auth"
	"parlor/internal/websocket"
	"parlor/pkg/interfaces"
	"parlor/pkg/types"
)

// Server is the HTTP account surface: registration, login, and health.
// No coordination logic lives here, only HTTP handling, validation,
// and JSON serialization.
type Server struct {
	log      zerolog.Logger
	store    interfaces.MessageStore
	verifier *auth.Verifier
	registry *websocket.Registry
	validate *validator.Validate
	mux      *http.ServeMux
}

// NewServer creates the API server and sets up its routes.
func NewServer(store interfaces.MessageStore, verifier *auth.Verifier, registry *websocket.Registry, log zerolog.Logger) *Server {
	s := &Server{
		log:      log.With().Str("component", "api").Logger(),
		store:    store,
		verifier: verifier,
		registry: registry,
		validate: validator.New(),
		mux:      http.NewServeMux(),
	}

	s.mux.Handle("/api/register", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleRegister))))
	s.mux.Handle("/api/login", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleLogin))))
	s.mux.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleHealth))))

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// credentialsRequest is the payload of both register and login.
type credentialsRequest struct {
	Username string `json:"username" validate:"required,min=2,max=32"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// tokenResponse carries the minted token back to the client.
type tokenResponse struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, ok := s.decodeCredentials(w, r)
	if !ok {
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.log.Error().Err(err).Msg("password hashing failed")
		s.sendError(w, "Registration failed", http.StatusInternalServerError)
		return
	}

	user, err := s.store.CreateUser(r.Context(), req.Username, hash)
	if err != nil {
		if errors.Is(err, interfaces.ErrUserExists) {
			s.sendError(w, "Username already taken", http.StatusConflict)
			return
		}
		s.log.Error().Err(err).Msg("user creation failed")
		s.sendError(w, "Registration failed", http.StatusInternalServerError)
		return
	}

	s.respondWithToken(w, user.Name, http.StatusCreated)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, ok := s.decodeCredentials(w, r)
	if !ok {
		return
	}

	user, err := s.store.GetUserByName(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, interfaces.ErrUserNotFound) {
			s.sendError(w, "Invalid username or password", http.StatusUnauthorized)
			return
		}
		s.log.Error().Err(err).Msg("user lookup failed")
		s.sendError(w, "Login failed", http.StatusInternalServerError)
		return
	}

	// Synthetic identities (the assistant) have no password and can
	// never log in.
	if user.PasswordHash == "" {
		s.sendError(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	match, err := auth.ComparePassword(req.Password, user.PasswordHash)
	if err != nil || !match {
		s.sendError(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	s.respondWithToken(w, user.Name, http.StatusOK)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	if err := s.store.HealthCheck(ctx); err != nil {
		s.log.Warn().Err(err).Msg("store health check failed")
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	s.sendJSON(w, map[string]any{
		"status": status,
		"online": s.registry.Count(),
	}, code)
}

// decodeCredentials parses and validates the shared register/login
// payload, writing the error response itself on failure.
func (s *Server) decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON body", http.StatusBadRequest)
		return req, false
	}
	if err := s.validate.Struct(req); err != nil {
		s.sendError(w, "Username must be 2-32 characters and password 8-128 characters", http.StatusBadRequest)
		return req, false
	}
	if !types.IsValidUsername(req.Username) {
		s.sendError(w, types.ErrInvalidUsername.Error(), http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func (s *Server) respondWithToken(w http.ResponseWriter, username string, code int) {
	token, err := s.verifier.GenerateToken(username)
	if err != nil {
		s.log.Error().Err(err).Msg("token minting failed")
		s.sendError(w, "Token generation failed", http.StatusInternalServerError)
		return
	}
	s.sendJSON(w, tokenResponse{Username: username, Token: token}, code)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any, code int) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("response encoding failed")
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, map[string]string{"error": message}, code)
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
