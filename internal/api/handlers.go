package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"gemdesk.app/gemdesk/internal/domain"
	"gemdesk.app/gemdesk/internal/gateway"
	"gemdesk.app/gemdesk/internal/pipeline"
	"gemdesk.app/gemdesk/internal/state"
	"gemdesk.app/gemdesk/internal/store"
)

// APIHandler exposes the store and pipeline operations to the UI. It adds no
// semantics of its own: every route maps onto exactly one core operation.
type APIHandler struct {
	state    *state.Store
	pipeline *pipeline.Pipeline
	gateway  *gateway.Gateway
	db       *store.Store
	log      *zap.Logger
}

func NewAPIHandler(st *state.Store, p *pipeline.Pipeline, gw *gateway.Gateway, db *store.Store, log *zap.Logger) *APIHandler {
	return &APIHandler{state: st, pipeline: p, gateway: gw, db: db, log: log}
}

type RegisterRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return
	}
	if req.Password != req.ConfirmPassword {
		http.Error(w, "Passwords do not match", http.StatusBadRequest)
		return
	}

	user := domain.UserRecord{
		Username:  req.Username,
		Password:  req.Password,
		CreatedAt: time.Now(),
	}
	if err := h.db.AddUser(r.Context(), &user); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			http.Error(w, domain.ErrUserExists.Error(), http.StatusConflict)
			return
		}
		h.log.Error("failed to create user", zap.String("username", req.Username), zap.Error(err))
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"username": user.Username})
}

type LoginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	user, found, err := h.db.GetUser(r.Context(), req.Username)
	if err != nil {
		h.log.Error("failed to look up user", zap.String("username", req.Username), zap.Error(err))
		http.Error(w, "Failed to process login", http.StatusInternalServerError)
		return
	}
	// Exact-equality plaintext check; hardening is an explicit non-goal.
	if !found || user.Password != req.Password {
		http.Error(w, domain.ErrBadCredentials.Error(), http.StatusUnauthorized)
		return
	}

	auth := domain.AuthState{Username: user.Username, IsLoggedIn: true}
	if req.RememberMe {
		if err := h.db.PutAuthState(r.Context(), &auth); err != nil {
			h.log.Warn("failed to persist auth state", zap.Error(err))
			h.state.AddLog(domain.LogWarn, "failed to remember login", err.Error())
		}
	}
	json.NewEncoder(w).Encode(auth)
}

// AuthStateHandler returns the remembered login, if any. The UI reads it at
// startup to bypass the login screen.
func (h *APIHandler) AuthStateHandler(w http.ResponseWriter, r *http.Request) {
	auth, found, err := h.db.GetAuthState(r.Context())
	if err != nil {
		h.log.Error("failed to read auth state", zap.Error(err))
		http.Error(w, "Failed to read auth state", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "Not logged in", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(auth)
}

func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.db.DeleteAuthState(r.Context()); err != nil {
		h.log.Error("failed to clear auth state", zap.Error(err))
		http.Error(w, "Failed to log out", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) GetConfigHandler(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.state.Configuration()
	if !ok {
		http.Error(w, "Not configured", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(cfg)
}

// SaveConfigHandler persists the record and only then points the remote
// client at it. A failed persist returns before the client is touched, so no
// component ever acts on a configuration that was never stored.
func (h *APIHandler) SaveConfigHandler(w http.ResponseWriter, r *http.Request) {
	var cfg domain.Configuration
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		http.Error(w, domain.ErrInvalidConfig.Error(), http.StatusBadRequest)
		return
	}

	if err := h.state.SetConfiguration(r.Context(), &cfg); err != nil {
		h.log.Error("failed to save configuration", zap.Error(err))
		http.Error(w, "Failed to save configuration", http.StatusInternalServerError)
		return
	}
	if err := h.gateway.Initialize(r.Context(), &cfg); err != nil {
		h.log.Error("failed to initialize remote client", zap.Error(err))
		http.Error(w, "Failed to initialize remote client", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type SessionsResponse struct {
	Sessions         []domain.Session `json:"sessions"`
	CurrentSessionID string           `json:"currentSessionId,omitempty"`
}

func (h *APIHandler) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	resp := SessionsResponse{Sessions: h.state.Sessions()}
	if current := h.state.Current(); current != nil {
		resp.CurrentSessionID = current.ID
	}
	json.NewEncoder(w).Encode(resp)
}

type CreateSessionRequest struct {
	Title string `json:"title"`
}

func (h *APIHandler) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if r.Body != http.NoBody {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	session, err := h.state.CreateSession(r.Context(), req.Title)
	if err != nil {
		h.log.Error("failed to create session", zap.Error(err))
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(session)
}

func (h *APIHandler) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := h.state.DeleteSession(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		h.log.Error("failed to delete session", zap.String("session_id", id), zap.Error(err))
		http.Error(w, "Failed to delete session", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type RenameSessionRequest struct {
	Title string `json:"title"`
}

func (h *APIHandler) RenameSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	var req RenameSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	err := h.state.RenameSession(r.Context(), id, req.Title)
	switch {
	case errors.Is(err, domain.ErrEmptyTitle):
		http.Error(w, "Title cannot be empty", http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "Session not found", http.StatusNotFound)
	case err != nil:
		h.log.Error("failed to rename session", zap.String("session_id", id), zap.Error(err))
		http.Error(w, "Failed to rename session", http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *APIHandler) SelectSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := h.state.SelectSession(id); err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type SendMessageRequest struct {
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

func (h *APIHandler) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	modelMsg, err := h.pipeline.Send(r.Context(), req.Content, req.Images)
	switch {
	case err == nil:
		json.NewEncoder(w).Encode(modelMsg)
	case errors.Is(err, domain.ErrEmptyMessage), errors.Is(err, domain.ErrNoSession):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotInitialized), errors.Is(err, domain.ErrInvalidConfig):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrModelDeprecated), errors.Is(err, domain.ErrNoContent):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		h.log.Error("send failed", zap.Error(err))
		http.Error(w, "Send failed: "+err.Error(), http.StatusBadGateway)
	}
}

type RecordCommandRequest struct {
	Content string `json:"content"`
}

func (h *APIHandler) RecordCommandHandler(w http.ResponseWriter, r *http.Request) {
	var req RecordCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.state.RecordCommand(r.Context(), req.Content); err != nil {
		if errors.Is(err, domain.ErrEmptyMessage) {
			http.Error(w, "Command content cannot be empty", http.StatusBadRequest)
			return
		}
		h.log.Error("failed to record command", zap.Error(err))
		http.Error(w, "Failed to record command", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *APIHandler) ListCommandsHandler(w http.ResponseWriter, r *http.Request) {
	commands, err := h.state.Commands(r.Context())
	if err != nil {
		h.log.Error("failed to list commands", zap.Error(err))
		http.Error(w, "Failed to list commands", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(commands)
}

func (h *APIHandler) LogsHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(h.state.Logs())
}
