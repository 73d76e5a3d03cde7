// Package api maps HTTP requests onto the chat orchestration service and
// the user store. Handlers stay thin: decode, delegate, serialize.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/kurious/kurio/internal/auth"
	"github.com/kurious/kurio/internal/chat"
	"github.com/kurious/kurio/internal/user"
)

// ChatService is the orchestration surface the handler depends on.
type ChatService interface {
	GenerateResponse(ctx context.Context, message, threadID string) (*chat.TurnResult, error)
	ResetThread(ctx context.Context, threadID string) error
}

// UserStore is the user repository surface the handler depends on.
type UserStore interface {
	CreateUser(ctx context.Context, u *user.User) (*user.User, error)
	GetUser(ctx context.Context, id string) (*user.User, error)
	ListUsers(ctx context.Context) ([]*user.User, error)
	UpdateUser(ctx context.Context, u *user.User) (*user.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// IdentitySyncer bridges verified identities to local user records.
type IdentitySyncer interface {
	SyncIdentity(ctx context.Context, ident auth.Identity) (*user.User, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	chat     ChatService
	users    UserStore
	syncer   IdentitySyncer
	verifier auth.TokenVerifier
	logger   *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(chatSvc ChatService, users UserStore, syncer IdentitySyncer, verifier auth.TokenVerifier, logger *zap.Logger) *Handler {
	return &Handler{
		chat:     chatSvc,
		users:    users,
		syncer:   syncer,
		verifier: verifier,
		logger:   logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.healthCheck)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat/", h.postChat)
		r.Delete("/chat/{conversationID}", h.deleteConversation)

		r.Route("/users", func(r chi.Router) {
			r.Use(auth.Middleware(h.verifier))
			r.Get("/me", h.currentUser)
			r.Post("/", h.createUser)
			r.Get("/", h.listUsers)
			r.Get("/{id}", h.getUser)
			r.Put("/{id}", h.updateUser)
			r.Delete("/{id}", h.deleteUser)
		})
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type chatRequest struct {
	Content        string `json:"content"`
	ConversationID string `json:"conversation_id"`
}

func (h *Handler) postChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	threadID := req.ConversationID
	if threadID == "" {
		threadID = chat.DefaultThreadID
	}

	result, err := h.chat.GenerateResponse(r.Context(), req.Content, threadID)
	if err != nil {
		h.logger.Error("chat turn failed",
			zap.String("conversation_id", threadID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) deleteConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	if err := h.chat.ResetThread(r.Context(), conversationID); err != nil {
		var notFound *chat.NotFoundError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, notFound.Error())
			return
		}
		h.logger.Error("reset failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) {
	ident, ok := auth.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, auth.ErrUnauthorized.Error())
		return
	}
	u, err := h.syncer.SyncIdentity(r.Context(), ident)
	if err != nil {
		h.logger.Error("user sync failed",
			zap.String("subject", ident.Subject), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type userRequest struct {
	Subject string `json:"subject"`
	Email   string `json:"email"`
	Name    string `json:"name"`
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Subject == "" {
		writeError(w, http.StatusBadRequest, "subject is required")
		return
	}

	created, err := h.users.CreateUser(r.Context(), &user.User{
		Subject: req.Subject,
		Email:   req.Email,
		Name:    req.Name,
	})
	if err != nil {
		h.logger.Error("create user failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if users == nil {
		users = []*user.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	u, err := h.users.GetUser(r.Context(), id)
	if err != nil {
		h.writeUserError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.users.UpdateUser(r.Context(), &user.User{
		ID:    chi.URLParam(r, "id"),
		Email: req.Email,
		Name:  req.Name,
	})
	if err != nil {
		h.writeUserError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.users.DeleteUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeUserError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeUserError(w http.ResponseWriter, err error) {
	if errors.Is(err, user.ErrNotFound) {
		writeError(w, http.StatusNotFound, user.ErrNotFound.Error())
		return
	}
	h.logger.Error("user operation failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
