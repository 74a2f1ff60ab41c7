package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sitdb/sitdb/internal/platform/httpx"
	"github.com/sitdb/sitdb/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		csrfManager:    csrf,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/csrf", h.handleCSRF)
	r.Post("/register", h.handleRegister)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/me", h.handleMe)
}

func (h *Handler) handleCSRF(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrfManager.EnsureToken(shared.SessionFromContext(r.Context()))
	if err != nil {
		h.logger.Error("csrf token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]string{"csrfToken": token}, "")
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.Register(r.Context(), in, shared.MetaFromRequest(r))
	if err != nil {
		h.respondError(w, "register", err)
		return
	}
	h.logger.Info("user registered", slog.String("user_id", user.ID), slog.String("role", string(user.Role)))
	httpx.OK(w, http.StatusCreated, user, "Registrasi berhasil")
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in LoginInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.Authenticate(r.Context(), in)
	if err != nil {
		h.respondError(w, "login", err)
		return
	}
	token, expiresAt, err := h.service.IssueToken(user)
	if err != nil {
		h.respondError(w, "issue token", err)
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.sessionManager.Regenerate(sess)
		sess.SetUser(user.ID)
		sessionExpiry := time.Now().Add(h.sessionManager.TTL())
		if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, sessionExpiry, shared.MetaFromRequest(r)); err != nil {
			h.logger.Warn("register session", slog.Any("error", err))
		}
	} else {
		h.logger.Error("session missing during login")
	}
	httpx.OK(w, http.StatusOK, LoginResult{User: *user, AccessToken: token, ExpiresAt: expiresAt}, "Login berhasil")
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	httpx.OK(w, http.StatusOK, nil, "Logout berhasil")
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	user, err := h.service.Me(r.Context(), p.ID)
	if err != nil {
		h.respondError(w, "me", err)
		return
	}
	httpx.OK(w, http.StatusOK, user, "")
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error("auth "+op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
