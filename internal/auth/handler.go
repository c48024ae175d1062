package auth

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/sentinel/internal/authz"
	"github.com/odyssey-erp/sentinel/internal/platform/httpx"
	"github.com/odyssey-erp/sentinel/internal/shared"
)

const invalidCredentialsMessage = "These credentials do not match our records."

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	errors         httpx.Errors
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager, errs httpx.Errors) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		csrfManager:    csrf,
		errors:         errs,
		validator:      httpx.NewValidator(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/csrf", h.errors.Wrap(h.csrfToken))
	r.Post("/login", h.errors.Wrap(h.handleLogin))
	r.Post("/logout", h.errors.Wrap(h.handleLogout))
	r.Get("/me", h.errors.Wrap(h.me))
}

type loginForm struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) csrfToken(w http.ResponseWriter, r *http.Request) error {
	token, err := h.csrfManager.EnsureToken(r.Context(), shared.SessionFromContext(r.Context()))
	if err != nil {
		return httpx.Trace(err)
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"token": token})
	return nil
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) error {
	form, err := h.decodeLogin(r)
	if err != nil {
		return err
	}
	if err := h.validator.Struct(form); err != nil {
		return httpx.ValidationFromValidator(err)
	}

	user, err := h.service.Authenticate(r.Context(), Attempt{
		Email:     form.Email,
		Password:  form.Password,
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			h.logger.Info("login rejected", slog.String("email", form.Email))
			return &httpx.ValidationError{Fields: map[string]string{"email": invalidCredentialsMessage}}
		}
		return httpx.Trace(err)
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return httpx.Trace(errors.New("auth: session missing during login"))
	}
	sess.Regenerate()
	sess.SetUser(strconv.FormatInt(user.ID, 10))
	// A fresh token is issued on the next request.
	sess.Delete(shared.CSRFSessionKey)
	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, expiresAt, clientIP(r), r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}

	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, map[string]any{"user": user})
		return nil
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
	return nil
}

func (h *Handler) decodeLogin(r *http.Request) (loginForm, error) {
	var form loginForm
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := httpx.DecodeJSON(r, &form); err != nil {
			return form, &httpx.ValidationError{Fields: map[string]string{"body": "must be valid JSON"}}
		}
		return form, nil
	}
	if err := r.ParseForm(); err != nil {
		return form, httpx.Abort(http.StatusBadRequest, "")
	}
	form.Email = r.PostFormValue("email")
	form.Password = r.PostFormValue("password")
	return form, nil
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) error {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		userID, _ := shared.SessionUserID(r.Context())
		if err := h.service.RemoveSession(r.Context(), sess.ID, userID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	if httpx.WantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return nil
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
	return nil
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) error {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		return httpx.ErrUnauthorized
	}
	httpx.JSON(w, http.StatusOK, principal)
	return nil
}

// clientIP strips the port chi's RealIP leaves on direct connections.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
