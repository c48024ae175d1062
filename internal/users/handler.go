package users

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/sentinel/internal/authz"
	"github.com/odyssey-erp/sentinel/internal/platform/httpx"
	"github.com/odyssey-erp/sentinel/internal/shared"
)

// Authorizer guards routes with resource policies.
type Authorizer interface {
	RequirePolicy(action authz.Action, resource authz.ResourceType) func(http.Handler) http.Handler
}

// Handler manages user management endpoints.
type Handler struct {
	service  *Service
	authz    Authorizer
	errors   httpx.Errors
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(service *Service, authorizer Authorizer, errs httpx.Errors) *Handler {
	return &Handler{service: service, authz: authorizer, errors: errs, validate: httpx.NewValidator()}
}

// MountRoutes registers the collection routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.authz.RequirePolicy(authz.ActionViewAny, authz.ResourceUser)).Get("/", h.errors.Wrap(h.listUsers))
	r.With(h.authz.RequirePolicy(authz.ActionCreate, authz.ResourceUser)).Post("/", h.errors.Wrap(h.createUser))
}

// MountMemberRoutes registers the routes of a single user. r must be scoped
// to a path carrying the {id} parameter.
func (h *Handler) MountMemberRoutes(r chi.Router) {
	r.With(h.authz.RequirePolicy(authz.ActionView, authz.ResourceUser)).Get("/", h.errors.Wrap(h.showUser))
	r.With(h.authz.RequirePolicy(authz.ActionUpdate, authz.ResourceUser)).Put("/active", h.errors.Wrap(h.setActive))
}

type listResponse struct {
	Data       []User            `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) error {
	page, perPage := shared.PageParams(r.URL.Query())
	users, pagination, err := h.service.ListUsers(r.Context(), page, perPage)
	if err != nil {
		return httpx.Trace(err)
	}
	if users == nil {
		users = []User{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: users, Pagination: pagination})
	return nil
}

func (h *Handler) showUser(w http.ResponseWriter, r *http.Request) error {
	id, err := userID(r)
	if err != nil {
		return err
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		return httpx.Trace(err)
	}
	httpx.JSON(w, http.StatusOK, user)
	return nil
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) error {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		return &httpx.ValidationError{Fields: map[string]string{"body": "must be valid JSON"}}
	}
	if err := h.validate.Struct(in); err != nil {
		return httpx.ValidationFromValidator(err)
	}
	actor, _ := authz.PrincipalFromContext(r.Context())
	user, err := h.service.CreateUser(r.Context(), actor, in)
	if errors.Is(err, ErrEmailTaken) {
		return &httpx.ValidationError{Fields: map[string]string{"email": "The email has already been taken."}}
	}
	if err != nil {
		return httpx.Trace(err)
	}
	httpx.JSON(w, http.StatusCreated, user)
	return nil
}

type activeRequest struct {
	Active *bool `json:"active" validate:"required"`
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request) error {
	id, err := userID(r)
	if err != nil {
		return err
	}
	var req activeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return &httpx.ValidationError{Fields: map[string]string{"body": "must be valid JSON"}}
	}
	if err := h.validate.Struct(req); err != nil {
		return httpx.ValidationFromValidator(err)
	}
	actor, _ := authz.PrincipalFromContext(r.Context())
	user, err := h.service.SetActive(r.Context(), actor, id, *req.Active)
	if errors.Is(err, ErrSelfDeactivation) {
		return &httpx.ValidationError{Fields: map[string]string{"active": "You cannot deactivate your own account."}}
	}
	if err != nil {
		return httpx.Trace(err)
	}
	httpx.JSON(w, http.StatusOK, user)
	return nil
}

func userID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, httpx.ErrNotFound
	}
	return id, nil
}
