package activity

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/sentinel/internal/authz"
	"github.com/odyssey-erp/sentinel/internal/platform/httpx"
	"github.com/odyssey-erp/sentinel/internal/shared"
)

// Authorizer guards routes with resource policies.
type Authorizer interface {
	RequirePolicy(action authz.Action, resource authz.ResourceType) func(http.Handler) http.Handler
}

// Handler exposes the activity log to administrators.
type Handler struct {
	service *Service
	authz   Authorizer
	errors  httpx.Errors
}

// NewHandler builds the handler.
func NewHandler(service *Service, authorizer Authorizer, errs httpx.Errors) *Handler {
	return &Handler{service: service, authz: authorizer, errors: errs}
}

// MountRoutes registers activity routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.authz.RequirePolicy(authz.ActionViewAny, authz.ResourceActivity)).Get("/", h.errors.Wrap(h.list))
	r.With(h.authz.RequirePolicy(authz.ActionCreate, authz.ResourceActivity)).Post("/", h.errors.Wrap(h.create))
	r.With(h.authz.RequirePolicy(authz.ActionView, authz.ResourceActivity)).Get("/{id}", h.errors.Wrap(h.show))
	r.With(h.authz.RequirePolicy(authz.ActionUpdate, authz.ResourceActivity)).Put("/{id}", h.errors.Wrap(h.update))
	r.With(h.authz.RequirePolicy(authz.ActionDelete, authz.ResourceActivity)).Delete("/{id}", h.errors.Wrap(h.delete))
}

type listResponse struct {
	Data       []Entry           `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) error {
	query := r.URL.Query()
	page, perPage := shared.PageParams(query)
	filter := Filter{LogName: query.Get("log"), Limit: perPage, Offset: (page - 1) * perPage}
	if raw := query.Get("causer"); raw != "" {
		causer, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return &httpx.ValidationError{Fields: map[string]string{"causer": "must be an integer"}}
		}
		filter.CauserID = causer
	}
	entries, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		return httpx.Trace(err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: entries, Pagination: shared.NewPagination(page, perPage, total)})
	return nil
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) error {
	id, err := entryID(r)
	if err != nil {
		return err
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		return httpx.Trace(err)
	}
	httpx.JSON(w, http.StatusOK, entry)
	return nil
}

// Reached only by the override role; entries are written by the system.
func (h *Handler) create(http.ResponseWriter, *http.Request) error {
	return httpx.Abort(http.StatusForbidden, "Activity entries are recorded by the system.")
}

func (h *Handler) update(http.ResponseWriter, *http.Request) error {
	return httpx.Abort(http.StatusForbidden, "Activity entries cannot be edited.")
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) error {
	id, err := entryID(r)
	if err != nil {
		return err
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		return httpx.Trace(err)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func entryID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, httpx.Abort(http.StatusNotFound, "")
	}
	return id, nil
}
