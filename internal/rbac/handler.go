package rbac

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/sentinel/internal/authz"
	"github.com/odyssey-erp/sentinel/internal/platform/httpx"
)

// Handler exposes role and permission administration as JSON.
type Handler struct {
	service  *Service
	rbac     Middleware
	errors   httpx.Errors
	validate *validator.Validate
}

// NewHandler builds the handler.
func NewHandler(service *Service, rbac Middleware, errs httpx.Errors) *Handler {
	return &Handler{service: service, rbac: rbac, errors: errs, validate: httpx.NewValidator()}
}

// MountRoutes registers administration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequirePolicy(authz.ActionViewAny, authz.ResourceRole)).Get("/roles", h.errors.Wrap(h.listRoles))
	r.With(h.rbac.RequirePolicy(authz.ActionView, authz.ResourceRole)).Get("/roles/{role}/permissions", h.errors.Wrap(h.rolePermissions))
	r.With(h.rbac.RequirePolicy(authz.ActionUpdate, authz.ResourceRole)).Put("/roles/{role}/permissions", h.errors.Wrap(h.syncRolePermissions))
	r.With(h.rbac.RequirePolicy(authz.ActionViewAny, authz.ResourcePermission)).Get("/permissions", h.errors.Wrap(h.listPermissions))
}

// MountUserRoutes registers the role and permission routes of a single user.
// r must be scoped to a path carrying the {id} parameter.
func (h *Handler) MountUserRoutes(r chi.Router) {
	r.With(h.rbac.RequirePolicy(authz.ActionView, authz.ResourceUser)).Get("/permissions", h.errors.Wrap(h.userAccess))
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePolicy(authz.ActionUpdate, authz.ResourceUser))
		r.Post("/roles", h.errors.Wrap(h.assignRole))
		r.Delete("/roles/{role}", h.errors.Wrap(h.removeRole))
		r.Post("/permissions", h.errors.Wrap(h.grantPermission))
		r.Delete("/permissions/{permission}", h.errors.Wrap(h.revokePermission))
	})
}

type roleRequest struct {
	Role string `json:"role" validate:"required,max=125"`
}

type permissionRequest struct {
	Permission string `json:"permission" validate:"required,max=125"`
}

type syncRequest struct {
	Permissions []string `json:"permissions" validate:"dive,required,max=125"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) error {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		return httpx.Trace(err)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": nonNil(roles)})
	return nil
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) error {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		return httpx.Trace(err)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": nonNil(perms)})
	return nil
}

func (h *Handler) rolePermissions(w http.ResponseWriter, r *http.Request) error {
	perms, err := h.service.RolePermissions(r.Context(), chi.URLParam(r, "role"))
	if err != nil {
		return httpx.Trace(err)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"role": chi.URLParam(r, "role"), "permissions": perms})
	return nil
}

func (h *Handler) syncRolePermissions(w http.ResponseWriter, r *http.Request) error {
	var req syncRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}
	actor, _ := authz.PrincipalFromContext(r.Context())
	if err := h.service.SyncRolePermissions(r.Context(), actor, chi.URLParam(r, "role"), req.Permissions); err != nil {
		return httpx.Trace(err)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) userAccess(w http.ResponseWriter, r *http.Request) error {
	id, err := userID(r)
	if err != nil {
		return err
	}
	access, err := h.service.UserAccess(r.Context(), id)
	if err != nil {
		return httpx.Trace(err)
	}
	httpx.JSON(w, http.StatusOK, access)
	return nil
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) error {
	id, err := userID(r)
	if err != nil {
		return err
	}
	var req roleRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}
	actor, _ := authz.PrincipalFromContext(r.Context())
	if err := h.service.AssignRole(r.Context(), actor, id, req.Role); err != nil {
		return httpx.Trace(err)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) error {
	id, err := userID(r)
	if err != nil {
		return err
	}
	actor, _ := authz.PrincipalFromContext(r.Context())
	if err := h.service.RemoveRole(r.Context(), actor, id, chi.URLParam(r, "role")); err != nil {
		return httpx.Trace(err)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) grantPermission(w http.ResponseWriter, r *http.Request) error {
	id, err := userID(r)
	if err != nil {
		return err
	}
	var req permissionRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}
	actor, _ := authz.PrincipalFromContext(r.Context())
	if err := h.service.GrantPermission(r.Context(), actor, id, req.Permission); err != nil {
		return httpx.Trace(err)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) revokePermission(w http.ResponseWriter, r *http.Request) error {
	id, err := userID(r)
	if err != nil {
		return err
	}
	actor, _ := authz.PrincipalFromContext(r.Context())
	if err := h.service.RevokePermission(r.Context(), actor, id, chi.URLParam(r, "permission")); err != nil {
		return httpx.Trace(err)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return &httpx.ValidationError{Fields: map[string]string{"body": "must be valid JSON"}}
	}
	if err := h.validate.Struct(target); err != nil {
		return httpx.ValidationFromValidator(err)
	}
	return nil
}

func userID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, httpx.Abort(http.StatusNotFound, "")
	}
	return id, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
