package activity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/sentinel/internal/authz"
	"github.com/odyssey-erp/sentinel/internal/platform/httpx"
)

func newTestService(now time.Time) (*Service, *MemoryStore) {
	store := NewMemoryStore()
	svc := NewService(store, nil)
	svc.now = func() time.Time { return now }
	return svc, store
}

func TestRecordRequiresEventAndDescription(t *testing.T) {
	svc, _ := newTestService(time.Now())
	err := svc.Record(context.Background(), Entry{Event: "  "})
	require.ErrorIs(t, err, ErrInvalidEntry)
}

func TestRecordDefaultsLogAndTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, store := newTestService(now)

	require.NoError(t, svc.Record(context.Background(), Entry{Event: "role.assigned", Description: "Assigned Editor", CauserID: 1}))

	entries, total, err := store.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, LogDefault, entries[0].LogName)
	assert.Equal(t, now, entries[0].CreatedAt)
}

func TestPruneRemovesOldEntries(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, store := newTestService(now)
	ctx := context.Background()

	_, _ = store.Insert(ctx, Entry{Event: "old", Description: "old", CreatedAt: now.Add(-100 * 24 * time.Hour)})
	_, _ = store.Insert(ctx, Entry{Event: "new", Description: "new", CreatedAt: now.Add(-time.Hour)})

	removed, err := svc.Prune(ctx, 90*24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	entries, _, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].Event)
}

type allowAll struct{ denied map[authz.Action]bool }

func (a allowAll) RequirePolicy(action authz.Action, _ authz.ResourceType) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a.denied[action] {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusErrors struct{}

func (statusErrors) Render(w http.ResponseWriter, _ *http.Request, err error) {
	status := http.StatusInternalServerError
	var abort *httpx.HTTPError
	switch {
	case errors.As(err, &abort):
		status = abort.Status
	case errors.Is(err, httpx.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, httpx.ErrValidation):
		status = http.StatusUnprocessableEntity
	}
	w.WriteHeader(status)
}

func (e statusErrors) Wrap(fn httpx.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			e.Render(w, r, err)
		}
	}
}

func newRouter(svc *Service, guard allowAll) http.Handler {
	r := chi.NewRouter()
	r.Route("/admin/activity", NewHandler(svc, guard, statusErrors{}).MountRoutes)
	return r
}

func TestHandlerListsAndDeletes(t *testing.T) {
	svc, store := newTestService(time.Now())
	entry, _ := store.Insert(context.Background(), Entry{Event: "login", Description: "Signed in", CreatedAt: time.Now()})
	router := newRouter(svc, allowAll{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/activity?per_page=5", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"Signed in"`)
	assert.Contains(t, rr.Body.String(), `"perPage":5`)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/admin/activity/1", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)

	_, err := store.Get(context.Background(), entry.ID)
	require.ErrorIs(t, err, ErrNotFound)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/activity/1", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerRejectsManualEntries(t *testing.T) {
	svc, _ := newTestService(time.Now())
	router := newRouter(svc, allowAll{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/admin/activity", nil))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/admin/activity/1", nil))
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestHandlerHonoursPolicyGuard(t *testing.T) {
	svc, _ := newTestService(time.Now())
	router := newRouter(svc, allowAll{denied: map[authz.Action]bool{authz.ActionViewAny: true}})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/activity", nil))
	assert.Equal(t, http.StatusForbidden, rr.Code)
}
