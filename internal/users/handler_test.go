package users

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/sentinel/internal/activity"
	"github.com/odyssey-erp/sentinel/internal/authz"
	"github.com/odyssey-erp/sentinel/internal/platform/httpx"
)

type memoryRepo struct {
	users  map[int64]User
	hashes map[int64]string
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: map[int64]User{}, hashes: map[int64]string{}}
}

func (m *memoryRepo) ListUsers(_ context.Context, limit, offset int) ([]User, int, error) {
	all := make([]User, 0, len(m.users))
	for _, u := range m.users {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	if offset >= len(all) {
		return nil, len(all), nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

func (m *memoryRepo) GetUser(_ context.Context, id int64) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *memoryRepo) CreateUser(_ context.Context, name, email, hash string) (User, error) {
	email = strings.ToLower(email)
	for _, u := range m.users {
		if u.Email == email {
			return User{}, ErrEmailTaken
		}
	}
	m.nextID++
	u := User{ID: m.nextID, Name: name, Email: email, IsActive: true, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.users[u.ID] = u
	m.hashes[u.ID] = hash
	return u, nil
}

func (m *memoryRepo) SetActive(_ context.Context, id int64, active bool) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	u.IsActive = active
	m.users[id] = u
	return u, nil
}

type recorded struct{ entries []activity.Entry }

func (r *recorded) Record(_ context.Context, entry activity.Entry) error {
	r.entries = append(r.entries, entry)
	return nil
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
	switch {
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

type countingCache struct {
	invalidations int
	err           error
}

func (c *countingCache) Invalidate(context.Context) error {
	c.invalidations++
	return c.err
}

type fixture struct {
	repo     *memoryRepo
	recorder *recorded
	cache    *countingCache
	router   http.Handler
}

func newFixture(guard allowAll, actor authz.Principal) fixture {
	repo := newMemoryRepo()
	rec := &recorded{}
	cache := &countingCache{}
	svc := NewService(repo, rec, nil, WithPrincipalCache(cache))
	svc.cost = bcrypt.MinCost
	h := NewHandler(svc, guard, statusErrors{})

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(authz.WithPrincipal(req.Context(), actor)))
		})
	})
	r.Route("/admin/users", func(r chi.Router) {
		h.MountRoutes(r)
		r.Route("/{id}", h.MountMemberRoutes)
	})
	return fixture{repo: repo, recorder: rec, cache: cache, router: r}
}

func (f fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

var admin = authz.NewPrincipal(1, "Admin", "admin@example.com", []string{"Super Admin"}, nil)

func TestCreateUserHashesPasswordAndRecordsActivity(t *testing.T) {
	f := newFixture(allowAll{}, admin)

	rr := f.do(http.MethodPost, "/admin/users", `{"name":" Jane ","email":"Jane@Example.com","password":"secret123"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), `"email":"jane@example.com"`)
	assert.Contains(t, rr.Body.String(), `"name":"Jane"`)
	assert.NotContains(t, rr.Body.String(), "secret123")

	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(f.repo.hashes[1]), []byte("secret123")))
	require.Len(t, f.recorder.entries, 1)
	assert.Equal(t, "user.created", f.recorder.entries[0].Event)
	assert.Equal(t, "1", f.recorder.entries[0].SubjectID)
	assert.EqualValues(t, 1, f.recorder.entries[0].CauserID)
}

func TestCreateUserValidation(t *testing.T) {
	f := newFixture(allowAll{}, admin)

	cases := []struct {
		name string
		body string
	}{
		{"malformed", `{`},
		{"missing name", `{"email":"a@example.com","password":"secret123"}`},
		{"bad email", `{"name":"A","email":"nope","password":"secret123"}`},
		{"short password", `{"name":"A","email":"a@example.com","password":"short"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := f.do(http.MethodPost, "/admin/users", tc.body)
			assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		})
	}

	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/admin/users", `{"name":"A","email":"a@example.com","password":"secret123"}`).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, f.do(http.MethodPost, "/admin/users", `{"name":"B","email":"A@example.com","password":"secret123"}`).Code)
}

func TestListAndShowUsers(t *testing.T) {
	f := newFixture(allowAll{}, admin)
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		_, err := f.repo.CreateUser(context.Background(), "User", email, "x")
		require.NoError(t, err)
	}

	rr := f.do(http.MethodGet, "/admin/users?per_page=2&page=2", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"c@example.com"`)
	assert.NotContains(t, rr.Body.String(), `"a@example.com"`)
	assert.Contains(t, rr.Body.String(), `"totalPages":2`)

	rr = f.do(http.MethodGet, "/admin/users/2", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"b@example.com"`)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/admin/users/99", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/admin/users/abc", "").Code)
}

func TestSetActive(t *testing.T) {
	f := newFixture(allowAll{}, admin)
	_, _ = f.repo.CreateUser(context.Background(), "Admin", "admin@example.com", "x")
	_, _ = f.repo.CreateUser(context.Background(), "Author", "author@example.com", "x")

	rr := f.do(http.MethodPut, "/admin/users/2/active", `{"active":false}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, f.repo.users[2].IsActive)
	assert.Equal(t, 1, f.cache.invalidations)
	require.Len(t, f.recorder.entries, 1)
	assert.Equal(t, "user.deactivated", f.recorder.entries[0].Event)

	assert.Equal(t, http.StatusUnprocessableEntity, f.do(http.MethodPut, "/admin/users/1/active", `{"active":false}`).Code)
	assert.True(t, f.repo.users[1].IsActive)
	assert.Equal(t, 1, f.cache.invalidations)

	assert.Equal(t, http.StatusUnprocessableEntity, f.do(http.MethodPut, "/admin/users/2/active", `{}`).Code)
}

func TestSetActiveFailsWhenPrincipalsStayCached(t *testing.T) {
	f := newFixture(allowAll{}, admin)
	_, _ = f.repo.CreateUser(context.Background(), "Admin", "admin@example.com", "x")
	_, _ = f.repo.CreateUser(context.Background(), "Author", "author@example.com", "x")
	f.cache.err = errors.New("redis down")

	assert.Equal(t, http.StatusInternalServerError, f.do(http.MethodPut, "/admin/users/2/active", `{"active":false}`).Code)
	assert.Empty(t, f.recorder.entries)
}

func TestHandlerHonoursPolicyGuard(t *testing.T) {
	f := newFixture(allowAll{denied: map[authz.Action]bool{authz.ActionCreate: true}}, admin)

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPost, "/admin/users", `{"name":"A","email":"a@example.com","password":"secret123"}`).Code)
	assert.Empty(t, f.repo.users)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/admin/users", "").Code)
}
