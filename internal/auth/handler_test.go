package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/sentinel/internal/auth"
	"github.com/odyssey-erp/sentinel/internal/activity"
	"github.com/odyssey-erp/sentinel/internal/authz"
	"github.com/odyssey-erp/sentinel/internal/errorpage"
	"github.com/odyssey-erp/sentinel/internal/shared"
	_ "github.com/odyssey-erp/sentinel/testing"
)

type stubRepo struct {
	user     *auth.User
	sessions map[string]int64
	findErr  error
}

func (s *stubRepo) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(_ context.Context, id string, userID int64, _ time.Time, _, _ string) error {
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(_ context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

type recorder struct{ events []string }

func (r *recorder) Record(_ context.Context, entry activity.Entry) error {
	r.events = append(r.events, entry.Event)
	return nil
}

type fixture struct {
	router   http.Handler
	sessions *shared.SessionManager
	repo     *stubRepo
	recorder *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &stubRepo{
		user:     &auth.User{ID: 7, Name: "Ada", Email: "ada@example.com", PasswordHash: string(hashed), IsActive: true},
		sessions: map[string]int64{},
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)
	errs := errorpage.NewHandler(errorpage.DefaultConfig(), nil, nil, nil)
	rec := &recorder{}
	service := auth.NewService(repo,
		auth.WithThrottle(auth.NewThrottle(client, 3, time.Minute)),
		auth.WithRecorder(rec, nil),
	)
	handler := auth.NewHandler(nil, service, sessions, shared.NewCSRFManager("csrf"), errs)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess, err := sessions.Load(req.Context(), req)
			require.NoError(t, err)
			ctx := shared.ContextWithSession(req.Context(), sess)
			if id := req.Header.Get("X-Test-Principal"); id != "" {
				ctx = authz.WithPrincipal(ctx, authz.NewPrincipal(7, "Ada", "ada@example.com", []string{"Editor"}, []string{"view Post"}))
			}
			rec := httptest.NewRecorder()
			next.ServeHTTP(rec, req.WithContext(ctx))
			require.NoError(t, sessions.Commit(ctx, w, req, sess))
			for k, v := range rec.Header() {
				w.Header()[k] = v
			}
			w.WriteHeader(rec.Code)
			_, _ = w.Write(rec.Body.Bytes())
		})
	})
	r.Route("/auth", handler.MountRoutes)
	return &fixture{router: r, sessions: sessions, repo: repo, recorder: rec}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "test_session" {
			return c
		}
	}
	t.Fatalf("session cookie not set")
	return nil
}

func TestLoginJSON(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"ada@example.com","password":"correct-horse"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		User auth.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(7), body.User.ID)
	assert.NotContains(t, rec.Body.String(), "$2a$")

	cookie := sessionCookie(t, rec)
	check := httptest.NewRequest(http.MethodGet, "/", nil)
	check.AddCookie(cookie)
	sess, err := f.sessions.Load(context.Background(), check)
	require.NoError(t, err)
	assert.Equal(t, "7", sess.User())
	assert.Equal(t, int64(7), f.repo.sessions[sess.ID])
}

func TestLoginRegeneratesSession(t *testing.T) {
	f := newFixture(t)
	first := f.do(httptest.NewRequest(http.MethodGet, "/auth/csrf", nil))
	before := sessionCookie(t, first)

	login := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"ada@example.com","password":"correct-horse"}`))
	login.Header.Set("Content-Type", "application/json")
	login.AddCookie(before)
	after := sessionCookie(t, f.do(login))
	assert.NotEqual(t, before.Value, after.Value)

	stale := httptest.NewRequest(http.MethodGet, "/", nil)
	stale.AddCookie(before)
	sess, err := f.sessions.Load(context.Background(), stale)
	require.NoError(t, err)
	assert.Empty(t, sess.User())
	assert.Empty(t, sess.Get(shared.CSRFSessionKey))
}

func TestLoginFormRedirects(t *testing.T) {
	f := newFixture(t)
	form := url.Values{"email": {"ada@example.com"}, "password": {"correct-horse"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := f.do(req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"ada@example.com","password":"wrong"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := f.do(req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "These credentials do not match our records.")
	assert.Empty(t, f.repo.sessions)
}

func TestLoginValidation(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"not-an-email"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := f.do(req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body struct {
		Errors map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "The email field must be a valid email address.", body.Errors["email"])
	assert.Equal(t, "The password field is required.", body.Errors["password"])
}

func TestLoginStoreFailureIsServerError(t *testing.T) {
	f := newFixture(t)
	f.repo.findErr = errors.New("connection refused")
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"ada@example.com","password":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := f.do(req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestInactiveUserRejected(t *testing.T) {
	f := newFixture(t)
	f.repo.user.IsActive = false
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"ada@example.com","password":"correct-horse"}`))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusUnprocessableEntity, f.do(req).Code)
}

func TestLogoutDestroysSession(t *testing.T) {
	f := newFixture(t)
	login := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"ada@example.com","password":"correct-horse"}`))
	login.Header.Set("Content-Type", "application/json")
	cookie := sessionCookie(t, f.do(login))

	logout := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	logout.Header.Set("Accept", "application/json")
	logout.AddCookie(cookie)
	rec := f.do(logout)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, f.repo.sessions)

	check := httptest.NewRequest(http.MethodGet, "/", nil)
	check.AddCookie(cookie)
	sess, err := f.sessions.Load(context.Background(), check)
	require.NoError(t, err)
	assert.Empty(t, sess.User())
}

func TestMe(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Accept", "application/json")
	assert.Equal(t, http.StatusUnauthorized, f.do(req).Code)

	req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("X-Test-Principal", "7")
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email":"ada@example.com"`)
}

func TestCSRFTokenIssued(t *testing.T) {
	f := newFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/csrf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["token"])
}

func TestLoginThrottledAfterRepeatedFailures(t *testing.T) {
	f := newFixture(t)
	attempt := func(password string) int {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"ada@example.com","password":"`+password+`"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return f.do(req).Code
	}

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusUnprocessableEntity, attempt("wrong"))
	}
	assert.Equal(t, http.StatusTooManyRequests, attempt("correct-horse"))
	assert.Empty(t, f.repo.sessions)
	assert.Empty(t, f.recorder.events)
}

func TestLoginAndLogoutAreRecorded(t *testing.T) {
	f := newFixture(t)
	login := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"ada@example.com","password":"correct-horse"}`))
	login.Header.Set("Content-Type", "application/json")
	cookie := sessionCookie(t, f.do(login))

	logout := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	logout.AddCookie(cookie)
	require.Equal(t, http.StatusSeeOther, f.do(logout).Code)

	assert.Equal(t, []string{"auth.login", "auth.logout"}, f.recorder.events)
}
