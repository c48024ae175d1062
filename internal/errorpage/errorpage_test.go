package errorpage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/sentinel/internal/authz"
	"github.com/odyssey-erp/sentinel/internal/platform/httpx"
	"github.com/odyssey-erp/sentinel/internal/view"
)

type fakeTemplates struct {
	names   map[string]bool
	failing map[string]bool
	calls   []string
}

func newFakeTemplates(names ...string) *fakeTemplates {
	f := &fakeTemplates{names: map[string]bool{}, failing: map[string]bool{}}
	for _, n := range names {
		f.names[n] = true
	}
	return f
}

func (f *fakeTemplates) Has(name string) bool { return f.names[name] }

func (f *fakeTemplates) Execute(name string, data view.TemplateData) ([]byte, error) {
	f.calls = append(f.calls, name)
	if f.failing[name] {
		return nil, fmt.Errorf("boom in %s", name)
	}
	page := data.Data.(Page)
	return []byte("<html>" + name + ":" + page.Props.ErrorID + "</html>"), nil
}

type countingObserver struct {
	responses map[int]int
	reported  int
	reports   int
}

func (o *countingObserver) ObserveErrorResponse(status int, reported bool) {
	if o.responses == nil {
		o.responses = map[int]int{}
	}
	o.responses[status]++
	if reported {
		o.reported++
	}
}

func (o *countingObserver) ObserveClientReport() { o.reports++ }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodePage(t *testing.T, rec *httptest.ResponseRecorder) Page {
	t.Helper()
	var page Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	return page
}

var errorIDPattern = regexp.MustCompile(`^ERR-\d{8}-\d{6}-[0-9A-F]{6}$`)

func TestCanRetry(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.CanRetry(http.MethodGet))
	assert.True(t, cfg.CanRetry("head"))
	assert.False(t, cfg.CanRetry(http.MethodPost))
	assert.False(t, cfg.CanRetry(""))

	cfg.Retry.AllowedMethods = nil
	assert.False(t, cfg.CanRetry(http.MethodGet))
}

func TestGenerateErrorIDFormatAndUniqueness(t *testing.T) {
	seen := make(map[string]struct{}, 200)
	for i := 0; i < 200; i++ {
		id := GenerateErrorID()
		assert.Regexp(t, errorIDPattern, id)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
	fixed := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	assert.True(t, strings.HasPrefix(newErrorID(fixed), "ERR-20250304-050607-"))
}

func TestBuildPayloadDebugToggle(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/reports?id=7", nil)
	failure := httpx.Trace(errors.New("database exploded"))
	now := time.Date(2025, 1, 2, 3, 4, 5, 6_000_000, time.UTC)

	cfg := DefaultConfig()
	payload := cfg.BuildPayload(req, failure, Classification{Status: http.StatusInternalServerError}, now)
	assert.Nil(t, payload.Debug)
	assert.Nil(t, payload.Context.Exception)
	assert.Equal(t, "2025-01-02T03:04:05.006Z", payload.Timestamp)
	assert.Equal(t, "Server Error. Something went wrong on our end.", payload.Message)
	assert.Equal(t, "http://example.com/reports?id=7", payload.Context.URL)
	assert.False(t, payload.CanRetry)

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"debug":null`)
	assert.NotContains(t, string(raw), "errorpage_test.go")

	cfg.Features.ShowDebugInfo = true
	payload = cfg.BuildPayload(req, failure, Classification{Status: http.StatusInternalServerError}, now)
	require.NotNil(t, payload.Debug)
	assert.Equal(t, "*errors.errorString", payload.Debug.Exception)
	assert.Equal(t, "database exploded", payload.Debug.Message)
	assert.True(t, strings.HasSuffix(payload.Debug.File, "errorpage_test.go"))
	assert.Positive(t, payload.Debug.Line)
	assert.LessOrEqual(t, len(payload.Debug.Trace), 5)
	require.NotNil(t, payload.Context.Exception)
}

func TestSensitiveHeadersNeverLeak(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("Cookie", "session=abc")
	req.Header.Set("X-CSRF-Token", "tok")
	req.Header.Set("X-Api-Key", "key")
	req.Header.Set("X-Tenant-Secret", "tenant")
	req.Header.Set("Accept-Language", "en")

	cfg := DefaultConfig()
	cfg.SensitiveHeaders = []string{"X-Tenant-Secret", ""}
	ctx := cfg.BuildContext(req, nil, time.Now())

	assert.Equal(t, []string{"accept-language"}, ctx.HeaderNames())
	raw, err := json.Marshal(ctx)
	require.NoError(t, err)
	for _, secret := range []string{"Bearer secret", "session=abc", "tok", "key", "tenant"} {
		assert.NotContains(t, string(raw), secret)
	}
}

func TestBuildContextUserAndNetwork(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.RemoteAddr = "10.1.2.3:4567"
	req.Header.Set("User-Agent", "healthcheck/1.0")
	req.Header.Set("Referer", "http://example.com/home")
	req = req.WithContext(authz.WithPrincipal(req.Context(),
		authz.NewPrincipal(9, "Ada", "ada@example.com", []string{"Editor"}, nil)))

	cfg := DefaultConfig()
	ctx := cfg.BuildContext(req, nil, time.Now())
	assert.True(t, ctx.IsAuthenticated)
	assert.Equal(t, int64(9), ctx.UserID)
	assert.Equal(t, "ada@example.com", ctx.UserEmail)
	assert.Equal(t, "healthcheck/1.0", ctx.UserAgent)
	assert.Empty(t, ctx.IP)
	assert.True(t, ctx.CanGoBack)
	assert.Equal(t, "http://example.com/home", ctx.PreviousURL)

	cfg.Reporting.IncludeIPAddress = true
	cfg.Reporting.IncludeUserAgent = false
	ctx = cfg.BuildContext(req, nil, time.Now())
	assert.Equal(t, "10.1.2.3", ctx.IP)
	assert.Empty(t, ctx.UserAgent)
}

func TestClassifier(t *testing.T) {
	c := Classifier{ReportingEnabled: true}
	cases := []struct {
		err      error
		status   int
		expected bool
	}{
		{httpx.ErrNotFound, 404, true},
		{fmt.Errorf("wrap: %w", httpx.ErrForbidden), 403, true},
		{httpx.ErrUnauthorized, 401, true},
		{&httpx.ValidationError{Fields: map[string]string{"a": "b"}}, 422, true},
		{httpx.ErrSessionExpired, 419, true},
		{httpx.ErrTooManyRequests, 429, true},
		{httpx.ErrServiceUnavailable, 503, true},
		{httpx.Abort(418, "teapot"), 418, true},
		{&httpx.ResponseError{Status: 302}, 302, true},
		{errors.New("boom"), 500, false},
	}
	for _, tc := range cases {
		got := c.Classify(tc.err)
		assert.Equal(t, tc.status, got.Status, "%v", tc.err)
		assert.Equal(t, tc.expected, got.Expected, "%v", tc.err)
		assert.Equal(t, !tc.expected, got.Report, "%v", tc.err)
	}
	assert.False(t, Classifier{}.Classify(errors.New("boom")).Report)
}

func TestRenderNotFoundForGuest(t *testing.T) {
	tpl := newFakeTemplates("errors/404", "errors/default")
	obs := &countingObserver{}
	h := NewHandler(DefaultConfig(), tpl, discardLogger(), obs)

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.NotFound(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	page := decodePage(t, rec)
	assert.Equal(t, "errors/404", page.Component)
	assert.Equal(t, "/missing", page.URL)
	assert.Equal(t, 404, page.Props.Status)
	assert.False(t, page.Props.CanRetry)
	assert.Nil(t, page.Props.Debug)
	assert.False(t, page.Props.Context.IsAuthenticated)
	assert.Regexp(t, errorIDPattern, page.Props.ErrorID)
	assert.Equal(t, 1, obs.responses[404])
	assert.Zero(t, obs.reported)
}

func TestDebugStaysHiddenForExpectedFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Features.ShowDebugInfo = true
	h := NewHandler(cfg, newFakeTemplates("errors/default"), discardLogger(), nil)

	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", httpx.ErrNotFound, http.StatusNotFound},
		{"unauthenticated", httpx.ErrUnauthorized, http.StatusUnauthorized},
		{"abort", httpx.Abort(http.StatusForbidden, "nope"), http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/missing", nil)
			req.Header.Set("Accept", "application/json")
			rec := httptest.NewRecorder()
			h.Render(rec, req, httpx.Trace(tc.err))

			require.Equal(t, tc.status, rec.Code)
			page := decodePage(t, rec)
			assert.Nil(t, page.Props.Debug)
			assert.Nil(t, page.Props.Context.Exception)
		})
	}

	validation := httpx.Trace(&httpx.ValidationError{Fields: map[string]string{"email": "required"}})
	payload := cfg.BuildPayload(httptest.NewRequest(http.MethodPost, "/users", nil), validation, Classifier{}.Classify(validation), time.Now())
	assert.Equal(t, http.StatusUnprocessableEntity, payload.Status)
	assert.Nil(t, payload.Debug)
}

func TestRenderSessionExpiredRetriesWithGet(t *testing.T) {
	tpl := newFakeTemplates("errors/419")
	h := NewHandler(DefaultConfig(), tpl, discardLogger(), nil)

	req := httptest.NewRequest(http.MethodPost, "/posts", nil)
	req.Header.Set("X-Inertia", "true")
	rec := httptest.NewRecorder()
	h.Render(rec, req, httpx.ErrSessionExpired)

	require.Equal(t, StatusPageExpired, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("X-Inertia"))
	page := decodePage(t, rec)
	assert.Equal(t, "errors/419", page.Component)
	assert.True(t, page.Props.CanRetry)
	assert.Equal(t, "Page Expired. Please refresh the page and try again.", page.Props.Message)
}

func TestRenderTooManyRequestsRetriesOriginalMethod(t *testing.T) {
	h := NewHandler(DefaultConfig(), newFakeTemplates("errors/default"), discardLogger(), nil)

	get := httptest.NewRequest(http.MethodGet, "/", nil)
	get.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.Render(rec, get, httpx.ErrTooManyRequests)
	assert.True(t, decodePage(t, rec).Props.CanRetry)

	post := httptest.NewRequest(http.MethodPost, "/", nil)
	post.Header.Set("Accept", "application/json")
	rec = httptest.NewRecorder()
	h.Render(rec, post, httpx.ErrTooManyRequests)
	assert.False(t, decodePage(t, rec).Props.CanRetry)
}

func TestRenderFallbackChain(t *testing.T) {
	t.Run("missing status template uses default", func(t *testing.T) {
		tpl := newFakeTemplates("errors/default")
		h := NewHandler(DefaultConfig(), tpl, discardLogger(), nil)
		rec := httptest.NewRecorder()
		h.Render(rec, httptest.NewRequest(http.MethodGet, "/x", nil), httpx.ErrForbidden)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "errors/default:ERR-")
		assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	})

	t.Run("failing status template uses default", func(t *testing.T) {
		tpl := newFakeTemplates("errors/403", "errors/default")
		tpl.failing["errors/403"] = true
		h := NewHandler(DefaultConfig(), tpl, discardLogger(), nil)
		rec := httptest.NewRecorder()
		h.Render(rec, httptest.NewRequest(http.MethodGet, "/x", nil), httpx.ErrForbidden)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, []string{"errors/403", "errors/default"}, tpl.calls)
		assert.Contains(t, rec.Body.String(), "errors/default")
	})

	t.Run("every template failing writes raw", func(t *testing.T) {
		tpl := newFakeTemplates("errors/403", "errors/default")
		tpl.failing["errors/403"] = true
		tpl.failing["errors/default"] = true
		h := NewHandler(DefaultConfig(), tpl, discardLogger(), nil)
		rec := httptest.NewRecorder()
		h.Render(rec, httptest.NewRequest(http.MethodGet, "/x", nil), httpx.ErrForbidden)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "Forbidden\n", rec.Body.String())
	})

	t.Run("no templates writes raw", func(t *testing.T) {
		h := NewHandler(DefaultConfig(), nil, discardLogger(), nil)
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Accept", "application/json")
		rec := httptest.NewRecorder()
		h.Render(rec, req, httpx.ErrNotFound)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "application/problem+json; charset=utf-8", rec.Header().Get("Content-Type"))
	})
}

func TestRenderUnrenderableStatusesPassThrough(t *testing.T) {
	tpl := newFakeTemplates("errors/default")
	h := NewHandler(DefaultConfig(), tpl, discardLogger(), nil)

	rec := httptest.NewRecorder()
	h.Render(rec, httptest.NewRequest(http.MethodPost, "/posts", nil),
		&httpx.ValidationError{Fields: map[string]string{"title": "The title field is required."}})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body struct {
		Errors map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "The title field is required.", body.Errors["title"])

	rec = httptest.NewRecorder()
	h.Render(rec, httptest.NewRequest(http.MethodGet, "/", nil), &httpx.ResponseError{
		Status: http.StatusFound,
		Header: http.Header{"Location": []string{"/login"}},
	})
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	h.MethodNotAllowed(rec, httptest.NewRequest(http.MethodDelete, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Empty(t, tpl.calls)
}

func TestRenderWithEmbeddedTemplates(t *testing.T) {
	engine, err := view.NewEngine()
	require.NoError(t, err)
	h := NewHandler(DefaultConfig(), engine, discardLogger(), nil)

	req := httptest.NewRequest(http.MethodGet, "/secret", nil)
	req.Header.Set("Referer", "http://example.com/home")
	rec := httptest.NewRecorder()
	h.Render(rec, req, httpx.ErrForbidden)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "errors/403")
	assert.Contains(t, body, "ERR-")
}

func TestRecovererRendersServerError(t *testing.T) {
	obs := &countingObserver{}
	cfg := DefaultConfig()
	cfg.Features.ShowDebugInfo = true
	h := NewHandler(cfg, newFakeTemplates("errors/500"), discardLogger(), obs)

	panicky := h.Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))
	req := httptest.NewRequest(http.MethodGet, "/explode", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	panicky.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	page := decodePage(t, rec)
	require.NotNil(t, page.Props.Debug)
	assert.Equal(t, "*errorpage.PanicError", page.Props.Debug.Exception)
	assert.Equal(t, "panic: kaboom", page.Props.Debug.Message)
	assert.True(t, strings.HasSuffix(page.Props.Debug.File, "errorpage_test.go"))
	assert.Equal(t, 1, obs.reported)
}

func TestRecovererRepanicsOnAbortHandler(t *testing.T) {
	h := NewHandler(DefaultConfig(), nil, discardLogger(), nil)
	aborting := h.Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		aborting.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestWrap(t *testing.T) {
	h := NewHandler(DefaultConfig(), nil, discardLogger(), nil)
	ok := h.Wrap(func(w http.ResponseWriter, _ *http.Request) error {
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
	rec := httptest.NewRecorder()
	ok(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	failing := h.Wrap(func(http.ResponseWriter, *http.Request) error {
		return fmt.Errorf("load: %w", httpx.ErrNotFound)
	})
	rec = httptest.NewRecorder()
	failing(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
