package errorpage

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/sentinel/internal/platform/httpx"
)

// Observer counts rendered error responses.
type Observer interface {
	ObserveErrorResponse(status int, reported bool)
	ObserveClientReport()
}

// Handler is the request-path entry point of the error pipeline.
type Handler struct {
	config     Config
	classifier Classifier
	renderer   *Renderer
	logger     *slog.Logger
	observer   Observer
	now        func() time.Time
}

// NewHandler wires the pipeline. observer may be nil.
func NewHandler(cfg Config, templates Templates, logger *slog.Logger, observer Observer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		config:     cfg,
		classifier: Classifier{ReportingEnabled: cfg.Reporting.Enabled},
		renderer:   NewRenderer(templates, logger),
		logger:     logger,
		observer:   observer,
		now:        time.Now,
	}
}

// Config returns the active configuration.
func (h *Handler) Config() Config {
	return h.config
}

// Render classifies err, builds the payload and writes the response.
func (h *Handler) Render(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		err = errors.New("errorpage: render called without error")
	}
	cls := h.classifier.Classify(err)
	if h.observer != nil {
		h.observer.ObserveErrorResponse(cls.Status, cls.Report)
	}

	now := h.now()
	ctx := h.config.BuildContext(r, err, now)
	if !h.config.renderable(cls.Status) {
		h.log(r, cls, err, ctx, "")
		WriteRaw(w, r, cls.Status, err)
		return
	}
	payload := h.config.buildPayload(r, err, cls, ctx, now)
	h.log(r, cls, err, ctx, payload.ErrorID)
	h.renderer.Write(w, r, payload, err)
}

// log writes one line per failure. ctx is the context already built for
// the payload, exception included.
func (h *Handler) log(r *http.Request, cls Classification, err error, ctx Context, errorID string) {
	attrs := []any{
		slog.Int("status", cls.Status),
		slog.String("method", r.Method),
		slog.String("url", ctx.URL),
		slog.Any("error", err),
	}
	if errorID != "" {
		attrs = append(attrs, slog.String("error_id", errorID))
	}
	if cls.Status < http.StatusInternalServerError {
		h.logger.Debug("request failed", attrs...)
		return
	}
	attrs = append(attrs,
		slog.Bool("reported", cls.Report),
		slog.String("user_agent", r.UserAgent()),
		slog.Int64("user_id", ctx.UserID),
	)
	if ctx.Exception != nil {
		attrs = append(attrs,
			slog.String("exception", ctx.Exception.Type),
			slog.String("file", ctx.Exception.File),
			slog.Int("line", ctx.Exception.Line),
		)
	}
	h.logger.Error("server error occurred", attrs...)
}

// Wrap adapts an error returning handler.
func (h *Handler) Wrap(fn httpx.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			h.Render(w, r, err)
		}
	}
}

// Recoverer turns panics into 500 error pages.
func (h *Handler) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			err, ok := rec.(error)
			if !ok {
				err = fmt.Errorf("%v", rec)
			}
			h.Render(w, r, httpx.TracePanic(&PanicError{Value: rec, Err: err}))
		}()
		next.ServeHTTP(w, r)
	})
}

// PanicError wraps a recovered panic value.
type PanicError struct {
	Value any
	Err   error
}

func (e *PanicError) Error() string { return "panic: " + e.Err.Error() }

func (e *PanicError) Unwrap() error { return e.Err }

// NotFound renders 404 for unmatched routes.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.Render(w, r, httpx.ErrNotFound)
}

// MethodNotAllowed renders 405 for routes without the requested method.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.Render(w, r, httpx.Abort(http.StatusMethodNotAllowed, ""))
}

// RateLimited renders 429 when httprate rejects a request.
func (h *Handler) RateLimited(w http.ResponseWriter, r *http.Request) {
	h.Render(w, r, httpx.ErrTooManyRequests)
}

// MountRoutes registers client error ingestion, configuration and, when
// enabled, the status preview pages.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/api/errors", func(r chi.Router) {
		r.With(httprate.Limit(10, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByRealIP),
			httprate.WithLimitHandler(h.RateLimited),
		)).Post("/report", h.report)
		r.Get("/config", h.clientConfig)
	})
	if h.config.Preview {
		r.Get("/errors/{status}", h.preview)
	}
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	status, err := strconv.Atoi(chi.URLParam(r, "status"))
	if err != nil || !h.config.renderable(status) {
		h.NotFound(w, r)
		return
	}
	h.Render(w, r, httpx.Abort(status, ""))
}
