package queuemonitor

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/sentinel/internal/platform/httpx"
	"github.com/odyssey-erp/sentinel/internal/shared"
)

// Authorizer guards routes with gates and answers visibility questions.
type Authorizer interface {
	RequireGate(ability string) func(http.Handler) http.Handler
	Allows(r *http.Request, ability string) bool
}

// Handler exposes the queue monitor as JSON.
type Handler struct {
	service *Service
	authz   Authorizer
	errors  httpx.Errors
	logger  *slog.Logger
}

// NewHandler builds the handler.
func NewHandler(service *Service, authorizer Authorizer, errs httpx.Errors, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, authz: authorizer, errors: errs, logger: logger}
}

// MountRoutes registers queue monitor routes. Every route requires access to
// the monitor; each operation has its own gate on top.
func (h *Handler) MountRoutes(r chi.Router) {
	gate := h.authz.RequireGate
	r.Use(gate(shared.PermQueueAccess))

	r.Get("/", h.errors.Wrap(h.listQueues))
	r.With(gate(shared.PermQueueWorkers)).Get("/servers", h.errors.Wrap(h.servers))
	r.With(gate(shared.PermQueueConfigView)).Get("/config", h.errors.Wrap(h.config))
	r.With(gate(shared.PermQueueCancel)).Post("/tasks/{id}/cancel", h.errors.Wrap(h.cancel))

	r.Route("/{queue}", func(r chi.Router) {
		r.With(gate(shared.PermQueueJobDetails)).Get("/tasks", h.errors.Wrap(h.listTasks))
		r.With(gate(shared.PermQueueExport)).Get("/export.csv", h.errors.Wrap(h.export))
		r.With(gate(shared.PermQueueRetry)).Post("/tasks/{id}/retry", h.errors.Wrap(h.retry))
		r.With(gate(shared.PermQueueDelete)).Delete("/tasks/{id}", h.errors.Wrap(h.deleteTask))
		r.With(gate(shared.PermQueueClear)).Delete("/archived", h.errors.Wrap(h.clearArchived))
		r.With(gate(shared.PermQueuePrune)).Delete("/completed", h.errors.Wrap(h.pruneCompleted))
		r.With(gate(shared.PermQueueControl)).Post("/pause", h.errors.Wrap(h.pause))
		r.With(gate(shared.PermQueueControl)).Post("/resume", h.errors.Wrap(h.resume))
	})
}

func (h *Handler) visibility(r *http.Request) Visibility {
	return Visibility{
		Payload:     h.authz.Allows(r, shared.PermQueueJobPayload),
		FailureInfo: h.authz.Allows(r, shared.PermQueueFailedDetails),
	}
}

func (h *Handler) listQueues(w http.ResponseWriter, r *http.Request) error {
	queues, err := h.service.Queues(h.authz.Allows(r, shared.PermQueueStatistics))
	if err != nil {
		return httpx.Trace(err)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": queues})
	return nil
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) error {
	page, _ := shared.PageParams(r.URL.Query())
	tasks, err := h.service.Tasks(chi.URLParam(r, "queue"), r.URL.Query().Get("state"), page, h.visibility(r))
	if err != nil {
		return h.taskErr(err)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": tasks, "page": page})
	return nil
}

func (h *Handler) taskErr(err error) error {
	if errors.Is(err, ErrInvalidState) {
		return &httpx.ValidationError{Fields: map[string]string{"state": "The selected state is invalid."}}
	}
	return httpx.Trace(err)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) error {
	queue := chi.URLParam(r, "queue")
	state := r.URL.Query().Get("state")
	if state == "" {
		state = StateArchived
	}
	vis := h.visibility(r)
	tasks, err := h.service.Tasks(queue, state, 1, vis)
	if err != nil {
		return h.taskErr(err)
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	header := []string{"id", "queue", "type", "state", "retried", "max_retry", "next_process_at"}
	if vis.FailureInfo {
		header = append(header, "last_error", "last_failed_at")
	}
	if vis.Payload {
		header = append(header, "payload")
	}
	if err := writer.Write(header); err != nil {
		return httpx.Trace(err)
	}
	for _, t := range tasks {
		row := []string{t.ID, t.Queue, t.Type, t.State, strconv.Itoa(t.Retried), strconv.Itoa(t.MaxRetry), formatTime(t.NextProcessAt)}
		if vis.FailureInfo {
			row = append(row, deref(t.LastError), formatTime(t.LastFailedAt))
		}
		if vis.Payload {
			row = append(row, deref(t.Payload))
		}
		if err := writer.Write(row); err != nil {
			return httpx.Trace(err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return httpx.Trace(err)
	}
	filename := fmt.Sprintf("queue-%s-%s.csv", queue, state)
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("write queue csv", slog.Any("error", err))
	}
	return nil
}

func (h *Handler) retry(w http.ResponseWriter, r *http.Request) error {
	if err := h.service.Retry(chi.URLParam(r, "queue"), chi.URLParam(r, "id")); err != nil {
		return httpx.Trace(err)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) deleteTask(w http.ResponseWriter, r *http.Request) error {
	if err := h.service.Delete(chi.URLParam(r, "queue"), chi.URLParam(r, "id")); err != nil {
		return httpx.Trace(err)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) clearArchived(w http.ResponseWriter, r *http.Request) error {
	n, err := h.service.ClearArchived(chi.URLParam(r, "queue"))
	if err != nil {
		return httpx.Trace(err)
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"deleted": n})
	return nil
}

func (h *Handler) pruneCompleted(w http.ResponseWriter, r *http.Request) error {
	n, err := h.service.PruneCompleted(chi.URLParam(r, "queue"))
	if err != nil {
		return httpx.Trace(err)
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"deleted": n})
	return nil
}

func (h *Handler) pause(w http.ResponseWriter, r *http.Request) error {
	return h.setPaused(w, r, true)
}

func (h *Handler) resume(w http.ResponseWriter, r *http.Request) error {
	return h.setPaused(w, r, false)
}

func (h *Handler) setPaused(w http.ResponseWriter, r *http.Request, paused bool) error {
	if err := h.service.SetPaused(chi.URLParam(r, "queue"), paused); err != nil {
		return httpx.Trace(err)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) error {
	if err := h.service.Cancel(chi.URLParam(r, "id")); err != nil {
		return httpx.Trace(err)
	}
	w.WriteHeader(http.StatusAccepted)
	return nil
}

func (h *Handler) servers(w http.ResponseWriter, _ *http.Request) error {
	servers, err := h.service.Servers()
	if err != nil {
		return httpx.Trace(err)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": servers})
	return nil
}

func (h *Handler) config(w http.ResponseWriter, _ *http.Request) error {
	httpx.JSON(w, http.StatusOK, h.service.Config())
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
