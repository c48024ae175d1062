package errorpage

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/odyssey-erp/sentinel/internal/platform/httpx"
	"github.com/odyssey-erp/sentinel/internal/view"
)

// Templates resolves and executes page templates.
type Templates interface {
	Has(name string) bool
	Execute(name string, data view.TemplateData) ([]byte, error)
}

const defaultComponent = "errors/default"

// Renderer writes payloads using the status template, then the default
// template, then the raw response.
type Renderer struct {
	templates Templates
	logger    *slog.Logger
}

// NewRenderer builds a renderer. templates may be nil, in which case every
// response is raw.
func NewRenderer(templates Templates, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{templates: templates, logger: logger}
}

// candidates lists the components that exist for status, most specific first.
func (rd *Renderer) candidates(status int) []string {
	if rd.templates == nil {
		return nil
	}
	var out []string
	if name := "errors/" + strconv.Itoa(status); rd.templates.Has(name) {
		out = append(out, name)
	}
	if rd.templates.Has(defaultComponent) {
		out = append(out, defaultComponent)
	}
	return out
}

// Write renders payload for r. JSON and Inertia clients receive the page
// object; browsers receive HTML. When no template is usable, the raw
// response for err is written instead.
func (rd *Renderer) Write(w http.ResponseWriter, r *http.Request, payload Payload, err error) {
	components := rd.candidates(payload.Status)
	if len(components) == 0 {
		WriteRaw(w, r, payload.Status, err)
		return
	}
	page := Page{Component: components[0], Props: payload, URL: r.URL.RequestURI()}

	w.Header().Add("Vary", "X-Inertia")
	if httpx.WantsJSON(r) {
		if r.Header.Get("X-Inertia") != "" {
			w.Header().Set("X-Inertia", "true")
		}
		httpx.JSON(w, payload.Status, page)
		return
	}

	for _, component := range components {
		page.Component = component
		body, execErr := rd.templates.Execute(component, view.TemplateData{
			Title:       StatusText(payload.Status),
			CurrentPath: r.URL.Path,
			Data:        page,
		})
		if execErr != nil {
			rd.logger.Warn("error template failed", slog.String("component", component), slog.Any("error", execErr))
			continue
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(payload.Status)
		_, _ = w.Write(body)
		return
	}
	WriteRaw(w, r, payload.Status, err)
}

// WriteRaw writes the unwrapped response for err: a pre-formed response
// verbatim, validation errors as JSON, and a minimal status body otherwise.
func WriteRaw(w http.ResponseWriter, r *http.Request, status int, err error) {
	var response *httpx.ResponseError
	if errors.As(err, &response) {
		for name, values := range response.Header {
			for _, v := range values {
				w.Header().Add(name, v)
			}
		}
		w.WriteHeader(response.Status)
		_, _ = w.Write(response.Body)
		return
	}
	var validation *httpx.ValidationError
	if errors.As(err, &validation) {
		httpx.JSON(w, status, map[string]any{
			"message": "The given data was invalid.",
			"errors":  validation.Fields,
		})
		return
	}
	if httpx.WantsJSON(r) {
		httpx.Problem(w, status, StatusText(status), "")
		return
	}
	http.Error(w, StatusText(status), status)
}
