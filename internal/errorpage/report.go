package errorpage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/sentinel/internal/platform/httpx"
)

// ClientReport is an error captured by the browser.
type ClientReport struct {
	Message   string `json:"message" validate:"required,max=1000"`
	Stack     string `json:"stack" validate:"max=5000"`
	URL       string `json:"url" validate:"required,url,max=500"`
	Line      *int   `json:"line" validate:"omitempty,min=0"`
	Column    *int   `json:"column" validate:"omitempty,min=0"`
	UserAgent string `json:"userAgent" validate:"max=500"`
	Timestamp string `json:"timestamp" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

type reportResponse struct {
	Success  bool                `json:"success"`
	Message  string              `json:"message"`
	ReportID string              `json:"reportId,omitempty"`
	Errors   map[string][]string `json:"errors,omitempty"`
}

var reportValidator = httpx.NewValidator()

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	report, fields := decodeReport(r)
	if len(fields) > 0 {
		httpx.JSON(w, http.StatusUnprocessableEntity, reportResponse{
			Message: "Invalid error report data",
			Errors:  fields,
		})
		return
	}
	if !h.config.Reporting.LogClientErrors {
		httpx.JSON(w, http.StatusForbidden, reportResponse{Message: "Client error reporting is disabled"})
		return
	}

	if h.observer != nil {
		h.observer.ObserveClientReport()
	}
	attrs := []any{
		slog.String("message", report.Message),
		slog.String("url", report.URL),
		slog.String("stack", report.Stack),
		slog.String("timestamp", report.Timestamp),
	}
	if report.Line != nil {
		attrs = append(attrs, slog.Int("line", *report.Line))
	}
	if report.Column != nil {
		attrs = append(attrs, slog.Int("column", *report.Column))
	}
	if h.config.Reporting.IncludeUserAgent {
		ua := report.UserAgent
		if ua == "" {
			ua = r.UserAgent()
		}
		attrs = append(attrs, slog.String("user_agent", ua))
	}
	if h.config.Reporting.IncludeIPAddress {
		attrs = append(attrs, slog.String("ip", clientIP(r)))
	}
	h.logger.Error("Client-side error reported", attrs...)

	httpx.JSON(w, http.StatusOK, reportResponse{
		Success:  true,
		Message:  "Error reported successfully",
		ReportID: GenerateErrorID(),
	})
}

// decodeReport parses and validates the body. Field errors are keyed by the
// JSON field name.
func decodeReport(r *http.Request) (ClientReport, map[string][]string) {
	var report ClientReport
	if err := httpx.DecodeJSON(r, &report); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return report, map[string][]string{
				typeErr.Field: {fmt.Sprintf("The %s field must be a %s.", typeErr.Field, jsonKind(typeErr.Type.Kind().String()))},
			}
		}
		return report, map[string][]string{"body": {"The request body must be a JSON object."}}
	}
	err := httpx.ValidationFromValidator(reportValidator.Struct(report))
	if err == nil {
		return report, nil
	}
	var validation *httpx.ValidationError
	if !errors.As(err, &validation) {
		return report, map[string][]string{"body": {err.Error()}}
	}
	fields := make(map[string][]string, len(validation.Fields))
	for name, msg := range validation.Fields {
		fields[name] = []string{msg}
	}
	return report, fields
}

func jsonKind(kind string) string {
	switch {
	case strings.HasPrefix(kind, "int"), strings.HasPrefix(kind, "uint"):
		return "integer"
	case kind == "ptr":
		return "integer"
	}
	return kind
}

type clientConfigResponse struct {
	Enabled     bool        `json:"enabled"`
	Features    Features    `json:"features"`
	SupportInfo SupportInfo `json:"supportInfo"`
	RetryConfig Retry       `json:"retryConfig"`
}

func (h *Handler) clientConfig(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, clientConfigResponse{
		Enabled:     h.config.Reporting.LogClientErrors,
		Features:    h.config.Features,
		SupportInfo: h.config.Support,
		RetryConfig: h.config.Retry,
	})
}
