// Package errorpage turns failed requests into structured error payloads and
// renders them as Inertia page objects, JSON or HTML.
package errorpage

import (
	"net/http"
	"strings"
)

// SupportInfo is the contact block shown on error pages.
type SupportInfo struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Reporting controls operator reporting and client error ingestion.
type Reporting struct {
	Enabled          bool `json:"enabled"`
	LogClientErrors  bool `json:"logClientErrors"`
	IncludeUserAgent bool `json:"includeUserAgent"`
	IncludeIPAddress bool `json:"includeIpAddress"`
}

// Retry is advisory retry configuration returned to clients.
type Retry struct {
	AllowedMethods []string `json:"allowedMethods"`
	DelaySeconds   int      `json:"delaySeconds"`
	MaxAttempts    int      `json:"maxAttempts"`
}

// Features toggles error page behaviour.
type Features struct {
	ShowDebugInfo       bool `json:"showDebugInfo"`
	ShowErrorID         bool `json:"showErrorId"`
	ShowRetryButton     bool `json:"showRetryButton"`
	ShowReportButton    bool `json:"showReportButton"`
	EnableErrorBoundary bool `json:"enableErrorBoundary"`
}

// Config is the error pipeline configuration.
type Config struct {
	RenderableStatuses []int
	Messages           map[int]string
	Support            SupportInfo
	Reporting          Reporting
	Retry              Retry
	Features           Features
	// SensitiveHeaders extends the fixed header denylist. Entries cannot
	// remove names from it.
	SensitiveHeaders []string
	// Preview mounts /errors/{status} pages.
	Preview bool
}

// DefaultMessages are the per-status user-facing messages.
func DefaultMessages() map[int]string {
	return map[int]string{
		http.StatusBadRequest:          "Bad Request. The request could not be understood by the server.",
		http.StatusUnauthorized:        "Unauthorized. Authentication is required to access this resource.",
		http.StatusForbidden:           "Forbidden. You don't have permission to access this resource.",
		http.StatusNotFound:            "Page Not Found. The requested page could not be found.",
		StatusPageExpired:              "Page Expired. Please refresh the page and try again.",
		http.StatusTooManyRequests:     "Too Many Requests. Please slow down and try again later.",
		http.StatusInternalServerError: "Server Error. Something went wrong on our end.",
		http.StatusServiceUnavailable:  "Service Unavailable. The server is temporarily unavailable.",
	}
}

// DefaultConfig mirrors the shipped defaults.
func DefaultConfig() Config {
	return Config{
		RenderableStatuses: []int{400, 401, 403, 404, StatusPageExpired, 429, 500, 503},
		Messages:           DefaultMessages(),
		Support:            SupportInfo{Email: "support@example.com"},
		Reporting: Reporting{
			Enabled:          true,
			IncludeUserAgent: true,
		},
		Retry: Retry{
			AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
			DelaySeconds:   3,
			MaxAttempts:    3,
		},
		Features: Features{
			ShowErrorID:         true,
			ShowRetryButton:     true,
			EnableErrorBoundary: true,
		},
	}
}

// StatusPageExpired is the non-standard status used for expired sessions.
const StatusPageExpired = 419

// fixedSensitiveHeaders are never copied into an error context.
var fixedSensitiveHeaders = []string{
	"authorization",
	"proxy-authorization",
	"cookie",
	"set-cookie",
	"x-api-key",
	"x-auth-token",
	"x-csrf-token",
	"x-xsrf-token",
}

// headerDenylist merges the fixed denylist with configured extras.
func (c Config) headerDenylist() map[string]struct{} {
	deny := make(map[string]struct{}, len(fixedSensitiveHeaders)+len(c.SensitiveHeaders))
	for _, name := range fixedSensitiveHeaders {
		deny[name] = struct{}{}
	}
	for _, name := range c.SensitiveHeaders {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			deny[name] = struct{}{}
		}
	}
	return deny
}

func (c Config) renderable(status int) bool {
	for _, s := range c.RenderableStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// StatusText extends http.StatusText with 419.
func StatusText(status int) string {
	if status == StatusPageExpired {
		return "Page Expired"
	}
	return http.StatusText(status)
}
