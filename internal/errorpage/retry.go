package errorpage

import (
	"errors"
	"net/http"
	"strings"

	"github.com/odyssey-erp/sentinel/internal/platform/httpx"
)

// CanRetry reports whether a request with method may safely be repeated.
func (c Config) CanRetry(method string) bool {
	if method == "" {
		return false
	}
	for _, allowed := range c.Retry.AllowedMethods {
		if strings.EqualFold(allowed, method) {
			return true
		}
	}
	return false
}

// retryMethod picks the request that would recover from err. An expired page
// is recovered by reloading it, transient failures by repeating the original
// request; other failures are not recoverable by retrying and yield "".
func retryMethod(r *http.Request, err error, status int) string {
	var hint httpx.RetryMethoder
	if errors.As(err, &hint) {
		return hint.RetryMethod()
	}
	switch status {
	case StatusPageExpired:
		return http.MethodGet
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return r.Method
	}
	return ""
}
