package errorpage

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/odyssey-erp/sentinel/internal/platform/httpx"
)

// Classification is the outcome of classifying a failure.
type Classification struct {
	Status int
	// Expected failures are user triggered and never reported.
	Expected bool
	// Report tells whether operators should be alerted.
	Report bool
}

// Classifier maps errors to statuses and reportability.
type Classifier struct {
	ReportingEnabled bool
}

// Classify inspects err. Unknown errors are unexpected 500s.
func (c Classifier) Classify(err error) Classification {
	if status, ok := expectedStatus(err); ok {
		return Classification{Status: status, Expected: true}
	}
	return Classification{Status: http.StatusInternalServerError, Report: c.ReportingEnabled}
}

func expectedStatus(err error) (int, bool) {
	var (
		response   *httpx.ResponseError
		abort      *httpx.HTTPError
		validation *httpx.ValidationError
	)
	switch {
	case err == nil:
		return 0, false
	case errors.As(err, &response):
		return response.Status, true
	case errors.As(err, &abort):
		return abort.Status, true
	case errors.As(err, &validation), errors.Is(err, httpx.ErrValidation):
		return http.StatusUnprocessableEntity, true
	case errors.Is(err, httpx.ErrUnauthorized):
		return http.StatusUnauthorized, true
	case errors.Is(err, httpx.ErrForbidden):
		return http.StatusForbidden, true
	case errors.Is(err, httpx.ErrNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, httpx.ErrDuplicate):
		return http.StatusConflict, true
	case errors.Is(err, httpx.ErrSessionExpired):
		return StatusPageExpired, true
	case errors.Is(err, httpx.ErrTooManyRequests):
		return http.StatusTooManyRequests, true
	case errors.Is(err, httpx.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, true
	}
	return 0, false
}

// errorType names the concrete type of err, looking through trace wrappers.
func errorType(err error) string {
	for {
		traced, ok := err.(*httpx.TracedError)
		if !ok {
			break
		}
		err = traced.Err
	}
	return fmt.Sprintf("%T", err)
}
