package nexhealth

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the scheduling API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("nexhealth: %s (%s, status %d)", e.Message, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("nexhealth: %s (status %d)", e.Message, e.StatusCode)
}

// IsNotFound reports whether the error is a 404 from the scheduling API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsConflict reports whether the error means the slot or hold was lost to a
// competing booking (409, or 410 for a hold that already lapsed server-side).
func IsConflict(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusConflict || apiErr.StatusCode == http.StatusGone
}

// IsRateLimit reports whether the scheduling API throttled the request.
func IsRateLimit(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}
