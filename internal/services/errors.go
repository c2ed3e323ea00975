package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/desertthunder/harmony/internal/shared"
	"github.com/goccy/go-json"
)

// maxErrorBody bounds the response body kept on an [APIError].
const maxErrorBody = 256

// APIError is a non-2xx provider response.
type APIError struct {
	Status  int
	Message string
	Reason  string
	Body    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Reason != "" {
		return fmt.Sprintf("spotify API error: status %d: %s (%s)", e.Status, msg, e.Reason)
	}
	return fmt.Sprintf("spotify API error: status %d: %s", e.Status, msg)
}

func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized:
		return shared.ErrNotAuthenticated
	case e.Status >= 500:
		return shared.ErrServiceUnavailable
	default:
		return shared.ErrAPIRequest
	}
}

// newAPIError parses the provider's {"error": {...}} envelope when present.
func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status, Body: shared.Truncate(string(body), maxErrorBody)}

	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Error) == 0 {
		return apiErr
	}

	var detail struct {
		Message string `json:"message"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal(envelope.Error, &detail); err == nil {
		apiErr.Message = detail.Message
		apiErr.Reason = detail.Reason
		return apiErr
	}

	// token endpoint errors use a bare string
	var code string
	if err := json.Unmarshal(envelope.Error, &code); err == nil {
		apiErr.Message = code
	}
	return apiErr
}

// IsUnauthorized reports whether err is a 401 from the provider.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// IsRestriction reports whether err is a playback restriction: a 403, or a
// response whose message or reason names a restriction.
func IsRestriction(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Status == http.StatusForbidden {
		return true
	}
	text := strings.ToLower(apiErr.Message + " " + apiErr.Reason)
	return strings.Contains(text, "restrict")
}
