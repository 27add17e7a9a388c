package identity

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// APIError is a structured error response from the user-center.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("identity: %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("identity: HTTP %d: %s", e.StatusCode, e.Message)
}

// parseErrorResponse maps a non-2xx response body into a typed error. The
// user-center answers either {"detail": "..."} (FastAPI convention) or
// {"code": "...", "detail": "..."}; anything else falls back to the status text.
func parseErrorResponse(statusCode int, body []byte) error {
	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && (apiErr.Message != "" || apiErr.Code != "") {
		apiErr.StatusCode = statusCode
		return &apiErr
	}

	return &APIError{
		StatusCode: statusCode,
		Message:    http.StatusText(statusCode),
	}
}
