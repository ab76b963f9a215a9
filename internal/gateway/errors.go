package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rcliao/automarket/internal/forms"
)

// maxErrorBody caps how much of a failed response body is kept.
const maxErrorBody = 4 << 10

// User-visible notices.
const (
	NoticeNetwork = "Network error. Please check your connection."
	NoticeGeneric = "Something went wrong. Please try again."
)

// TransportError means no response was received: network failure, DNS,
// timeout or cancellation.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gateway: %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ApplicationError means the server answered with a failure status, or with
// a success status and a body the client could not use.
type ApplicationError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
	Body       string
	Err        error
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("gateway: %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

func (e *ApplicationError) Unwrap() error { return e.Err }

// HTTPStatusCode returns the response status.
func (e *ApplicationError) HTTPStatusCode() int { return e.StatusCode }

// newApplicationError builds an error from a failed response body. The
// message is taken from the first of message, detail or error that holds a
// non-empty string, falling back to the status text.
func newApplicationError(method, path string, status int, body []byte) *ApplicationError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &ApplicationError{
		Method:     method,
		Path:       path,
		StatusCode: status,
		Message:    serverMessage(body, http.StatusText(status)),
		Body:       string(body),
	}
}

func serverMessage(body []byte, fallback string) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err == nil {
		for _, key := range []string{"message", "detail", "error"} {
			var s string
			if err := json.Unmarshal(obj[key], &s); err == nil && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	if fallback == "" {
		return NoticeGeneric
	}
	return fallback
}

// Notice maps an error to the single message shown to the user.
func Notice(err error) string {
	if err == nil {
		return ""
	}
	var verrs forms.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return verrs.First()
	}
	var appErr *ApplicationError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	var tErr *TransportError
	if errors.As(err, &tErr) {
		return NoticeNetwork
	}
	return NoticeGeneric
}
