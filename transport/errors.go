package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	storeerrors "github.com/jrsteele09/go-storefront/internal/errors"
)

// APIError is a non-2xx response from the order service.
type APIError struct {
	StatusCode int
	Body       string // raw response body, trimmed
	Message    string // server-supplied message/error field, if any
}

func newAPIError(status int, raw []byte) *APIError {
	body := strings.TrimSpace(string(raw))
	return &APIError{
		StatusCode: status,
		Body:       body,
		Message:    serverMessage(body),
	}
}

func (e *APIError) Error() string {
	detail := e.Message
	if detail == "" {
		detail = e.Body
	}
	if detail == "" {
		detail = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("order service returned %d: %s", e.StatusCode, detail)
}

// Unwrap classifies the response by status code.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return storeerrors.ErrAuthentication
	case http.StatusNotFound:
		return storeerrors.ErrNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return storeerrors.ErrValidation
	case http.StatusConflict:
		return storeerrors.ErrConflict
	}
	return storeerrors.ErrTransport
}

// serverMessage pulls "message" (then "error") out of a JSON object body.
// A JSON string body is unquoted.
func serverMessage(body string) string {
	if body == "" {
		return ""
	}
	var fields struct {
		Message *string `json:"message"`
		Error   *string `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &fields); err == nil {
		if fields.Message != nil && strings.TrimSpace(*fields.Message) != "" {
			return *fields.Message
		}
		if fields.Error != nil && strings.TrimSpace(*fields.Error) != "" {
			return *fields.Error
		}
		return ""
	}
	var text string
	if err := json.Unmarshal([]byte(body), &text); err == nil {
		return strings.TrimSpace(text)
	}
	return ""
}

// Message normalizes err into text fit for display: the server message field,
// then the raw response body, then fallback.
func Message(err error, fallback string) string {
	var apiErr *APIError
	if !storeerrors.As(err, &apiErr) {
		return fallback
	}
	if apiErr.Message != "" {
		return apiErr.Message
	}
	if apiErr.Body != "" {
		return apiErr.Body
	}
	return fallback
}

// Display wraps err with its normalized message, keeping it classifiable.
func Display(err error, fallback string) error {
	return storeerrors.Display(err, Message(err, fallback))
}
