package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// TransportError is returned when no response was received from the server
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request %s %s failed: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError is returned when the server answered with a failure status
type APIError struct {
	StatusCode int
	// Detail is the server-provided message, empty when the body carried none
	Detail string
	Body   []byte
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// IsNotFound reports whether err is an APIError with status 404
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func newAPIError(status int, body []byte) *APIError {
	return &APIError{
		StatusCode: status,
		Detail:     extractDetail(body),
		Body:       body,
	}
}

// extractDetail understands FastAPI style {"detail": ...} bodies as well as
// {"error": {"code", "message"}} envelopes and plain {"message": ...}.
func extractDetail(body []byte) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}

	if len(payload.Detail) > 0 && !bytes.Equal(payload.Detail, []byte("null")) {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil {
			return s
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, payload.Detail); err == nil {
			return compact.String()
		}
	}
	if payload.Error != nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return payload.Message
}
