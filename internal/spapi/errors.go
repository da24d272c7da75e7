package spapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrTransient marks failures worth retrying for read-only calls:
	// network errors, timeouts and 5xx responses. No 4xx is transient.
	ErrTransient = errors.New("transient api failure")

	// ErrNotAvailable marks a slot or date that was taken between selection and submission.
	ErrNotAvailable = errors.New("slot no longer available")

	// ErrBadProviderData marks catalog data the booking flow cannot work with.
	ErrBadProviderData = errors.New("provider data unusable")
)

// FieldError is one entry of the server's validation error list.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// APIError is a non-2xx response. Message is the server text, unmodified.
type APIError struct {
	Status  int
	Message string
	Code    string
	Fields  []FieldError
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// Is lets callers classify the response with errors.Is.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Status >= http.StatusInternalServerError
	case ErrNotAvailable:
		if e.Status == http.StatusConflict || isNotAvailableCode(e.Code) {
			return true
		}
		for _, f := range e.Fields {
			if isNotAvailableCode(f.Code) {
				return true
			}
		}
	}
	return false
}

// IsClientError reports a 4xx response, which must never be retried.
func (e *APIError) IsClientError() bool {
	return e.Status >= 400 && e.Status < 500
}

// UserMessage joins the server message and field messages for display.
func (e *APIError) UserMessage() string {
	parts := make([]string, 0, len(e.Fields)+1)
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	for _, f := range e.Fields {
		if f.Message != "" && f.Message != e.Message {
			parts = append(parts, f.Message)
		}
	}
	return strings.Join(parts, "\n")
}

func isNotAvailableCode(code string) bool {
	switch code {
	case "not_available", "slot_unavailable", "slot_taken":
		return true
	}
	return false
}
