package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrMalformedResponse is returned when a success response cannot be
// decoded into the expected shape.
var ErrMalformedResponse = errors.New("malformed provider response")

// StatusError is returned for any non-2xx response. Body holds the raw
// payload so callers can surface the provider's own explanation.
type StatusError struct {
	StatusCode int
	Method     string
	Path       string
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf(
		"provider returned %d on %s %s: %s",
		e.StatusCode, e.Method, e.Path, e.Detail(),
	)
}

// Detail extracts a readable message from the error payload, falling back
// to the raw body.
func (e *StatusError) Detail() string {
	var p ErrorPayload
	if json.Unmarshal(e.Body, &p) == nil {
		var parts []string
		for _, s := range []string{p.Description, p.Detail, p.Message} {
			if s != "" {
				parts = append(parts, s)
				break
			}
		}
		for _, v := range p.Violations {
			parts = append(parts, fmt.Sprintf("%s: %s", v.PropertyPath, v.Message))
		}
		if len(parts) == 0 && p.Title != "" {
			parts = append(parts, p.Title)
		}
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}
	}

	body := strings.TrimSpace(string(e.Body))
	if body == "" {
		return http.StatusText(e.StatusCode)
	}
	return body
}

// StatusCode returns the HTTP status of err if it is (or wraps) a
// StatusError, and 0 otherwise.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
