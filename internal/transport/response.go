package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"merry/pkg/logger"
)

// Response is a fully-buffered HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the response carries a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// HTTPError carries a non-2xx status and a user-facing message extracted from
// the error body, or a status-derived fallback.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string { return e.Message }

// IsAuthError reports whether err is an HTTP 401 from the backend.
func IsAuthError(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Status == http.StatusUnauthorized
}

// errorBody is the backend's error convention: a JSON object with a detail or
// message field.
type errorBody struct {
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

// Decode interprets a buffered response. Non-2xx statuses become an
// *HTTPError with the best message available. On success the body is decoded
// into out; an empty or malformed body counts as an empty object, not a
// failure.
func Decode(resp *Response, out any) error {
	if !resp.OK() {
		return errorFromResponse(resp)
	}
	if out == nil {
		return nil
	}
	body := bytes.TrimSpace(resp.Body)
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		logger.Sugar.Warnf("Malformed JSON in %d response, treating as empty: %v", resp.StatusCode, err)
	}
	return nil
}

func errorFromResponse(resp *Response) *HTTPError {
	var eb errorBody
	if err := json.Unmarshal(resp.Body, &eb); err == nil {
		if eb.Detail != "" {
			return &HTTPError{Status: resp.StatusCode, Message: eb.Detail}
		}
		if eb.Message != "" {
			return &HTTPError{Status: resp.StatusCode, Message: eb.Message}
		}
	}
	return &HTTPError{Status: resp.StatusCode, Message: statusMessage(resp.StatusCode)}
}

func statusMessage(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return "Your session has expired. Please sign in again."
	case status == http.StatusForbidden:
		return "Access denied"
	case status == http.StatusNotFound:
		return "Not found"
	case status >= 500:
		return "Server error. Please try again."
	default:
		return fmt.Sprintf("Request failed with status %d", status)
	}
}
