package apiclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// ErrSessionExpired matches every failure that means the user has to log in
// again: a failed refresh, or a 401 on a request that was already replayed.
var ErrSessionExpired = errors.New("session expired, please log in again")

// Request describes one logical API call. The body is kept as bytes so the
// request can be replayed after a refresh.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
	Header http.Header

	retried bool
}

// NewRequest builds a request with a raw body (may be nil)
func NewRequest(method, path string, body []byte) *Request {
	return &Request{Method: method, Path: path, Body: body}
}

// NewJSONRequest builds a request whose body is v encoded as JSON. A nil v
// sends no body.
func NewJSONRequest(method, path string, v interface{}) (*Request, error) {
	if v == nil {
		return NewRequest(method, path, nil), nil
	}
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s %s body: %w", method, path, err)
	}
	return NewRequest(method, path, body), nil
}

// Retried reports whether the request has already been replayed after a
// token refresh.
func (r *Request) Retried() bool {
	return r.retried
}

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// Retried is true when this response came from the replay that follows a
	// successful refresh.
	Retried bool
}

// Decode unmarshals the JSON body into v. An empty body is a no-op.
func (r *Response) Decode(v interface{}) error {
	if v == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Err returns an *HTTPError for any non-2xx status, nil otherwise
func (r *Response) Err() error {
	if r.StatusCode >= 200 && r.StatusCode < 300 {
		return nil
	}
	return newHTTPError(r.StatusCode, r.Body, r.Retried)
}

// HTTPError captures an unexpected status code and the backend's message
type HTTPError struct {
	StatusCode int
	Body       []byte
	Detail     string
	Retried    bool
}

func newHTTPError(status int, body []byte, retried bool) *HTTPError {
	e := &HTTPError{StatusCode: status, Body: body, Retried: retried}

	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil {
			e.Detail = s
		} else {
			e.Detail = string(payload.Detail)
		}
	}
	return e
}

func (e *HTTPError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("unexpected status code: %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.StatusCode, string(e.Body))
}

// Is makes a 401 on an already replayed request match ErrSessionExpired
func (e *HTTPError) Is(target error) bool {
	return target == ErrSessionExpired && e.StatusCode == http.StatusUnauthorized && e.Retried
}

// RefreshError is returned to every caller that was waiting on a refresh
// that failed.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("token expired and refresh failed: %v", e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

func (e *RefreshError) Is(target error) bool {
	return target == ErrSessionExpired
}
