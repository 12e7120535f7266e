package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrInvalidRequest marks an action payload that cannot be turned into an
// HTTP request. Such actions are skipped rather than retried.
var ErrInvalidRequest = errors.New("dispatch: invalid request payload")

// Request is the wire shape of a queued action payload.
type Request struct {
	Method string          `json:"method"`
	Path   string          `json:"path"`
	Body   json.RawMessage `json:"body,omitempty"`
}

var allowedMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// DecodeRequest parses and validates an action payload.
func DecodeRequest(payload json.RawMessage) (Request, error) {
	var req Request
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := req.Normalize(); err != nil {
		return Request{}, err
	}
	return req, nil
}

// Normalize upper-cases the method, defaults it to POST and validates the path.
func (r *Request) Normalize() error {
	r.Method = strings.ToUpper(strings.TrimSpace(r.Method))
	if r.Method == "" {
		r.Method = http.MethodPost
	}
	if !allowedMethods[r.Method] {
		return fmt.Errorf("%w: method %q is not a mutation", ErrInvalidRequest, r.Method)
	}
	r.Path = strings.TrimSpace(r.Path)
	if !strings.HasPrefix(r.Path, "/") {
		return fmt.Errorf("%w: path %q must start with /", ErrInvalidRequest, r.Path)
	}
	if len(r.Body) > 0 && !json.Valid(r.Body) {
		return fmt.Errorf("%w: body is not valid JSON", ErrInvalidRequest)
	}
	return nil
}

// Encode renders the request as an action payload.
func (r Request) Encode() (json.RawMessage, error) {
	if err := r.Normalize(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return data, nil
}
