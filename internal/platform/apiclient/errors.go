package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a failed backend call. Pages map each kind to a single
// inline alert or to a fallback value.
type Kind string

const (
	KindNetwork Kind = "network"
	KindTimeout Kind = "timeout"
	KindServer  Kind = "server"
	KindEmpty   Kind = "empty"
)

// Error is returned by every Client call that fails.
type Error struct {
	Kind    Kind
	Status  int
	Method  string
	Path    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("apiclient: %s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("apiclient: %s %s: %s: %v", e.Method, e.Path, e.Kind, e.Err)
	default:
		return fmt.Sprintf("apiclient: %s %s: %s: %s", e.Method, e.Path, e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the Kind of err. Errors that did not come from the client
// are classified by inspection: deadlines are timeouts, anything else is
// treated as a network failure.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	if isTimeout(err) {
		return KindTimeout
	}
	return KindNetwork
}

// IsEmpty reports whether err signals a successful call with no usable result.
func IsEmpty(err error) bool {
	return KindOf(err) == KindEmpty
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func transportError(method, path string, err error) *Error {
	kind := KindNetwork
	if isTimeout(err) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Method: method, Path: path, Err: err}
}

func emptyError(method, path string) *Error {
	return &Error{Kind: KindEmpty, Method: method, Path: path, Message: "empty result"}
}
