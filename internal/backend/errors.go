package backend

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed backend call. The comm manager arms its
// backoff on Network errors only; Auth errors are never retried within a
// cycle and Rejected responses prove the backend is alive but unwilling.
type ErrorKind int

const (
	KindNetwork ErrorKind = iota
	KindAuth
	KindRejected
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindRejected:
		return "rejected"
	}
	return "unknown"
}

// APIError is the tagged result of a backend call that did not succeed.
type APIError struct {
	Kind       ErrorKind
	Op         string // request path
	StatusCode int    // zero when the request never got a response
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: HTTP %d", e.Kind, e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// kindOf extracts the kind from an error chain, defaulting to Network so
// unexpected failures stay retryable.
func kindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindNetwork
}

// IsNetwork reports whether the error was a transport-level failure.
func IsNetwork(err error) bool {
	return kindOf(err) == KindNetwork
}

// IsAuth reports whether the backend refused our credentials or signature.
func IsAuth(err error) bool {
	return kindOf(err) == KindAuth
}

// IsRejected reports whether the backend answered but refused the request.
func IsRejected(err error) bool {
	return kindOf(err) == KindRejected
}
