package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSimulationNotFound indicates the engine doesn't know the id.
	ErrSimulationNotFound = errors.New("simulation not found")
)

// ServerError is a structured error body returned by the engine for a
// well-formed but failed request.
type ServerError struct {
	StatusCode int    `json:"-"`
	ErrorType  string `json:"error_type"`
	Detail     string `json:"detail"`
}

func (e *ServerError) Error() string {
	if e.ErrorType == "" {
		return fmt.Sprintf("engine error (%d): %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("engine error (%d) %s: %s", e.StatusCode, e.ErrorType, e.Detail)
}

// Is lets errors.Is(err, ErrSimulationNotFound) match a structured 404.
func (e *ServerError) Is(target error) bool {
	return target == ErrSimulationNotFound && e.StatusCode == http.StatusNotFound
}

// TransportError wraps a failure to reach the engine at all: connection
// refused, timeout, or a response body that couldn't be read.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
