package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

var (
	// ErrGatewayUnavailable is returned when the model gateway could not be reached after retries
	ErrGatewayUnavailable = errors.New("model gateway unavailable")
	// ErrMalformedResponse is returned when a model response carries no usable structured payload
	ErrMalformedResponse = errors.New("malformed model response")
	// ErrValidation is returned for configuration or input that fails validation
	ErrValidation = errors.New("validation error")
	// ErrStoreWrite is returned when a finished record could not be persisted
	ErrStoreWrite = errors.New("store write failed")
)

// GatewayErrorKind distinguishes the ways a gateway call can fail
type GatewayErrorKind string

const (
	GatewayTimeout         GatewayErrorKind = "timeout"
	GatewayConnectionError GatewayErrorKind = "connection_error"
	GatewayServiceError    GatewayErrorKind = "service_error"
)

// GatewayError is a typed failure from a single gateway call
type GatewayError struct {
	Kind   GatewayErrorKind
	Detail string
	Err    error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway %s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("gateway %s: %s", e.Kind, e.Detail)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// NewServiceError builds a GatewayError for a service-side failure such as a non-2xx status
func NewServiceError(detail string, err error) *GatewayError {
	return &GatewayError{Kind: GatewayServiceError, Detail: detail, Err: err}
}

// ClassifyGatewayError wraps a transport error from a gateway call into a GatewayError.
// Errors that are already GatewayErrors are returned unchanged.
func ClassifyGatewayError(detail string, err error) *GatewayError {
	if err == nil {
		return nil
	}
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr
	}

	kind := GatewayServiceError
	var netErr net.Error
	var urlErr *url.Error
	var opErr *net.OpError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = GatewayTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = GatewayTimeout
	case errors.As(err, &opErr):
		kind = GatewayConnectionError
	case errors.As(err, &urlErr):
		kind = GatewayConnectionError
	}
	return &GatewayError{Kind: kind, Detail: detail, Err: err}
}

// GatewayUnavailableError reports that every gateway attempt for an email failed
type GatewayUnavailableError struct {
	Attempts int
	Last     *GatewayError
}

func (e *GatewayUnavailableError) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", ErrGatewayUnavailable, e.Attempts, e.Last)
}

func (e *GatewayUnavailableError) Unwrap() []error {
	return []error{ErrGatewayUnavailable, e.Last}
}

// ErrorKind maps an error to a stable label for run statistics and metrics
func ErrorKind(err error) string {
	var gwErr *GatewayError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrGatewayUnavailable):
		if errors.As(err, &gwErr) {
			return "gateway_unavailable:" + string(gwErr.Kind)
		}
		return "gateway_unavailable"
	case errors.Is(err, ErrStoreWrite):
		return "store_write"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unexpected"
	}
}
