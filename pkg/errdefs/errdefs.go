package errdefs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for wire transport and HTTP mapping.
// Kinds are stable strings: they cross the gateway/worker RPC boundary
// inside the response envelope and must not change between releases.
type Kind string

const (
	KindTenantRequired       Kind = "TenantRequired"
	KindUnknownTenant        Kind = "UnknownTenant"
	KindCrossTenantDenied    Kind = "CrossTenantDenied"
	KindUnauthenticated      Kind = "Unauthenticated"
	KindPortsExhausted       Kind = "PortsExhausted"
	KindWorkerStartupTimeout Kind = "WorkerStartupTimeout"
	KindWorkerUnavailable    Kind = "WorkerUnavailable"
	KindUnknownCommandType   Kind = "UnknownCommandType"
	KindBadCommandPayload    Kind = "BadCommandPayload"
	KindOverloaded           Kind = "Overloaded"
	KindCancelled            Kind = "Cancelled"
	KindIntegrityViolation   Kind = "IntegrityViolation"
	KindNotFound             Kind = "NotFound"
	KindInvalidFormat        Kind = "InvalidFormat"
	KindStorageFailure       Kind = "StorageFailure"
	KindInternal             Kind = "InternalError"
)

// Error is a classified error carrying the correlation ID of the request
// that produced it.
type Error struct {
	Kind          Kind
	Message       string
	CorrelationID string
	cause         error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause, if any
func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a classified error
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error, preserving it as the cause
func Wrap(err error, kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: err}
}

// WithCorrelation attaches a correlation ID to err. If err is not already
// classified it is wrapped as InternalError.
func WithCorrelation(err error, correlationID string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.CorrelationID == "" {
			e.CorrelationID = correlationID
		}
		return err
	}
	return &Error{Kind: KindInternal, Message: err.Error(), CorrelationID: correlationID, cause: err}
}

// KindOf returns the kind of err, or InternalError for unclassified errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// CorrelationOf returns the correlation ID attached to err, if any
func CorrelationOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.CorrelationID
	}
	return ""
}

// FromWire reconstructs a classified error from the kind tag and message
// carried in an RPC response envelope.
func FromWire(kind, message, correlationID string) *Error {
	k := Kind(kind)
	switch k {
	case KindTenantRequired, KindUnknownTenant, KindCrossTenantDenied,
		KindUnauthenticated, KindPortsExhausted, KindWorkerStartupTimeout,
		KindWorkerUnavailable, KindUnknownCommandType, KindBadCommandPayload,
		KindOverloaded, KindCancelled, KindIntegrityViolation, KindNotFound,
		KindInvalidFormat, KindStorageFailure, KindInternal:
	default:
		k = KindInternal
	}
	return &Error{Kind: k, Message: message, CorrelationID: correlationID}
}

// HTTPStatus maps an error to the HTTP status code the gateway returns
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindTenantRequired, KindBadCommandPayload, KindUnknownCommandType, KindInvalidFormat:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindCrossTenantDenied:
		return http.StatusForbidden
	case KindUnknownTenant, KindNotFound:
		return http.StatusNotFound
	case KindOverloaded, KindWorkerUnavailable, KindPortsExhausted:
		return http.StatusServiceUnavailable
	case KindWorkerStartupTimeout:
		return http.StatusGatewayTimeout
	case KindCancelled:
		// Client went away; 499 is the de facto status for that
		return 499
	default:
		return http.StatusInternalServerError
	}
}
