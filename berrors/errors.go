// Package berrors defines the internal error taxonomy used across the
// MPIC core, modeled on Boulder's errors package: a single error type
// carrying a Type discriminator plus a human Detail, instead of a
// zoo of sentinel error values.
package berrors

import (
	"fmt"

	"github.com/open-mpic/mpic-core-go/core"
)

// ErrorType classifies an MPICError so callers can branch on kind
// without string-matching Detail.
type ErrorType int

const (
	// InputValidation marks a request that failed structural checks
	// before any network activity was attempted.
	InputValidation ErrorType = iota + 1
	// CAALookup marks a DNS failure (other than NoAnswer/NXDOMAIN)
	// encountered while walking the CAA tree.
	CAALookup
	// DCVResolution marks a DNS resolver error encountered during a
	// DCV lookup.
	DCVResolution
	// DCVTransport marks a network or protocol error encountered
	// while fetching an HTTP-based DCV challenge.
	DCVTransport
	// CoordinatorCommunication marks a failure of the remote
	// perspective caller itself, as opposed to a failure the remote
	// perspective legitimately observed and reported.
	CoordinatorCommunication
)

func (t ErrorType) String() string {
	switch t {
	case InputValidation:
		return "InputValidation"
	case CAALookup:
		return "CAALookup"
	case DCVResolution:
		return "DCVResolution"
	case DCVTransport:
		return "DCVTransport"
	case CoordinatorCommunication:
		return "CoordinatorCommunication"
	default:
		return "Unknown"
	}
}

// MPICError is the internal representation of a failure raised by any
// MPIC component. It is deliberately richer than the wire-level
// MpicValidationError (core.MpicValidationError): callers that need
// to branch on ErrorType use this; callers that need to serialize a
// failure onto a CheckResponse project it down with ToValidationError.
type MPICError struct {
	Type   ErrorType
	Detail string
	// WireType, if non-empty, overrides the string placed in the
	// wire-level error_type field (e.g. an HTTP status code or a DNS
	// exception class name). When empty, Type.String() is used.
	WireType string
}

func (e *MPICError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Detail)
}

// New constructs an MPICError of the given type.
func New(t ErrorType, format string, args ...interface{}) *MPICError {
	return &MPICError{Type: t, Detail: fmt.Sprintf(format, args...)}
}

// WithWireType attaches an explicit wire-level error_type, for the
// cases in spec.md section 7 where that string is an HTTP status code
// or an exception class name rather than one of our own ErrorType
// names.
func (e *MPICError) WithWireType(wireType string) *MPICError {
	cp := *e
	cp.WireType = wireType
	return &cp
}

// InputValidationError is a convenience constructor for the one error
// kind that is fatal to an MpicRequest rather than being absorbed
// into a per-perspective CheckResponse.
func InputValidationError(format string, args ...interface{}) *MPICError {
	return New(InputValidation, format, args...)
}

// CAALookupError wraps a DNS resolver failure encountered during the
// CAA tree walk.
func CAALookupError(format string, args ...interface{}) *MPICError {
	return New(CAALookup, format, args...)
}

// DCVResolutionError wraps a DNS resolver failure encountered during
// a DCV lookup.
func DCVResolutionError(format string, args ...interface{}) *MPICError {
	return New(DCVResolution, format, args...)
}

// DCVTransportError wraps a network or protocol error encountered
// while fetching an HTTP-based DCV challenge.
func DCVTransportError(format string, args ...interface{}) *MPICError {
	return New(DCVTransport, format, args...)
}

// CoordinatorCommunicationError wraps a failure of the remote
// perspective caller itself.
func CoordinatorCommunicationError(format string, args ...interface{}) *MPICError {
	return New(CoordinatorCommunication, format, args...)
}

// ToValidationError projects e down onto the wire-level error shape
// placed on a CheckResponse: WireType if set, else Type.String().
func (e *MPICError) ToValidationError() core.MpicValidationError {
	errType := e.WireType
	if errType == "" {
		errType = e.Type.String()
	}
	return core.MpicValidationError{ErrorType: errType, ErrorMessage: e.Detail}
}

// As reports whether err is itself an *MPICError and returns it, so
// callers can branch on Type themselves. It is a plain type assertion:
// an *MPICError wrapped inside another error is not found.
func As(err error) (*MPICError, bool) {
	me, ok := err.(*MPICError)
	return me, ok
}
