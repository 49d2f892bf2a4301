// Package errors provides the structured error taxonomy shared by every cloudpath layer.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"
)

// ErrorCode identifies the kind of failure independent of the backend that produced it.
type ErrorCode string

const (
	// Configuration
	ErrCodeConfiguration ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeMissingConfig ErrorCode = "CONFIG_MISSING"

	// Backend resolution
	ErrCodeBackendUnavailable   ErrorCode = "BACKEND_UNAVAILABLE"
	ErrCodeUnsupportedOperation ErrorCode = "UNSUPPORTED_OPERATION"

	// Object state
	ErrCodeDestinationExists ErrorCode = "DESTINATION_EXISTS"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeAccessDenied      ErrorCode = "ACCESS_DENIED"
	ErrCodePathInvalid       ErrorCode = "PATH_INVALID"

	// Transfer
	ErrCodeMultipartProtocol ErrorCode = "MULTIPART_PROTOCOL_VIOLATION"
	ErrCodeTransferFailure   ErrorCode = "TRANSFER_FAILURE"
	ErrCodeInvalidState      ErrorCode = "INVALID_STATE"
	ErrCodeOperationCanceled ErrorCode = "OPERATION_CANCELED"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory groups codes for logging and metrics labels.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryBackend       ErrorCategory = "backend"
	CategoryStorage       ErrorCategory = "storage"
	CategoryTransfer      ErrorCategory = "transfer"
	CategoryInternal      ErrorCategory = "internal"
)

// Error is the structured error returned by cloudpath operations.
type Error struct {
	Code     ErrorCode              `json:"code"`
	Category ErrorCategory          `json:"category"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`

	// Context carries scheme, path and other string attributes.
	Context   map[string]string `json:"context,omitempty"`
	Cause     error             `json:"-"`
	Timestamp time.Time         `json:"timestamp"`

	Component string `json:"component,omitempty"`
	Operation string `json:"operation,omitempty"`

	Retryable bool   `json:"retryable"`
	Stack     string `json:"stack,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Component != "" {
		b.WriteString("[")
		b.WriteString(e.Component)
		if e.Operation != "" {
			b.WriteString(":")
			b.WriteString(e.Operation)
		}
		b.WriteString("] ")
	}
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if p := e.Location(); p != "" {
		b.WriteString(" (")
		b.WriteString(p)
		b.WriteString(")")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Location renders scheme and path context as a URI-like string.
func (e *Error) Location() string {
	scheme, path := e.Context["scheme"], e.Context["path"]
	switch {
	case scheme != "" && path != "":
		return scheme + "://" + path
	case path != "":
		return path
	default:
		return scheme
	}
}

// String returns a detailed representation for logging.
func (e *Error) String() string {
	parts := []string{
		fmt.Sprintf("Code=%s", e.Code),
		fmt.Sprintf("Category=%s", e.Category),
		fmt.Sprintf("Message=%q", e.Message),
	}
	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", k, e.Context[k]))
		}
	}
	if e.Retryable {
		parts = append(parts, "Retryable=true")
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}
	return fmt.Sprintf("Error{%s}", strings.Join(parts, ", "))
}

// JSON returns the error as a JSON string.
func (e *Error) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal error: %s"}`, err.Error())
	}
	return string(data)
}

// NewError creates an error with defaults derived from the code.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
		Context:   make(map[string]string),
		Retryable: IsRetryableByDefault(code),
	}
}

// GetCategory maps a code to its category.
func GetCategory(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeConfiguration, ErrCodeMissingConfig:
		return CategoryConfiguration
	case ErrCodeBackendUnavailable, ErrCodeUnsupportedOperation:
		return CategoryBackend
	case ErrCodeDestinationExists, ErrCodeNotFound, ErrCodeAccessDenied, ErrCodePathInvalid:
		return CategoryStorage
	case ErrCodeMultipartProtocol, ErrCodeTransferFailure, ErrCodeInvalidState, ErrCodeOperationCanceled:
		return CategoryTransfer
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault reports whether an outer retry policy may repeat the operation.
func IsRetryableByDefault(code ErrorCode) bool {
	switch code {
	case ErrCodeTransferFailure, ErrCodeInternal:
		return true
	default:
		return false
	}
}

// CaptureStack captures the caller stack for debugging.
func CaptureStack(skip int) string {
	const depth = 10
	var pcs [depth]uintptr
	n := runtime.Callers(skip+2, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var stack []string
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "errors.go") {
			stack = append(stack, fmt.Sprintf("%s:%d %s", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}
	return strings.Join(stack, "\n")
}

// WithContext adds a context attribute.
func (e *Error) WithContext(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithPath records the scheme and backend path the error refers to.
func (e *Error) WithPath(scheme, path string) *Error {
	if scheme != "" {
		e.WithContext("scheme", scheme)
	}
	if path != "" {
		e.WithContext("path", path)
	}
	return e
}

// WithDetail adds a structured detail.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// WithOperation sets the operation.
func (e *Error) WithOperation(operation string) *Error {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithStack captures the current stack trace.
func (e *Error) WithStack() *Error {
	e.Stack = CaptureStack(2)
	return e
}

// GetRecommendation returns a short hint for fixing the error.
func (e *Error) GetRecommendation() string {
	recommendations := map[ErrorCode]string{
		ErrCodeConfiguration: "Check the provider settings for this scheme (endpoint, credentials, region).",
		ErrCodeMissingConfig: "Register a provider configuration for the scheme before using it.",
		ErrCodeBackendUnavailable: "No backend could be built for this scheme. " +
			"Fix the configuration and invalidate the cached bundle.",
		ErrCodeUnsupportedOperation: "The backend driver does not implement this operation.",
		ErrCodeDestinationExists:    "Pass an explicit overwrite option or choose another destination.",
		ErrCodeNotFound:             "Verify the bucket and key.",
		ErrCodeAccessDenied:         "The credentials lack permission for this operation.",
		ErrCodeMultipartProtocol:    "The backend rejected the multipart part layout.",
		ErrCodeTransferFailure:      "A network or backend error interrupted the transfer. Retrying may help.",
		ErrCodeInvalidState:         "The file handle is already committed or aborted.",
	}
	if rec, ok := recommendations[e.Code]; ok {
		return rec
	}
	return "Please check the error message for details."
}

// Sentinels for errors.Is matching. Never mutate them; use the constructors instead.
var (
	ErrConfiguration        = &Error{Code: ErrCodeConfiguration}
	ErrBackendUnavailable   = &Error{Code: ErrCodeBackendUnavailable}
	ErrUnsupportedOperation = &Error{Code: ErrCodeUnsupportedOperation}
	ErrDestinationExists    = &Error{Code: ErrCodeDestinationExists}
	ErrNotFound             = &Error{Code: ErrCodeNotFound}
	ErrMultipartProtocol    = &Error{Code: ErrCodeMultipartProtocol}
	ErrTransferFailure      = &Error{Code: ErrCodeTransferFailure}
	ErrInvalidState         = &Error{Code: ErrCodeInvalidState}
	ErrPathInvalid          = &Error{Code: ErrCodePathInvalid}
)

// ConfigurationError reports bad or missing provider settings.
func ConfigurationError(scheme, message string, cause error) *Error {
	return NewError(ErrCodeConfiguration, message).WithPath(scheme, "").WithCause(cause)
}

// BackendUnavailable reports that no bundle could be built for a scheme.
func BackendUnavailable(scheme string, cause error) *Error {
	return NewError(ErrCodeBackendUnavailable, "no backend available for scheme "+scheme).
		WithPath(scheme, "").WithCause(cause)
}

// UnsupportedOperation reports that no aliased driver method matched the operation.
func UnsupportedOperation(scheme, op string, aliases []string) *Error {
	e := NewError(ErrCodeUnsupportedOperation, "operation "+op+" is not supported").
		WithPath(scheme, "").WithOperation(op)
	if len(aliases) > 0 {
		e.WithContext("aliases", strings.Join(aliases, ","))
	}
	return e
}

// DestinationExists reports a write or copy guard violation.
func DestinationExists(scheme, path string) *Error {
	return NewError(ErrCodeDestinationExists, "destination already exists").WithPath(scheme, path)
}

// NotFound reports a missing object or directory.
func NotFound(scheme, path string, cause error) *Error {
	return NewError(ErrCodeNotFound, "no such file or object").WithPath(scheme, path).WithCause(cause)
}

// MultipartProtocolViolation reports a backend rejection of the part layout.
func MultipartProtocolViolation(scheme, path string, cause error) *Error {
	return NewError(ErrCodeMultipartProtocol, "multipart upload rejected").WithPath(scheme, path).WithCause(cause)
}

// TransferFailure wraps a network or backend error during chunked or multipart I/O.
func TransferFailure(scheme, path, op string, cause error) *Error {
	return NewError(ErrCodeTransferFailure, "transfer failed").WithPath(scheme, path).
		WithOperation(op).WithCause(cause)
}

// InvalidState reports an operation on a handle in a terminal state.
func InvalidState(path, state, op string) *Error {
	return NewError(ErrCodeInvalidState, "handle is "+state).WithPath("", path).WithOperation(op)
}

// PathInvalid reports a URI that cannot be parsed.
func PathInvalid(path, reason string) *Error {
	return NewError(ErrCodePathInvalid, reason).WithPath("", path)
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HasCode reports whether err's chain contains an *Error with the given code.
func HasCode(err error, code ErrorCode) bool {
	return stderrors.Is(err, &Error{Code: code})
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool {
	return HasCode(err, ErrCodeNotFound)
}
