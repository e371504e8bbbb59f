package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode int

// Reason narrows an ErrorCode to the specific failure kind.
type Reason string

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Reason  Reason    `json:"reason,omitempty"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrDependency
)

const (
	ReasonExpired           Reason = "expired"
	ReasonMalformed         Reason = "malformed"
	ReasonRevoked           Reason = "revoked"
	ReasonCredentials       Reason = "credentials"
	ReasonUnauthenticated   Reason = "unauthenticated"
	ReasonForbidden         Reason = "forbidden"
	ReasonMissingField      Reason = "missing_field"
	ReasonInvalidTransition Reason = "invalid_transition"
)

// Messages shared by every auth failure so callers cannot tell them apart.
const (
	MsgInvalidToken       = "invalid or expired token"
	MsgInvalidCredentials = "invalid credentials"
)

func newAuthError(reason Reason, err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Reason:  reason,
		Message: MsgInvalidToken,
		Err:     err,
	}
}

func AuthExpired(err error) *AppError {
	return newAuthError(ReasonExpired, err)
}

func AuthMalformed(err error) *AppError {
	return newAuthError(ReasonMalformed, err)
}

func AuthRevoked(err error) *AppError {
	return newAuthError(ReasonRevoked, err)
}

func InvalidCredentials() *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Reason:  ReasonCredentials,
		Message: MsgInvalidCredentials,
	}
}

func Unauthenticated() *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Reason:  ReasonUnauthenticated,
		Message: "authentication required",
	}
}

func Forbidden(message string) *AppError {
	if message == "" {
		message = "insufficient permissions"
	}
	return &AppError{
		Code:    ErrForbidden,
		Reason:  ReasonForbidden,
		Message: message,
	}
}

func MissingField(field string) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Reason:  ReasonMissingField,
		Message: fmt.Sprintf("%s is required", field),
	}
}

// InvalidTransition names both states; the message is safe to return verbatim.
func InvalidTransition(from, to string) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Reason:  ReasonInvalidTransition,
		Message: fmt.Sprintf("cannot transition from %s to %s", from, to),
	}
}

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// Dependency marks a datastore or messaging collaborator failure.
func Dependency(op string, err error) *AppError {
	return &AppError{
		Code:    ErrDependency,
		Message: fmt.Sprintf("failed to %s", op),
		Err:     err,
	}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

// As extracts the AppError from an error chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns ErrInternal for errors that are not AppErrors.
func CodeOf(err error) ErrorCode {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ErrInternal
}

func ReasonOf(err error) Reason {
	if appErr, ok := As(err); ok {
		return appErr.Reason
	}
	return ""
}

func HasReason(err error, reason Reason) bool {
	return ReasonOf(err) == reason
}

func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrBadRequest:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage hides the detail of internal and dependency failures.
func PublicMessage(err error) string {
	appErr, ok := As(err)
	if !ok {
		return "internal server error"
	}
	if appErr.Code == ErrInternal || appErr.Code == ErrDependency {
		return "internal server error"
	}
	return appErr.Message
}
