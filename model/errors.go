package model

import (
	"errors"
	"fmt"
)

// Standard error codes.
const (
	ErrBadRequest        = "BAD_REQUEST"
	ErrUnauthorized      = "UNAUTHORIZED"
	ErrForbidden         = "FORBIDDEN"
	ErrNotFound          = "NOT_FOUND"
	ErrConflict          = "CONFLICT"
	ErrValidationError   = "VALIDATION_ERROR"
	ErrInvalidTransition = "INVALID_TRANSITION"
	ErrRateLimited       = "RATE_LIMITED"
	ErrInternalError     = "INTERNAL_ERROR"
)

// Lifecycle error codes.
const (
	ErrUnknownModuleType   = "UNKNOWN_MODULE_TYPE"
	ErrAlreadyApplied      = "ALREADY_APPLIED"
	ErrAlreadyCompleted    = "ALREADY_COMPLETED"
	ErrAnotherStageActive  = "ANOTHER_STAGE_ACTIVE"
	ErrPreconditionFailed  = "PRECONDITION_FAILED"
	ErrProtocolCompleted   = "PROTOCOL_COMPLETED"
	ErrFormValidationError = "FORM_VALIDATION_ERROR"
)

// ErrorEnvelope is the error value returned by every lifecycle operation.
// It implements the error interface.
type ErrorEnvelope struct {
	Code         string       `json:"code"`
	Message      string       `json:"message"`
	Details      []FieldError `json:"details,omitempty"`
	MissingItems []string     `json:"missing_items,omitempty"`
	TraceID      string       `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorCode returns the machine-readable code.
func (e *ErrorEnvelope) ErrorCode() string {
	return e.Code
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AsEnvelope unwraps err into an ErrorEnvelope. ok is false when err does not
// carry one.
func AsEnvelope(err error) (*ErrorEnvelope, bool) {
	var env *ErrorEnvelope
	if errors.As(err, &env) {
		return env, true
	}
	return nil, false
}

// HasCode reports whether err carries an ErrorEnvelope with the given code.
func HasCode(err error, code string) bool {
	env, ok := AsEnvelope(err)
	return ok && env.Code == code
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error.
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewFieldError is shorthand for a VALIDATION_ERROR on a single field.
func NewFieldError(field, code, msg string) *ErrorEnvelope {
	return NewValidationError([]FieldError{{Field: field, Code: code, Message: msg}})
}

// NewInvalidTransitionError returns an INVALID_TRANSITION error naming the
// entity, its current status and the attempted operation.
func NewInvalidTransitionError(entity, status, op string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInvalidTransition,
		Message: fmt.Sprintf("cannot %s %s in status %s", op, entity, status),
	}
}

// NewUnknownModuleTypeError returns an UNKNOWN_MODULE_TYPE error.
func NewUnknownModuleTypeError(moduleType string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrUnknownModuleType,
		Message: fmt.Sprintf("no workflow registered for module type %q", moduleType),
	}
}

// NewAlreadyAppliedError returns an ALREADY_APPLIED error.
func NewAlreadyAppliedError(protocolID string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrAlreadyApplied,
		Message: fmt.Sprintf("protocol %s already has stages", protocolID),
	}
}

// NewAlreadyCompletedError returns an ALREADY_COMPLETED error.
func NewAlreadyCompletedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrAlreadyCompleted, Message: msg}
}

// NewAnotherStageActiveError returns an ANOTHER_STAGE_ACTIVE error.
func NewAnotherStageActiveError(activeStage string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrAnotherStageActive,
		Message: fmt.Sprintf("stage %q is already in progress", activeStage),
	}
}

// NewPreconditionFailedError returns a PRECONDITION_FAILED error carrying the
// items that are still missing.
func NewPreconditionFailedError(missing []string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:         ErrPreconditionFailed,
		Message:      "stage completion conditions are not met",
		MissingItems: missing,
	}
}

// NewProtocolCompletedError returns a PROTOCOL_COMPLETED error.
func NewProtocolCompletedError(protocolID string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrProtocolCompleted,
		Message: fmt.Sprintf("protocol %s is already completed", protocolID),
	}
}

// NewFormValidationError returns a FORM_VALIDATION_ERROR with one detail per
// violated constraint.
func NewFormValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrFormValidationError,
		Message: "The submitted form data is invalid",
		Details: details,
	}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NewRateLimitedError returns a RATE_LIMITED error.
func NewRateLimitedError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrRateLimited,
		Message: "Rate limit exceeded. Please try again later.",
	}
}
