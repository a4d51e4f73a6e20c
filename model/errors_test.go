package model

import (
	"fmt"
	"testing"
)

func TestErrorEnvelope_Error(t *testing.T) {
	e := &ErrorEnvelope{Code: ErrNotFound, Message: "stage not found"}
	want := "NOT_FOUND: stage not found"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorEnvelope_implements_error(t *testing.T) {
	var _ error = (*ErrorEnvelope)(nil)
}

func TestAsEnvelope_wrapped(t *testing.T) {
	err := fmt.Errorf("complete stage: %w", NewNotFoundError("stage not found"))
	env, ok := AsEnvelope(err)
	if !ok {
		t.Fatal("AsEnvelope should unwrap a wrapped envelope")
	}
	if env.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", env.Code, ErrNotFound)
	}
	if !HasCode(err, ErrNotFound) {
		t.Error("HasCode(NOT_FOUND) = false, want true")
	}
	if HasCode(err, ErrConflict) {
		t.Error("HasCode(CONFLICT) = true, want false")
	}
}

func TestAsEnvelope_plainError(t *testing.T) {
	if _, ok := AsEnvelope(fmt.Errorf("boom")); ok {
		t.Error("AsEnvelope should not match a plain error")
	}
}

func TestNewValidationError(t *testing.T) {
	details := []FieldError{
		{Field: "workingDays", Code: "INVALID", Message: "workingDays must be positive"},
	}
	e := NewValidationError(details)
	if e.Code != ErrValidationError {
		t.Errorf("Code = %q, want %q", e.Code, ErrValidationError)
	}
	if len(e.Details) != 1 {
		t.Fatalf("Details length = %d, want 1", len(e.Details))
	}
	if e.Details[0].Field != "workingDays" {
		t.Errorf("Details[0].Field = %q, want %q", e.Details[0].Field, "workingDays")
	}
}

func TestNewInvalidTransitionError(t *testing.T) {
	e := NewInvalidTransitionError("stage", StageCompleted, "start")
	if e.Code != ErrInvalidTransition {
		t.Errorf("Code = %q, want %q", e.Code, ErrInvalidTransition)
	}
	want := "cannot start stage in status COMPLETED"
	if e.Message != want {
		t.Errorf("Message = %q, want %q", e.Message, want)
	}
}

func TestNewPreconditionFailedError(t *testing.T) {
	e := NewPreconditionFailedError([]string{"RG_CPF", "blocking pendings: 1"})
	if e.Code != ErrPreconditionFailed {
		t.Errorf("Code = %q, want %q", e.Code, ErrPreconditionFailed)
	}
	if len(e.MissingItems) != 2 {
		t.Errorf("MissingItems length = %d, want 2", len(e.MissingItems))
	}
}

func TestLifecycleConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *ErrorEnvelope
		code string
	}{
		{"unknown module", NewUnknownModuleTypeError("X"), ErrUnknownModuleType},
		{"already applied", NewAlreadyAppliedError("p1"), ErrAlreadyApplied},
		{"already completed", NewAlreadyCompletedError("sla closed"), ErrAlreadyCompleted},
		{"another active", NewAnotherStageActiveError("Triagem"), ErrAnotherStageActive},
		{"protocol completed", NewProtocolCompletedError("p1"), ErrProtocolCompleted},
		{"form", NewFormValidationError(nil), ErrFormValidationError},
		{"bad request", NewBadRequestError("bad json"), ErrBadRequest},
		{"unauthorized", NewUnauthorizedError("missing token"), ErrUnauthorized},
		{"forbidden", NewForbiddenError("denied"), ErrForbidden},
		{"conflict", NewConflictError("duplicate"), ErrConflict},
		{"internal", NewInternalError(), ErrInternalError},
		{"rate limited", NewRateLimitedError(), ErrRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
			}
			if tt.err.Message == "" {
				t.Error("Message should not be empty")
			}
		})
	}
}
