package billing

import (
	"errors"
	"fmt"
)

// Code classifies checkout failures
type Code string

const (
	CodeConfigurationMissing Code = "CONFIGURATION_MISSING"
	CodeNotFound             Code = "NOT_FOUND"
	CodeAlreadyExists        Code = "ALREADY_EXISTS"
	CodeValidationFailed     Code = "VALIDATION_FAILED"
	CodeInternalFailure      Code = "INTERNAL_FAILURE"
)

// Caller-facing messages
const (
	MsgStripeNotConfigured   = "Stripe environment variables are missing"
	MsgWorkspaceNotFound     = "Workspace not found"
	MsgCustomerExists        = "Customer already exists, use updateSubscription endpoint."
	MsgCheckoutInProgress    = "A checkout is already in progress for this workspace"
	MsgEmailMismatch         = "Make sure to log in with the same email as the one provided"
	MsgCheckoutSessionFailed = "Stripe checkout session creation failed"
	MsgInternal              = "internal error"
)

// Error is a classified checkout failure. Message is safe to show to callers;
// Err keeps the underlying cause for logs.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so the sentinels below work with errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrConfigurationMissing = &Error{Code: CodeConfigurationMissing}
	ErrNotFound             = &Error{Code: CodeNotFound}
	ErrAlreadyExists        = &Error{Code: CodeAlreadyExists}
	ErrValidationFailed     = &Error{Code: CodeValidationFailed}
	ErrInternalFailure      = &Error{Code: CodeInternalFailure}
)

func newError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

// internalError classifies an unexpected collaborator failure, keeping any
// classification the collaborator already applied
func internalError(cause error) error {
	var billingErr *Error
	if errors.As(cause, &billingErr) {
		return cause
	}
	return newError(CodeInternalFailure, MsgInternal, cause)
}

// CodeOf returns the code of err, or CodeInternalFailure for unclassified errors
func CodeOf(err error) Code {
	var billingErr *Error
	if errors.As(err, &billingErr) {
		return billingErr.Code
	}
	return CodeInternalFailure
}

// PublicMessage returns the caller-safe message for err
func PublicMessage(err error) string {
	var billingErr *Error
	if errors.As(err, &billingErr) && billingErr.Message != "" {
		return billingErr.Message
	}
	return MsgInternal
}
