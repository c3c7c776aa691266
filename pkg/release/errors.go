// Package release implements the release-planning and repository
// reconciliation engine: plan building, presence checking, plan execution
// against the repository manager, and the release lifecycle state machine.
package release

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a release error for recovery logic.
type ErrorClass string

const (
	// ErrorClassValidation indicates a caller-visible precondition failure
	// raised before any remote mutating call. Recoverable by fixing the plan
	// or build inputs and retrying the whole operation.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassExternal indicates a failure of an external dependency such
	// as the repository manager or the signature service.
	ErrorClassExternal ErrorClass = "external"

	// ErrorClassConflict indicates an invalid lifecycle transition.
	ErrorClassConflict ErrorClass = "conflict"
)

// Error codes used by the lifecycle state machine to decide which failures
// set a release to Failed versus propagate unhandled.
const (
	CodeEmptyReleasePlan        = "EMPTY_RELEASE_PLAN"
	CodeReleaseLogicError       = "RELEASE_LOGIC_ERROR"
	CodeMissingRepository       = "MISSING_REPOSITORY"
	CodeMalformedModuleDocument = "MALFORMED_MODULE_DOCUMENT"
	CodeNoModuleStream          = "NO_MODULE_STREAM"
	CodeSignatureError          = "SIGNATURE_ERROR"
	CodePolicyDenied            = "POLICY_DENIED"
	CodeNotFound                = "NOT_FOUND"
	CodeInvalidStatus           = "INVALID_STATUS"
)

// Error is a classified release-engine error with context.
type Error struct {
	Class      ErrorClass `json:"class"`
	Code       string     `json:"code"`
	Message    string     `json:"message"`
	ReleaseID  string     `json:"release_id,omitempty"`
	Repository string     `json:"repository,omitempty"`
	Err        error      `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Repository != "" {
		msg += fmt.Sprintf(" (repository=%s)", e.Repository)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on class and code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// WithRelease adds release context to an error.
func (e *Error) WithRelease(id string) *Error {
	e.ReleaseID = id
	return e
}

// WithRepository adds repository context to an error.
func (e *Error) WithRepository(name string) *Error {
	e.Repository = name
	return e
}

// NewValidationError creates a validation-class error with a code.
func NewValidationError(code, message string) *Error {
	return &Error{Class: ErrorClassValidation, Code: code, Message: message}
}

// NewExternalError creates an external-dependency error with a code.
func NewExternalError(code, message string, err error) *Error {
	return &Error{Class: ErrorClassExternal, Code: code, Message: message, Err: err}
}

// NewConflictError creates a lifecycle conflict error.
func NewConflictError(code, message string) *Error {
	return &Error{Class: ErrorClassConflict, Code: code, Message: message}
}

// ErrEmptyPlan builds the canonical empty-plan validation error.
func ErrEmptyPlan() *Error {
	return NewValidationError(CodeEmptyReleasePlan, "release plan has no packages and no repositories")
}

// CodeOf extracts the release error code, or "" for foreign errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsHandled reports whether the lifecycle state machine should catch err and
// mark the release Failed. Exactly the validation, signature and missing
// repository categories are handled; anything else propagates unhandled and
// leaves the release InProgress for operator inspection.
func IsHandled(err error) bool {
	switch CodeOf(err) {
	case CodeEmptyReleasePlan, CodeReleaseLogicError, CodeMissingRepository,
		CodeMalformedModuleDocument, CodeNoModuleStream, CodeSignatureError, CodePolicyDenied:
		return true
	}
	return false
}
