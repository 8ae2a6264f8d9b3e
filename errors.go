package pagekit

import (
	"errors"
	"fmt"
	"strconv"
)

// Sentinel errors for pagekit operations.
var (
	// ErrLookupFailed is returned when an identity or store lookup fails
	// while resolving permissions. It never means "no access".
	ErrLookupFailed = errors.New("pagekit: permission lookup failed")

	// ErrInvalidPage is returned when a page code is empty or malformed.
	ErrInvalidPage = errors.New("pagekit: invalid page")

	// ErrInvalidCapability is returned when a capability name is unknown.
	ErrInvalidCapability = errors.New("pagekit: invalid capability")

	// ErrInvalidInput is returned when an administrative request fails validation.
	ErrInvalidInput = errors.New("pagekit: invalid input")

	// ErrUnauthenticated is returned when a request carries no usable identity.
	ErrUnauthenticated = errors.New("pagekit: unauthenticated")

	// ErrForbidden is returned when a user lacks the capability or admin role required.
	ErrForbidden = errors.New("pagekit: forbidden")

	// ErrNotFound is returned when an administrative operation targets a missing row.
	ErrNotFound = errors.New("pagekit: not found")

	// ErrRoleAlreadyAssigned is returned when trying to assign a role the user already has.
	ErrRoleAlreadyAssigned = errors.New("pagekit: role already assigned")

	// ErrRoleNotAssigned is returned when trying to revoke a role the user doesn't have.
	ErrRoleNotAssigned = errors.New("pagekit: role not assigned")

	// ErrNoActorID is returned when actor ID is not found in context for audit.
	ErrNoActorID = errors.New("pagekit: no actor ID in context")

	// ErrDatabaseError is returned when an administrative database operation fails.
	ErrDatabaseError = errors.New("pagekit: database error")
)

// Step identifies the resolution step that produced a lookup failure.
type Step string

const (
	StepIdentity    Step = "identity"
	StepPage        Step = "page"
	StepRoles       Step = "roles"
	StepPermissions Step = "permissions"
)

// Error wraps a sentinel error with additional context.
type Error struct {
	Err     error  // Underlying sentinel error
	Cause   error  // Original failure (store, provider, context), if any
	Message string // Additional context
	Step    Step   // Resolution step (lookup failures only)
	Page    string // Page code involved
	UserID  string // User involved (if applicable)
	RoleID  int64  // Role involved (if applicable)
	ActorID string // Actor who triggered the error (if applicable)
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Err.Error()
	if e.Step != "" {
		msg += " (" + string(e.Step) + ")"
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the sentinel and the cause so errors.Is/As can reach both.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// NewError creates a new Error with context.
func NewError(err error, message string) *Error {
	return &Error{
		Err:     err,
		Message: message,
	}
}

// lookupError builds the LookupFailure for a resolution step.
func lookupError(step Step, cause error) *Error {
	return &Error{
		Err:   ErrLookupFailed,
		Cause: cause,
		Step:  step,
	}
}

// WithCause attaches the original failure.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithPage adds page information to the error.
func (e *Error) WithPage(pageCode string) *Error {
	e.Page = pageCode
	return e
}

// WithUser adds user information to the error.
func (e *Error) WithUser(userID string) *Error {
	e.UserID = userID
	return e
}

// WithRole adds role information to the error.
func (e *Error) WithRole(roleID int64) *Error {
	e.RoleID = roleID
	return e
}

// WithActor adds actor information to the error.
func (e *Error) WithActor(actorID string) *Error {
	e.ActorID = actorID
	return e
}

// Fields returns the non-empty context of the error as key/value pairs, for logging.
func (e *Error) Fields() map[string]string {
	fields := make(map[string]string)
	if e.Step != "" {
		fields["step"] = string(e.Step)
	}
	if e.Page != "" {
		fields["page"] = e.Page
	}
	if e.UserID != "" {
		fields["user_id"] = e.UserID
	}
	if e.RoleID != 0 {
		fields["role_id"] = strconv.FormatInt(e.RoleID, 10)
	}
	if e.ActorID != "" {
		fields["actor_id"] = e.ActorID
	}
	return fields
}

// IsLookupFailure checks if an error means permissions could not be determined.
func IsLookupFailure(err error) bool {
	return errors.Is(err, ErrLookupFailed)
}

// IsForbidden checks if an error is an authorization error.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsUnauthenticated checks if an error is due to a missing identity.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrUnauthenticated)
}

// IsInvalid checks if an error is due to a malformed page, capability or input.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalidPage) ||
		errors.Is(err, ErrInvalidCapability) ||
		errors.Is(err, ErrInvalidInput)
}

// IsNotFound checks if an administrative operation targeted a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
