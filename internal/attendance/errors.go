package attendance

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by lookups that have no default value to fall back on.
var ErrNotFound = errors.New("not found")

// Conflict kinds reported by DuplicateError and IdentityMismatchError.
const (
	KindDuplicateUsername   = "duplicate-username"
	KindCodeTaken           = "code-taken"
	KindDuplicateForFaculty = "duplicate-for-faculty"
	KindAlreadyEnrolled     = "already-enrolled"
	KindIdentityMismatch    = "identity-mismatch"
)

// FieldError is used to indicate an error with a specific input field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError reports missing or malformed input.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Fields: flds}
}

func (err *ValidationError) Error() string {
	if err.Err == nil {
		return "invalid input"
	}
	return err.Err.Error()
}

func (err *ValidationError) Unwrap() error { return err.Err }

// DuplicateError reports a username or subject code collision.
type DuplicateError struct {
	Kind  string
	Value string
}

func (err *DuplicateError) Error() string {
	switch err.Kind {
	case KindDuplicateUsername:
		return fmt.Sprintf("username %q already exists", err.Value)
	case KindCodeTaken:
		return fmt.Sprintf("subject code %q already in use", err.Value)
	case KindDuplicateForFaculty:
		return fmt.Sprintf("subject code %q already assigned to this faculty", err.Value)
	case KindAlreadyEnrolled:
		return fmt.Sprintf("student %q already added to this subject", err.Value)
	default:
		return fmt.Sprintf("%s: %q", err.Kind, err.Value)
	}
}

// IdentityMismatchError reports a re-submitted account whose name or password
// differs from the stored one.
type IdentityMismatchError struct {
	Role     Role
	Username string
}

func (err *IdentityMismatchError) Error() string {
	return fmt.Sprintf("%s username %q exists; name and password must match existing", err.Role, err.Username)
}

// Kind is always KindIdentityMismatch.
func (err *IdentityMismatchError) Kind() string { return KindIdentityMismatch }

// AuthReason tells apart the ways an authentication can fail.
type AuthReason string

const (
	AuthUnknownRole      AuthReason = "unknown-role"
	AuthUnknownUsername  AuthReason = "unknown-username"
	AuthPasswordMismatch AuthReason = "password-mismatch"
)

// AuthError is returned by Authenticate. Its message is the same for every
// Reason so it can be shown to users as is.
type AuthError struct {
	Reason AuthReason
}

func (err *AuthError) Error() string { return "invalid credentials" }

// DocumentError reports a persisted document that does not conform to the schema.
type DocumentError struct {
	Section string
	Msg     string
}

func (err *DocumentError) Error() string {
	if err.Section == "" {
		return "malformed document: " + err.Msg
	}
	return fmt.Sprintf("malformed document: %s: %s", err.Section, err.Msg)
}

// ConflictKind returns the conflict kind of err when it is a DuplicateError or
// an IdentityMismatchError, and "" otherwise.
func ConflictKind(err error) string {
	var dup *DuplicateError
	if errors.As(err, &dup) {
		return dup.Kind
	}
	var idm *IdentityMismatchError
	if errors.As(err, &idm) {
		return idm.Kind()
	}
	return ""
}
