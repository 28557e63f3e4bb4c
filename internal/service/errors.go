package service

import (
	"errors"
	"fmt"

	"mnemosyne-api/internal/repository"
	"mnemosyne-api/pkg/apierror"
)

var (
	// ErrNotFound is the repository sentinel, re-exported for handlers.
	ErrNotFound = repository.ErrNotFound

	// ErrUnauthenticated means the operation needs a signed-in caller.
	ErrUnauthenticated = errors.New("sign in required")

	// ErrForbidden means the caller does not own the record.
	ErrForbidden = errors.New("only the author can do that")

	// ErrDeleteNotApplied means the store accepted a delete but the record
	// could still be read back afterwards.
	ErrDeleteNotApplied = errors.New("delete was not applied, refreshed from source")

	// ErrEmailTaken is returned by Signup for a registered email.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCredentials covers unknown emails and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// APIError renders the rejection as a 400 with the field attached.
func (e *ValidationError) APIError() *apierror.Error {
	return apierror.ValidationError("invalid input", apierror.FieldError{Field: e.Field, Message: e.Message})
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// RemoteError wraps a failed call to the backing store. Its message is
// safe to show to users; the cause stays available through Unwrap.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return e.APIError().Message
}

func (e *RemoteError) APIError() *apierror.Error {
	return apierror.RemoteFailure(e.Op)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func remote(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrConflict) {
		return err
	}
	return &RemoteError{Op: op, Err: err}
}
