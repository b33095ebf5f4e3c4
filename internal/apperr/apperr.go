package apperr

import (
	"errors"
	"fmt"
)

// TransientError wraps a temporary provider failure (mail or model briefly
// unavailable). Callers retry or fall back; it is never written into an
// action's state.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// AuthExpiredError signals that a user's mail credentials are stale. The
// ingestion loop skips the user for the cycle and the UI prompts a reconnect.
type AuthExpiredError struct {
	UserEmail string
	Err       error
}

func (e *AuthExpiredError) Error() string {
	return fmt.Sprintf("mail credentials expired for %s: %v", e.UserEmail, e.Err)
}

func (e *AuthExpiredError) Unwrap() error { return e.Err }

func AuthExpired(userEmail string, err error) error {
	return &AuthExpiredError{UserEmail: userEmail, Err: err}
}

func IsAuthExpired(err error) bool {
	var a *AuthExpiredError
	return errors.As(err, &a)
}

// ValidationError refuses an action creation or approval before any side
// effect runs: missing payload field, cross-contractor target, stale offer.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// ParseError marks a model reply that is not well formed. Below the fallback
// boundary it is swallowed into a deterministic default instead of failing
// the turn.
type ParseError struct {
	Op  string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable model reply in %s: %v", e.Op, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func Parse(op string, err error) error {
	return &ParseError{Op: op, Err: err}
}

func IsParse(err error) bool {
	var p *ParseError
	return errors.As(err, &p)
}

// NotFoundError reports an unknown entity id.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}

// ConflictError reports a lost status race: the entity already moved past the
// state the caller observed. Double-approving an action lands here instead of
// double-sending.
type ConflictError struct {
	Entity string
	ID     string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s %s: %s", e.Entity, e.ID, e.Reason)
}

func Conflict(entity, id, reason string) error {
	return &ConflictError{Entity: entity, ID: id, Reason: reason}
}

func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}
