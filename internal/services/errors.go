package services

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindNotAuthenticated ErrorKind = "not_authenticated"
	KindNotAuthorized    ErrorKind = "not_authorized"
	KindNotFound         ErrorKind = "not_found"
	KindValidation       ErrorKind = "validation"
	KindStateConflict    ErrorKind = "state_conflict"
)

// DomainError is returned for every rule violation. Handlers map Kind to an HTTP status.
type DomainError struct {
	Kind    ErrorKind
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// Is matches on kind, and on message too when the target carries one.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

var (
	ErrNotAuthenticated = &DomainError{Kind: KindNotAuthenticated, Message: "not authenticated"}
	ErrAdminRequired    = &DomainError{Kind: KindNotAuthorized, Message: "admin access required"}

	ErrLogAlreadyProcessed = &DomainError{Kind: KindStateConflict, Message: "log has already been processed"}
	ErrLogApproved         = &DomainError{Kind: KindStateConflict, Message: "cannot modify an approved log"}
	ErrLogExists           = &DomainError{Kind: KindStateConflict, Message: "log already exists for this date, please update instead"}
	ErrSelfVote            = &DomainError{Kind: KindStateConflict, Message: "you cannot vote for yourself"}
	ErrAlreadyJoined       = &DomainError{Kind: KindStateConflict, Message: "already joined this challenge"}
	ErrChallengeArchived   = &DomainError{Kind: KindStateConflict, Message: "challenge is already archived"}
	ErrChallengeInactive   = &DomainError{Kind: KindStateConflict, Message: "challenge is not active"}
	ErrChallengeEnded      = &DomainError{Kind: KindStateConflict, Message: "challenge has ended"}

	// Kind-only values for errors.Is checks.
	ErrNotFound      = &DomainError{Kind: KindNotFound}
	ErrValidation    = &DomainError{Kind: KindValidation}
	ErrStateConflict = &DomainError{Kind: KindStateConflict}
	ErrNotAuthorized = &DomainError{Kind: KindNotAuthorized}
)

func newNotFound(format string, args ...interface{}) error {
	return &DomainError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func newValidation(format string, args ...interface{}) error {
	return &DomainError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func newConflict(format string, args ...interface{}) error {
	return &DomainError{Kind: KindStateConflict, Message: fmt.Sprintf(format, args...)}
}

func newForbidden(format string, args ...interface{}) error {
	return &DomainError{Kind: KindNotAuthorized, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the domain kind of err, or "" for infrastructure errors.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
