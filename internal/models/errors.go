package models

import (
	"errors"
	"fmt"
)

// ParseError reports that an uploaded file could not be interpreted.
// The session keeps its previous summary.
type ParseError struct {
	Format SourceFormat
	File   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// PreconditionError reports that an operation was attempted before the
// session was ready for it. Nothing was mutated.
type PreconditionError struct {
	Missing string // "api_key" or "summary"
	Message string
}

func (e *PreconditionError) Error() string { return e.Message }

// ApiError reports a failed call to the hosted model.
type ApiError struct {
	Provider string
	Model    string
	Err      error
}

func (e *ApiError) Error() string {
	return fmt.Sprintf("%s/%s: %v", e.Provider, e.Model, e.Err)
}

func (e *ApiError) Unwrap() error { return e.Err }

// Precondition messages shown to the user.
const (
	MsgMissingAPIKey  = "Please enter your API key in the sidebar."
	MsgMissingSummary = "Please upload a database file first."
)

var (
	ErrMissingAPIKey  = &PreconditionError{Missing: "api_key", Message: MsgMissingAPIKey}
	ErrMissingSummary = &PreconditionError{Missing: "summary", Message: MsgMissingSummary}
)

// IsPrecondition reports whether err is a PreconditionError.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}
