// Package apperr defines the user-facing error categories shared by every
// privkit operation.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind represents a category of failure.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindEncrypted   Kind = "encrypted"
	KindCorrupted   Kind = "corrupted"
	KindUnsupported Kind = "unsupported"
	KindCanceled    Kind = "canceled"
	KindInternal    Kind = "internal"
)

// Error is a structured application error.
type Error struct {
	Kind    Kind
	Message string
	Details string
	Cause   error
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Validation creates a validation error. Only the first detail is kept.
func Validation(message string, details ...string) *Error {
	e := &Error{Kind: KindValidation, Message: message}
	if len(details) > 0 {
		e.Details = details[0]
	}
	return e
}

// Wrap attaches a kind and message to cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

var patterns = []struct {
	kind  Kind
	words []string
}{
	{KindEncrypted, []string{"password", "encrypted"}},
	{KindCorrupted, []string{"corrupt", "invalid pdf", "startxref", "xref", "parse", "malformed", "unexpected eof"}},
}

var defaultMessages = map[Kind]string{
	KindEncrypted:   "the PDF is password protected; remove the password and try again",
	KindCorrupted:   "the file appears to be corrupted or is not a valid document",
	KindUnsupported: "this file type or feature is not supported",
	KindCanceled:    "the operation was canceled",
	KindInternal:    "an unexpected error occurred while processing the file",
}

// Classify maps err onto an *Error. Existing *Error values are returned
// as-is; other errors are categorized by context state and message text.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindCanceled, defaultMessages[KindCanceled], err)
	}
	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		for _, w := range p.words {
			if strings.Contains(msg, w) {
				return Wrap(p.kind, defaultMessages[p.kind], err)
			}
		}
	}
	return Wrap(KindInternal, defaultMessages[KindInternal], err)
}

// KindOf returns the kind Classify assigns to err, or "" for nil.
func KindOf(err error) Kind {
	if ae := Classify(err); ae != nil {
		return ae.Kind
	}
	return ""
}

// Is reports whether err classifies as kind.
func Is(err error, kind Kind) bool { return KindOf(err) == kind }

// UserMessage renders err for display on the command line.
func UserMessage(err error) string {
	ae := Classify(err)
	if ae == nil {
		return ""
	}
	if ae.Details != "" {
		return ae.Message + ": " + ae.Details
	}
	return ae.Message
}
