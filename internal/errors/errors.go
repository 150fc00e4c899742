// Package errors classifies failures for the pipeline. Callers wrap or build errors and mark them
// with one of the sentinels below; retry and isolation decisions are taken on the mark, never on
// the message.
package errors

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrTransient marks failures worth retrying: rate limits, connection errors, 5xx responses.
	ErrTransient = errors.New("transient failure")
	// ErrNotFound marks lookups of entities that do not exist on the remote side.
	ErrNotFound = errors.New("resource not found")
	// ErrValidation marks rejected input such as an inconsistent scenario schedule.
	ErrValidation = errors.New("validation error")
	// ErrSetup marks failures that abort a whole run, e.g. an unreachable store.
	ErrSetup = errors.New("setup failure")
	// ErrSystem is the catch-all for unexpected remote or local failures.
	ErrSystem = errors.New("system error")
)

func IsTransient(err error) bool  { return errors.Is(err, ErrTransient) }
func IsNotFound(err error) bool   { return errors.Is(err, ErrNotFound) }
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
func IsSetup(err error) bool      { return errors.Is(err, ErrSetup) }

// Mark attaches reference to err so errors.Is(err, reference) holds.
func Mark(err error, reference error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, reference)
}

// Wrap annotates err with msg, keeping any marks already present.
func Wrap(err error, msg string) error {
	return errors.Wrap(err, msg)
}

// Wrapf is Wrap with formatting.
func Wrapf(err error, format string, args ...any) error {
	return errors.Wrapf(err, format, args...)
}

// Hints returns the user facing hints attached along the chain.
func Hints(err error) []string {
	return errors.GetAllHints(err)
}
