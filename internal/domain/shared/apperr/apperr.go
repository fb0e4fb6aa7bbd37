// Package apperr defines the error kinds shared by every layer. Domain packages
// wrap one of these sentinels so transports can classify failures with errors.Is.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks malformed input: bad date range, amount mismatch.
	ErrValidation = errors.New("validation error")
	// ErrConflict marks overlapping dates, a duplicate in-flight payment or an already paid booking.
	ErrConflict = errors.New("conflict")
	// ErrNotFound marks a missing booking, property or payment.
	ErrNotFound = errors.New("not found")
	// ErrAccessDenied marks a caller lacking the capability for an operation.
	ErrAccessDenied = errors.New("access denied")
	// ErrGateway marks a failed or timed out call to an external money-movement gateway.
	ErrGateway = errors.New("gateway error")
	// ErrPersistenceRace marks a unique-constraint collision between concurrent writers.
	ErrPersistenceRace = errors.New("persistence race")
)

// Wrap attaches kind to err keeping both reachable through errors.Is.
func Wrap(kind error, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}

func Validation(msg string) error { return fmt.Errorf("%w: %s", ErrValidation, msg) }

func Conflict(msg string) error { return fmt.Errorf("%w: %s", ErrConflict, msg) }

func NotFound(msg string) error { return fmt.Errorf("%w: %s", ErrNotFound, msg) }

func AccessDenied(msg string) error { return fmt.Errorf("%w: %s", ErrAccessDenied, msg) }

func Gateway(msg string) error { return fmt.Errorf("%w: %s", ErrGateway, msg) }

// Retryable reports whether the caller may retry the same request later.
func Retryable(err error) bool {
	return errors.Is(err, ErrGateway) || errors.Is(err, ErrPersistenceRace)
}

var kinds = []struct {
	name string
	err  error
}{
	{"validation", ErrValidation},
	{"conflict", ErrConflict},
	{"not_found", ErrNotFound},
	{"access_denied", ErrAccessDenied},
	{"gateway", ErrGateway},
	{"persistence_race", ErrPersistenceRace},
}

// Kind returns the short name of the kind err wraps, or "" when unclassified.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return ""
}

// Restore rebuilds an error of the named kind from its message. The message is
// returned as is when it already starts with the kind text.
func Restore(kind, msg string) error {
	for _, k := range kinds {
		if k.name != kind {
			continue
		}
		msg = strings.TrimPrefix(msg, k.err.Error()+": ")
		return fmt.Errorf("%w: %s", k.err, msg)
	}
	return errors.New(msg)
}
