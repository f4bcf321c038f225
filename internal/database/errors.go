// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package database

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCorrupt is returned when DuckDB reports an integrity failure.
	// Writes for the affected record must be abandoned, not retried.
	ErrCorrupt = errors.New("history store integrity failure")

	// ErrConstraint is returned when a row violates a table constraint.
	ErrConstraint = errors.New("history record violates constraint")

	// ErrRecordNotFound is returned when an update or lookup targets a missing row.
	ErrRecordNotFound = errors.New("history record not found")
)

// wrapError tags driver errors with the sentinel matching their class so
// callers can branch with errors.Is. Unrecognised errors pass through as-is.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case isCorruption(err):
		return fmt.Errorf("%s: %w: %v", op, ErrCorrupt, err)
	case isConstraintViolation(err):
		return fmt.Errorf("%s: %w: %v", op, ErrConstraint, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func isCorruption(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "INTERNAL Error") ||
		strings.Contains(msg, "Corrupt") ||
		strings.Contains(msg, "corrupt") ||
		strings.Contains(msg, "checksum")
}

func isConstraintViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Constraint Error") ||
		strings.Contains(msg, "violates")
}
