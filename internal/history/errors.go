// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package history

import (
	"errors"

	"github.com/tomtom215/playwatch/internal/database"
)

// Class is the failure category of an error.
type Class string

const (
	ClassNone       Class = ""
	ClassTransient  Class = "transient"
	ClassData       Class = "data"
	ClassCorruption Class = "corruption"
)

var (
	// ErrIncompleteSession is returned for sessions that cannot form a record.
	ErrIncompleteSession = errors.New("session is missing required history fields")

	// ErrNoSpool is returned by Spill when no spool is configured.
	ErrNoSpool = errors.New("history spool is not configured")
)

// Classify maps an error to its failure category. Transient errors may be
// retried; data and corruption errors abandon the record.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, database.ErrCorrupt):
		return ClassCorruption
	case errors.Is(err, database.ErrConstraint), errors.Is(err, ErrIncompleteSession):
		return ClassData
	default:
		return ClassTransient
	}
}
