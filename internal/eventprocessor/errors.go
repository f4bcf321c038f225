// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package eventprocessor

import "errors"

// ErrNilPublisher is returned when a mirror is created without a publisher.
var ErrNilPublisher = errors.New("publisher cannot be nil")

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("publisher is closed")

// ErrInvalidSubject is returned for empty or wildcard publish subjects.
var ErrInvalidSubject = errors.New("invalid subject")
