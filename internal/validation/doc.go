// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

// Package validation provides struct validation using go-playground/validator v10.
//
// A single validator instance is shared by configuration loading and the
// admin API. Field paths in errors use koanf keys (or json names for request
// types), so a bad notifier shows up as "notify.notifiers[0].agent" rather
// than a Go field name.
//
// Custom tags:
//   - notify_action: the value must name a notification action such as on_play
//
// Usage:
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    apiErr := verr.ToAPIError()
//	    respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
//	    return
//	}
package validation
