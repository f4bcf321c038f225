// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

// Package auth protects the admin API.
//
// Two modes are supported through security.auth_mode:
//
//   - jwt: requests carry an HS256 token in "Authorization: Bearer <token>"
//     or a "token" cookie. Tokens are issued offline with
//     `playwatch -issue-token <name>` and signed with security.jwt_secret.
//   - none: every request is treated as the anonymous admin. Rejected by
//     config validation in production.
//
// There is a single role, admin.
package auth
