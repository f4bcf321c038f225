// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tomtom215/playwatch/internal/logging"
)

// Auth modes.
const (
	ModeNone = "none"
	ModeJWT  = "jwt"
)

type contextKey string

// ClaimsContextKey is the context key for *Claims.
const ClaimsContextKey contextKey = "claims"

var (
	errMissingToken  = errors.New("unauthorized: missing token")
	errInvalidHeader = errors.New("unauthorized: invalid authorization header")
)

// ErrorWriter writes an error response. The api package passes its JSON
// envelope writer so auth failures look like every other API error.
type ErrorWriter func(w http.ResponseWriter, status int, code, message string)

// Middleware enforces authentication on the admin API.
type Middleware struct {
	jwtManager *JWTManager
	authMode   string
	writeError ErrorWriter
}

// NewMiddleware creates the middleware. jwtManager may be nil in none mode.
func NewMiddleware(jwtManager *JWTManager, authMode string, writeError ErrorWriter) *Middleware {
	if writeError == nil {
		writeError = func(w http.ResponseWriter, status int, _ string, message string) {
			http.Error(w, message, status)
		}
	}
	return &Middleware{
		jwtManager: jwtManager,
		authMode:   authMode,
		writeError: writeError,
	}
}

// Authenticate validates the bearer token (or the "token" cookie) and stores
// the claims in the request context. In none mode every request passes as an
// anonymous admin.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.authMode == ModeNone {
			claims := &Claims{Username: "anonymous", Role: RoleAdmin}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
			return
		}

		token, err := extractToken(r)
		if err != nil {
			m.writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
			return
		}

		claims, err := m.jwtManager.ValidateToken(token)
		if err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Msg("token validation failed")
			m.writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized: invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// RequireRole rejects authenticated requests whose role is not role. It must
// run after Authenticate.
func (m *Middleware) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				m.writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", errMissingToken.Error())
				return
			}
			if claims.Role != role {
				m.writeError(w, http.StatusForbidden, "FORBIDDEN", "forbidden: insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		cookie, err := r.Cookie("token")
		if err != nil {
			return "", errMissingToken
		}
		return cookie.Value, nil
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", errInvalidHeader
	}
	return token, nil
}

// WithClaims stores claims in ctx.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, ClaimsContextKey, c)
}

// ClaimsFromContext returns the claims stored by Authenticate.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ClaimsContextKey).(*Claims)
	return c, ok && c != nil
}
