// Package middleware contains Telegram bot middlewares for request processing.
// These middlewares form a chain that processes every incoming update before
// it reaches the handler.
package middleware

import (
	"context"
	"fmt"

	"github.com/jbcub/studentdir/internal/application/query"
	"github.com/jbcub/studentdir/internal/domain/access"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT KEYS
// Used to pass data through the request context.
// ══════════════════════════════════════════════════════════════════════════════

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// RoleContextKey is the context key for the sender's access role.
	RoleContextKey contextKey = "role"

	// TelegramIDContextKey is the context key for the Telegram user ID.
	TelegramIDContextKey contextKey = "telegram_id"

	// RequestIDContextKey is the context key for request tracing.
	RequestIDContextKey contextKey = "request_id"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACCESS MIDDLEWARE
// Decides whether the sender may use the directory. Search needs any role,
// imports and reports need the admin role.
// ══════════════════════════════════════════════════════════════════════════════

// AccessChecker resolves the sender's role.
type AccessChecker interface {
	Handle(ctx context.Context, q query.CheckAccessQuery) (access.Role, error)
}

// DenialRecorder counts refused requests.
type DenialRecorder interface {
	AccessDenied()
}

// Requirement is what an action needs from the sender.
type Requirement int

const (
	// RequireNothing marks public actions (/start, /help, /join).
	RequireNothing Requirement = iota

	// RequireMember marks search and card navigation.
	RequireMember

	// RequireAdmin marks imports and reports.
	RequireAdmin
)

// AuthConfig holds configuration for the access middleware.
type AuthConfig struct {
	// DeniedMessage is sent to users without access.
	DeniedMessage string

	// AdminOnlyMessage is sent to members who try an admin action.
	AdminOnlyMessage string
}

// DefaultAuthConfig returns the default messages.
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		DeniedMessage:    "Access denied. Please contact the administrator to request access.",
		AdminOnlyMessage: "Only administrators can do this.",
	}
}

// AuthMiddleware checks access for every update.
type AuthMiddleware struct {
	checker AccessChecker
	denials DenialRecorder
	config  AuthConfig
}

// NewAuthMiddleware creates a new access middleware. denials may be nil.
func NewAuthMiddleware(checker AccessChecker, denials DenialRecorder, config AuthConfig) *AuthMiddleware {
	return &AuthMiddleware{
		checker: checker,
		denials: denials,
		config:  config,
	}
}

// AuthResult represents the result of the access check.
type AuthResult struct {
	// Role is the sender's role; RoleNone for strangers.
	Role access.Role

	// ShouldContinue indicates if request processing should continue.
	ShouldContinue bool

	// ResponseMessage is the message to send if access was refused.
	ResponseMessage string
}

// Authenticate resolves the role and checks it against the requirement.
// Public actions still get the role so handlers can tailor their reply.
func (m *AuthMiddleware) Authenticate(
	ctx context.Context,
	telegramID int64,
	username string,
	need Requirement,
) (*AuthResult, error) {
	role, err := m.checker.Handle(ctx, query.CheckAccessQuery{
		TelegramID: telegramID,
		Username:   username,
	})
	if err != nil {
		if need == RequireNothing {
			return &AuthResult{Role: access.RoleNone, ShouldContinue: true}, nil
		}
		return nil, fmt.Errorf("auth: check access: %w", err)
	}

	switch {
	case need == RequireNothing:
	case need == RequireMember && !role.CanSearch():
		return m.deny(role, m.config.DeniedMessage), nil
	case need == RequireAdmin && !role.CanImport():
		msg := m.config.AdminOnlyMessage
		if !role.CanSearch() {
			msg = m.config.DeniedMessage
		}
		return m.deny(role, msg), nil
	}

	return &AuthResult{Role: role, ShouldContinue: true}, nil
}

func (m *AuthMiddleware) deny(role access.Role, msg string) *AuthResult {
	if m.denials != nil {
		m.denials.AccessDenied()
	}
	return &AuthResult{
		Role:            role,
		ShouldContinue:  false,
		ResponseMessage: msg,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// ContextWithRole adds the sender's role to the context.
func ContextWithRole(ctx context.Context, role access.Role) context.Context {
	return context.WithValue(ctx, RoleContextKey, role)
}

// RoleFromContext retrieves the sender's role. Returns RoleNone if absent.
func RoleFromContext(ctx context.Context) access.Role {
	role, _ := ctx.Value(RoleContextKey).(access.Role)
	return role
}

// ContextWithTelegramID adds the Telegram ID to the context.
func ContextWithTelegramID(ctx context.Context, telegramID int64) context.Context {
	return context.WithValue(ctx, TelegramIDContextKey, telegramID)
}

// TelegramIDFromContext retrieves the Telegram ID from context.
// Returns 0 if not found.
func TelegramIDFromContext(ctx context.Context) int64 {
	id, ok := ctx.Value(TelegramIDContextKey).(int64)
	if !ok {
		return 0
	}
	return id
}

// ContextWithRequestID adds a request id used in logs and panic reports.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDContextKey, id)
}

// RequestIDFromContext retrieves the request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDContextKey).(string)
	return id
}
