package agent

import (
	"context"
	"errors"
)

// ErrScopeMissing is returned by tools invoked without a conversation scope.
var ErrScopeMissing = errors.New("tool invoked without tenant scope")

// Scope identifies who a turn runs for.
type Scope struct {
	TenantID       string
	TenantSlug     string
	UserID         string
	ConversationID string
}

type scopeKey struct{}

// WithScope attaches s to ctx for the tools of one turn.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFrom returns the scope attached by WithScope.
func ScopeFrom(ctx context.Context) (Scope, error) {
	s, ok := ctx.Value(scopeKey{}).(Scope)
	if !ok || s.TenantID == "" {
		return Scope{}, ErrScopeMissing
	}
	return s, nil
}
