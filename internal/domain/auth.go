package domain

import "context"

// Action names a privileged operation subject to authorization.
type Action string

const (
	ActionResolveMarket Action = "market.resolve"
	ActionDeleteMarket  Action = "market.delete"
)

// Authorizer decides whether a user may perform a privileged action. It is
// an injected policy resolved from configuration rather than an allow-list
// baked into call sites.
type Authorizer interface {
	// Authorize returns nil when permitted and ErrUnauthorized otherwise.
	Authorize(ctx context.Context, userID string, action Action) error
}

// User is the caller identity resolved from a request credential.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// IdentityProvider resolves a bearer credential to a user. Authentication
// flows themselves live outside this service.
type IdentityProvider interface {
	Resolve(ctx context.Context, token string) (User, error)
}
