// Package auth provides the configuration-backed authorization policy and
// the bearer-token identity provider used by the HTTP layer.
package auth

import (
	"context"
	"strings"

	"github.com/oppredict/oppredict/internal/domain"
)

// Policy implements domain.Authorizer from a static role grant: users
// listed as admins may perform every privileged action. The grant is
// injected from configuration so deployments can change it without a
// rebuild.
type Policy struct {
	admins map[string]bool
}

// NewPolicy creates a Policy granting admin to the given user IDs.
func NewPolicy(adminIDs []string) *Policy {
	admins := make(map[string]bool, len(adminIDs))
	for _, id := range adminIDs {
		id = strings.TrimSpace(id)
		if id != "" {
			admins[id] = true
		}
	}
	return &Policy{admins: admins}
}

// Authorize returns nil when userID may perform action and
// domain.ErrUnauthorized otherwise.
func (p *Policy) Authorize(_ context.Context, userID string, _ domain.Action) error {
	if p.admins[userID] {
		return nil
	}
	return domain.ErrUnauthorized
}

// Compile-time interface check.
var _ domain.Authorizer = (*Policy)(nil)
