package core

import (
	"context"

	"github.com/vovakirdan/huddle-server/internal/store"
)

// Identity is the authenticated user attached to a connection.
// It is treated as an immutable value once attached.
type Identity struct {
	ID          string
	DisplayName string
	AvatarRef   string
}

// Verifier resolves an opaque token into an Identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// IdentityFromUser projects a stored user onto its public identity.
func IdentityFromUser(u *store.User) Identity {
	return Identity{ID: u.ID, DisplayName: u.Name, AvatarRef: u.Avatar}
}
