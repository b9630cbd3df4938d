package guild

import (
	"context"
)

// Membership is what the transport layer knows about the caller when a
// restricted command arrives. HasAdminPermission reflects the Discord
// Administrator permission resolved by the gateway.
type Membership struct {
	GuildID            string
	UserID             string
	RoleIDs            []string
	HasAdminPermission bool
}

// Access resolves the privilege chain for restricted commands:
// configured owner, Discord administrator, granted user, granted role.
type Access struct {
	owners map[string]struct{}
	store  *Store
}

func NewAccess(ownerIDs []string, store *Store) *Access {
	owners := make(map[string]struct{}, len(ownerIDs))
	for _, id := range ownerIDs {
		if id != "" {
			owners[id] = struct{}{}
		}
	}
	return &Access{owners: owners, store: store}
}

// IsOwner reports whether the user is one of the configured bot owners.
// Owners pass every check, in or out of a guild.
func (a *Access) IsOwner(userID string) bool {
	_, ok := a.owners[userID]
	return ok
}

// IsBotAdmin walks the chain in order and stops at the first match.
func (a *Access) IsBotAdmin(ctx context.Context, m Membership) (bool, error) {
	if a.IsOwner(m.UserID) {
		return true, nil
	}
	if m.HasAdminPermission {
		return true, nil
	}
	if m.GuildID == "" {
		return false, nil
	}
	return a.store.IsGranted(ctx, m.GuildID, m.UserID, m.RoleIDs)
}
