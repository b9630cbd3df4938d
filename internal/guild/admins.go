package guild

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	logx "loungebot/pkg/logx"

	"loungebot/internal/storage"
)

// AdminGrant is one bot-admin entry. Exactly one of UserID / RoleID is
// set.
type AdminGrant struct {
	ID        int64
	GuildID   string
	UserID    string
	RoleID    string
	GrantedBy string
	GrantedAt time.Time
}

// IsRole reports whether the grant targets a role rather than a user.
func (g AdminGrant) IsRole() bool { return g.RoleID != "" }

// GrantUser makes a user a bot admin in the guild. Granting twice is a
// no-op.
func (s *Store) GrantUser(ctx context.Context, guildID, userID, grantedBy string) error {
	return s.grant(ctx, guildID, userID, "", grantedBy)
}

// GrantRole makes every holder of the role a bot admin in the guild.
func (s *Store) GrantRole(ctx context.Context, guildID, roleID, grantedBy string) error {
	return s.grant(ctx, guildID, "", roleID, grantedBy)
}

func (s *Store) grant(ctx context.Context, guildID, userID, roleID, grantedBy string) error {
	if userID == "" && roleID == "" {
		return fmt.Errorf("grant needs a user or a role")
	}
	// user_id/role_id use '' rather than NULL so the UNIQUE constraint
	// collapses duplicate grants.
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO bot_admins (guild_id, user_id, role_id, granted_by, granted_at)
		VALUES (?, ?, ?, ?, ?)`,
		guildID, userID, roleID,
		storage.NullStr(grantedBy), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("grant admin: %w", err)
	}
	s.log.Info("bot admin granted",
		logx.String("guild_id", guildID),
		logx.String("user_id", userID),
		logx.String("role_id", roleID),
		logx.String("granted_by", grantedBy),
	)
	return nil
}

// RevokeUser removes a user grant. Reports whether anything was
// removed.
func (s *Store) RevokeUser(ctx context.Context, guildID, userID string) (bool, error) {
	if userID == "" {
		return false, fmt.Errorf("user id required")
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM bot_admins WHERE guild_id = ? AND user_id = ?`, guildID, userID)
	if err != nil {
		return false, fmt.Errorf("revoke admin: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RevokeRole removes a role grant.
func (s *Store) RevokeRole(ctx context.Context, guildID, roleID string) (bool, error) {
	if roleID == "" {
		return false, fmt.Errorf("role id required")
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM bot_admins WHERE guild_id = ? AND role_id = ?`, guildID, roleID)
	if err != nil {
		return false, fmt.Errorf("revoke admin: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Grants lists the guild's admin entries, oldest first.
func (s *Store) Grants(ctx context.Context, guildID string) ([]AdminGrant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, guild_id, user_id, role_id, granted_by, granted_at
		FROM bot_admins WHERE guild_id = ? ORDER BY granted_at, id`, guildID)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	defer rows.Close()

	var out []AdminGrant
	for rows.Next() {
		var (
			g              AdminGrant
			user, role, by sql.NullString
			grantedMs      int64
		)
		if err := rows.Scan(&g.ID, &g.GuildID, &user, &role, &by, &grantedMs); err != nil {
			return nil, fmt.Errorf("scan admin row: %w", err)
		}
		g.UserID = user.String
		g.RoleID = role.String
		g.GrantedBy = by.String
		g.GrantedAt = time.UnixMilli(grantedMs).UTC()
		out = append(out, g)
	}
	return out, rows.Err()
}

// IsGranted reports whether the user, or any of the roles they hold,
// has an admin grant in the guild.
func (s *Store) IsGranted(ctx context.Context, guildID, userID string, roleIDs []string) (bool, error) {
	if guildID == "" || userID == "" {
		return false, nil
	}
	roles := roleIDs[:0:0]
	for _, r := range roleIDs {
		if r != "" {
			roles = append(roles, r)
		}
	}

	args := []any{guildID, userID}
	q := `SELECT COUNT(*) FROM bot_admins WHERE guild_id = ? AND (user_id = ?`
	if len(roles) > 0 {
		q += ` OR role_id IN (?` + strings.Repeat(", ?", len(roles)-1) + `)`
		for _, r := range roles {
			args = append(args, r)
		}
	}
	q += `)`

	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("check admin grant: %w", err)
	}
	return n > 0, nil
}
