package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// AddGrant records an explicit per-actor capability grant. Granting a
// capability the actor already holds is a no-op (reported as false).
func (s *Store) AddGrant(ctx context.Context, actor, capability, grantedBy string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO grants (actor, capability, granted_by, granted_at)
		 VALUES (?, ?, ?, ?)`,
		actor, capability, grantedBy, formatTime(time.Now().UTC()))
	if err != nil {
		return false, fmt.Errorf("insert grant: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RemoveGrant drops an explicit grant. Reports whether anything was
// actually revoked.
func (s *Store) RemoveGrant(ctx context.Context, actor, capability string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM grants WHERE actor = ? AND capability = ?`, actor, capability)
	if err != nil {
		return false, fmt.Errorf("delete grant: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GrantsFor returns the capability names explicitly granted to actor.
// Grants are read fresh on every permission check so revocations take
// effect immediately.
func (s *Store) GrantsFor(ctx context.Context, actor string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT capability FROM grants WHERE actor = ?`, actor)
	if err != nil {
		return nil, fmt.Errorf("load grants: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// SetRoleCaps replaces the capability set of a role.
func (s *Store) SetRoleCaps(ctx context.Context, role string, capabilities []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_caps WHERE role = ?`, role); err != nil {
		return fmt.Errorf("reset role: %w", err)
	}
	for _, capability := range capabilities {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO role_caps (role, capability) VALUES (?, ?)`, role, capability); err != nil {
			return fmt.Errorf("insert role cap: %w", err)
		}
	}
	return tx.Commit()
}

// DeleteRole removes a role definition entirely.
func (s *Store) DeleteRole(ctx context.Context, role string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM role_caps WHERE role = ?`, role); err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	return nil
}

// RoleCaps returns the union of capabilities granted by the given
// roles.
func (s *Store) RoleCaps(ctx context.Context, roles []string) ([]string, error) {
	if len(roles) == 0 {
		return nil, nil
	}

	query := `SELECT DISTINCT capability FROM role_caps WHERE role IN (?` +
		strings.Repeat(",?", len(roles)-1) + `)`
	args := make([]interface{}, len(roles))
	for i, r := range roles {
		args[i] = r
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load role caps: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
