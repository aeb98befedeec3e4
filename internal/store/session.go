package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rkoyama/glmbot/internal/model"
)

// GetSession loads the session for key. Returns ErrNotFound when no
// row exists; a session with zero turns is a valid, distinct state.
func (s *Store) GetSession(ctx context.Context, key model.SessionKey) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, turns, created_at, last_active FROM sessions WHERE actor = ? AND scope = ?`,
		key.Actor, key.Scope)

	var id, turnsJSON, createdAt, lastActive string
	if err := row.Scan(&id, &turnsJSON, &createdAt, &lastActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %s/%s: %w", key.Actor, key.Scope, ErrNotFound)
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	var turns []model.Turn
	if err := json.Unmarshal([]byte(turnsJSON), &turns); err != nil {
		return nil, fmt.Errorf("decode session turns: %w", err)
	}
	return &model.Session{
		ID:         id,
		Key:        key,
		Turns:      turns,
		CreatedAt:  parseTime(createdAt),
		LastActive: parseTime(lastActive),
	}, nil
}

// PutSession upserts the full session row. The turn array is written
// as one JSON document so a session is always durably consistent: a
// reader sees either the old history or the new one, never a partial
// append.
func (s *Store) PutSession(ctx context.Context, sess *model.Session) error {
	turns := sess.Turns
	if turns == nil {
		turns = []model.Turn{}
	}
	turnsJSON, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("encode session turns: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (actor, scope, id, turns, created_at, last_active)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (actor, scope) DO UPDATE SET
		   turns = excluded.turns, last_active = excluded.last_active`,
		sess.Key.Actor, sess.Key.Scope, sess.ID, string(turnsJSON),
		formatTime(sess.CreatedAt), formatTime(sess.LastActive))
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// DeleteSession removes the session row for key. Returns ErrNotFound
// when there is nothing to delete.
func (s *Store) DeleteSession(ctx context.Context, key model.SessionKey) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE actor = ? AND scope = ?`, key.Actor, key.Scope)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s/%s: %w", key.Actor, key.Scope, ErrNotFound)
	}
	return nil
}

// ListSessions returns every stored session, oldest activity first.
func (s *Store) ListSessions(ctx context.Context) ([]model.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT actor, scope, id, turns, created_at, last_active FROM sessions ORDER BY last_active`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var actor, scope, id, turnsJSON, createdAt, lastActive string
		if err := rows.Scan(&actor, &scope, &id, &turnsJSON, &createdAt, &lastActive); err != nil {
			return nil, err
		}
		var turns []model.Turn
		if err := json.Unmarshal([]byte(turnsJSON), &turns); err != nil {
			// A corrupt row should not take down every session.
			continue
		}
		sessions = append(sessions, model.Session{
			ID:         id,
			Key:        model.SessionKey{Actor: actor, Scope: scope},
			Turns:      turns,
			CreatedAt:  parseTime(createdAt),
			LastActive: parseTime(lastActive),
		})
	}
	return sessions, rows.Err()
}

// SweepSessions deletes sessions whose last activity predates cutoff
// and reports how many were removed.
func (s *Store) SweepSessions(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE last_active < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
