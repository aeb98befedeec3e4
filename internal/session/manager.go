// Package session tracks bounded per-(actor, scope) conversation
// windows over the durable store.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rkoyama/glmbot/internal/model"
	"github.com/rkoyama/glmbot/internal/store"
)

// Manager owns all sessions. Operations on the same SessionKey are
// totally ordered through a per-key mutex; different keys proceed
// independently. Every mutation is written through to the store
// before the call returns, so a crash never loses a committed turn.
type Manager struct {
	store  *store.Store
	cap    int
	logger *slog.Logger

	mu    sync.Mutex
	locks map[model.SessionKey]*sync.Mutex
	cache map[model.SessionKey]*model.Session
}

// NewManager creates a Manager whose sessions hold at most historyCap
// turns.
func NewManager(st *store.Store, historyCap int, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  st,
		cap:    historyCap,
		logger: logger,
		locks:  make(map[model.SessionKey]*sync.Mutex),
		cache:  make(map[model.SessionKey]*model.Session),
	}
}

// keyLock returns the mutex serializing operations on key.
func (m *Manager) keyLock(key model.SessionKey) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

// GetOrCreate returns the session for key, creating an empty one on
// first use, and bumps last-activity. The returned session is a
// snapshot; the Manager keeps ownership of the live copy.
func (m *Manager) GetOrCreate(ctx context.Context, key model.SessionKey) (*model.Session, error) {
	l := m.keyLock(key)
	l.Lock()
	defer l.Unlock()

	sess, err := m.load(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		now := time.Now().UTC()
		sess = &model.Session{
			ID:         uuid.NewString(),
			Key:        key,
			Turns:      []model.Turn{},
			CreatedAt:  now,
			LastActive: now,
		}
		m.logger.Info("session created", "actor", key.Actor, "scope", key.Scope, "id", sess.ID)
	} else if err != nil {
		return nil, err
	}

	sess.LastActive = time.Now().UTC()
	if err := m.persist(ctx, sess); err != nil {
		return nil, err
	}
	return snapshot(sess), nil
}

// Get returns the session for key without creating one.
func (m *Manager) Get(ctx context.Context, key model.SessionKey) (*model.Session, error) {
	l := m.keyLock(key)
	l.Lock()
	defer l.Unlock()

	return m.load(ctx, key)
}

// History returns a snapshot of the turns for key, or ErrNotFound.
func (m *Manager) History(ctx context.Context, key model.SessionKey) ([]model.Turn, error) {
	sess, err := m.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return sess.Turns, nil
}

// Append adds one turn to an existing session, evicting the oldest
// turn beyond the cap. Returns store.ErrNotFound when the session
// does not exist; callers wanting implicit creation use GetOrCreate
// first.
func (m *Manager) Append(ctx context.Context, key model.SessionKey, role model.Role, content string) error {
	return m.append(ctx, key, model.Turn{Role: role, Content: content})
}

// AppendPair commits a request and its response as one durable write:
// after cancellation either both turns are stored or neither is.
func (m *Manager) AppendPair(ctx context.Context, key model.SessionKey, userText, assistantText string) error {
	return m.append(ctx, key,
		model.Turn{Role: model.RoleUser, Content: userText},
		model.Turn{Role: model.RoleAssistant, Content: assistantText})
}

func (m *Manager) append(ctx context.Context, key model.SessionKey, turns ...model.Turn) error {
	l := m.keyLock(key)
	l.Lock()
	defer l.Unlock()

	// A cancelled request commits nothing.
	if err := ctx.Err(); err != nil {
		return err
	}

	sess, err := m.load(ctx, key)
	if err != nil {
		return err
	}

	sess.Turns = append(sess.Turns, turns...)
	if excess := len(sess.Turns) - m.cap; excess > 0 {
		sess.Turns = append([]model.Turn(nil), sess.Turns[excess:]...)
	}
	sess.LastActive = time.Now().UTC()
	return m.persist(ctx, sess)
}

// Clear empties the turn sequence but keeps the session's identity
// and creation time, so "no history" stays distinct from "no
// session".
func (m *Manager) Clear(ctx context.Context, key model.SessionKey) error {
	l := m.keyLock(key)
	l.Lock()
	defer l.Unlock()

	sess, err := m.load(ctx, key)
	if err != nil {
		return err
	}
	sess.Turns = []model.Turn{}
	sess.LastActive = time.Now().UTC()
	return m.persist(ctx, sess)
}

// Remove destroys the session entirely.
func (m *Manager) Remove(ctx context.Context, key model.SessionKey) error {
	l := m.keyLock(key)
	l.Lock()
	defer l.Unlock()

	if err := m.store.DeleteSession(ctx, key); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.cache, key)
	m.mu.Unlock()
	return nil
}

// Sweep reclaims sessions idle longer than threshold and reports how
// many were removed. Meant to run periodically, not on every access.
func (m *Manager) Sweep(ctx context.Context, threshold time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-threshold)

	n, err := m.store.SweepSessions(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	// Cache entries are dropped but lock entries are kept: removing a
	// lock while a goroutine still holds its pointer would let a later
	// caller mint a second mutex for the same key and break per-key
	// ordering.
	m.mu.Lock()
	for key, sess := range m.cache {
		if sess.LastActive.Before(cutoff) {
			delete(m.cache, key)
		}
	}
	m.mu.Unlock()

	if n > 0 {
		m.logger.Info("swept idle sessions", "count", n)
	}
	return n, nil
}

// List returns all live sessions, for the admin surface.
func (m *Manager) List(ctx context.Context) ([]model.Session, error) {
	return m.store.ListSessions(ctx)
}

// load returns a copy of the session for key, from the cache or the
// store (warming the cache). Callers mutate the copy and publish it
// via persist; a failed store write therefore never leaves unwritten
// turns visible to readers. Caller must hold the key lock.
func (m *Manager) load(ctx context.Context, key model.SessionKey) (*model.Session, error) {
	m.mu.Lock()
	sess, ok := m.cache[key]
	m.mu.Unlock()
	if ok {
		return snapshot(sess), nil
	}

	sess, err := m.store.GetSession(ctx, key)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.cache[key] = sess
	m.mu.Unlock()
	return snapshot(sess), nil
}

// persist writes the session to the store and installs it in the
// cache only after the write succeeds, so the cache never gets ahead
// of the database. Caller must hold the key lock.
func (m *Manager) persist(ctx context.Context, sess *model.Session) error {
	if err := m.store.PutSession(ctx, sess); err != nil {
		return err
	}
	m.mu.Lock()
	m.cache[sess.Key] = sess
	m.mu.Unlock()
	return nil
}

func snapshot(sess *model.Session) *model.Session {
	copied := *sess
	copied.Turns = append([]model.Turn(nil), sess.Turns...)
	return &copied
}
