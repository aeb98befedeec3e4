// Package model defines the core data types shared across the bot.
package model

import "time"

// Role tags one side of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one role-tagged message within a session's history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SessionKey identifies one conversation thread: who is talking, and
// where. Immutable once created.
type SessionKey struct {
	Actor string `json:"actor"`
	Scope string `json:"scope"`
}

// Session is a bounded conversation window for one SessionKey. The
// turn slice is ordered oldest first and never exceeds the store's
// configured cap.
type Session struct {
	ID         string     `json:"id"`
	Key        SessionKey `json:"key"`
	Turns      []Turn     `json:"turns"`
	CreatedAt  time.Time  `json:"created_at"`
	LastActive time.Time  `json:"last_active"`
}

// MemoryRecord is one long-term fact owned by a single actor. It
// survives session destruction and is never visible to other actors.
type MemoryRecord struct {
	ID        string            `json:"id"`
	Actor     string            `json:"actor"`
	Content   string            `json:"content"`
	Category  string            `json:"category,omitempty"`
	Tags      []string          `json:"tags,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// ScheduledTask re-injects a prompt into a scope on a cron schedule.
// The expression is validated at creation; tasks recur until removed
// and may be paused via Enabled.
type ScheduledTask struct {
	ID        string    `json:"id"`
	Expr      string    `json:"expr"`
	Prompt    string    `json:"prompt"`
	Scope     string    `json:"scope"`
	Creator   string    `json:"creator"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}
