// Package bot runs the request pipeline: permission gate, rate limit,
// session history, completion with memory tools, durable commit.
package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rkoyama/glmbot/internal/llm"
	"github.com/rkoyama/glmbot/internal/model"
	"github.com/rkoyama/glmbot/internal/perm"
	"github.com/rkoyama/glmbot/internal/ratelimit"
	"github.com/rkoyama/glmbot/internal/session"
	"github.com/rkoyama/glmbot/internal/store"
)

// ErrUpstream marks a completion backend failure. Live callers get a
// retry suggestion; the scheduled path logs and moves on.
var ErrUpstream = errors.New("upstream failure")

// ErrThrottled is returned when an actor exceeds the request rate.
var ErrThrottled = errors.New("rate limited")

// taskActor attributes scheduled prompts in sessions and memory rows.
const taskActor = "scheduler"

// maxToolRounds bounds the tool-call loop per request.
const maxToolRounds = 4

// Gateway delivers text to a scope. The chat transport implements it;
// tests use a recording fake.
type Gateway interface {
	Send(ctx context.Context, scope, text string) error
}

// Orchestrator wires the pipeline together. One instance serves all
// actors concurrently.
type Orchestrator struct {
	sessions *session.Manager
	store    *store.Store
	perms    *perm.Resolver
	limiter  *ratelimit.Limiter
	client   llm.Client
	gateway  Gateway
	logger   *slog.Logger
}

func New(sessions *session.Manager, st *store.Store, perms *perm.Resolver,
	limiter *ratelimit.Limiter, client llm.Client, gateway Gateway, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		sessions: sessions,
		store:    st,
		perms:    perms,
		limiter:  limiter,
		client:   client,
		gateway:  gateway,
		logger:   logger,
	}
}

// Ask runs one request end to end and returns the reply. The session
// key lock is never held across the completion call: history is read
// as a snapshot up front and the pair is committed after the reply is
// in hand.
func (o *Orchestrator) Ask(ctx context.Context, actor, scope, text string) (string, error) {
	ok, err := o.perms.Check(ctx, actor, perm.FileRead)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("actor %s: %w", actor, perm.ErrForbidden)
	}

	if !o.limiter.Allow(actor) {
		o.logger.Warn("request throttled", "actor", actor)
		return "", fmt.Errorf("actor %s: %w", actor, ErrThrottled)
	}

	key := model.SessionKey{Actor: actor, Scope: scope}
	sess, err := o.sessions.GetOrCreate(ctx, key)
	if err != nil {
		return "", err
	}

	messages := make([]llm.Message, 0, len(sess.Turns)+1)
	for _, turn := range sess.Turns {
		messages = append(messages, llm.Message{Role: string(turn.Role), Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: string(model.RoleUser), Content: text})

	reply, err := o.complete(ctx, actor, messages)
	if err != nil {
		return "", err
	}

	if err := o.sessions.AppendPair(ctx, key, text, reply); err != nil {
		return "", err
	}
	return reply, nil
}

// Dispatch implements scheduler.Dispatcher: a task's prompt flows
// through the same pipeline under a synthetic actor, and the reply is
// delivered to the task's scope.
func (o *Orchestrator) Dispatch(ctx context.Context, task model.ScheduledTask) error {
	reply, err := o.Ask(ctx, taskActor, task.Scope, task.Prompt)
	if err != nil {
		return fmt.Errorf("task %s: %w", task.ID, err)
	}
	if err := o.gateway.Send(ctx, task.Scope, reply); err != nil {
		return fmt.Errorf("deliver task %s: %w", task.ID, err)
	}
	return nil
}

// complete runs the completion loop, resolving remember/recall tool
// calls until the model answers in text.
func (o *Orchestrator) complete(ctx context.Context, actor string, messages []llm.Message) (string, error) {
	for round := 0; round < maxToolRounds; round++ {
		resp, err := o.client.Complete(ctx, messages, memoryTools)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrUpstream, err)
		}

		if len(resp.ToolCalls) == 0 {
			return resp.Text, nil
		}

		for _, call := range resp.ToolCalls {
			result, err := o.runTool(ctx, actor, call)
			if err != nil {
				o.logger.Warn("tool call failed", "tool", call.Name, "actor", actor, "error", err)
				result = fmt.Sprintf("error: %v", err)
			}
			messages = append(messages, llm.Message{Role: string(model.RoleSystem), Content: result})
		}
	}
	return "", fmt.Errorf("%w: tool loop did not converge", ErrUpstream)
}

var memoryTools = []llm.ToolDef{
	{
		Name:        "remember",
		Description: "Store a fact about the user for later recall.",
		Schema:      json.RawMessage(`{"type":"object","properties":{"content":{"type":"string"},"category":{"type":"string"},"tags":{"type":"array","items":{"type":"string"}}},"required":["content"]}`),
	},
	{
		Name:        "recall",
		Description: "Search previously stored facts about the user.",
		Schema:      json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"},"limit":{"type":"integer"}},"required":["query"]}`),
	},
}

// runTool executes one tool call scoped to the requesting actor.
func (o *Orchestrator) runTool(ctx context.Context, actor string, call llm.ToolCall) (string, error) {
	switch call.Name {
	case "remember":
		var args struct {
			Content  string   `json:"content"`
			Category string   `json:"category"`
			Tags     []string `json:"tags"`
		}
		if err := json.Unmarshal(call.Args, &args); err != nil {
			return "", fmt.Errorf("remember args: %w", err)
		}
		rec, err := o.store.Remember(ctx, actor, args.Content, args.Category, args.Tags, nil)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("remembered as %s", rec.ID), nil

	case "recall":
		var args struct {
			Query string `json:"query"`
			Limit int    `json:"limit"`
		}
		if err := json.Unmarshal(call.Args, &args); err != nil {
			return "", fmt.Errorf("recall args: %w", err)
		}
		if args.Limit <= 0 {
			args.Limit = 5
		}
		records, err := o.store.Recall(ctx, actor, args.Query, args.Limit)
		if err != nil {
			return "", err
		}
		if len(records) == 0 {
			return "no matching memories", nil
		}
		lines := make([]string, len(records))
		for i, rec := range records {
			lines[i] = fmt.Sprintf("- %s", rec.Content)
		}
		return strings.Join(lines, "\n"), nil

	default:
		return "", fmt.Errorf("unknown tool %q", call.Name)
	}
}
