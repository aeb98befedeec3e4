package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rkoyama/glmbot/internal/bot"
	"github.com/rkoyama/glmbot/internal/llm"
	"github.com/rkoyama/glmbot/internal/perm"
	"github.com/rkoyama/glmbot/internal/ratelimit"
	"github.com/rkoyama/glmbot/internal/scheduler"
	"github.com/rkoyama/glmbot/internal/session"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot core: scheduler and session sweeper",
		Long:  "Run the bot core until interrupted. Scheduled prompts fire through the pipeline; idle sessions are swept periodically. Deliveries go to the log until a chat gateway is attached.",
		Run:   runServe,
	}
	RootCmd.AddCommand(cmd)
}

// discardGateway drops deliveries; used by one-shot ask.
type discardGateway struct{}

func (discardGateway) Send(context.Context, string, string) error { return nil }

// logGateway logs deliveries in place of a chat transport.
type logGateway struct {
	logger *slog.Logger
}

func (g logGateway) Send(_ context.Context, scope, text string) error {
	g.logger.Info("delivery", "scope", scope, "text", text)
	return nil
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	logger := newLogger()

	s := openStore(cfg)
	defer s.Close()

	resolver, err := perm.NewResolver(s, nil, cfg.SuperUsers, cfg.DefaultCapabilities, logger)
	if err != nil {
		exitErr("permission resolver", err)
	}

	manager := session.NewManager(s, cfg.HistoryLimit, logger)
	orch := bot.New(manager, s, resolver,
		ratelimit.New(cfg.RateLimit, cfg.RateWindow),
		llm.NewMock(), logGateway{logger: logger}, logger)

	sched := scheduler.New(s, orch, cfg.TickInterval, cfg.DispatchTimeout, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sched.Load(ctx); err != nil {
		exitErr("load schedules", err)
	}

	go sched.Run(ctx)
	go sweepLoop(ctx, manager, cfg.SweepInterval, cfg.SessionTimeout, logger)

	logger.Info("glmbot serving", "db", cfg.DBPath)
	<-ctx.Done()
	logger.Info("shutting down")
}

func sweepLoop(ctx context.Context, m *session.Manager, interval, timeout time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Sweep(ctx, timeout); err != nil {
				logger.Error("session sweep failed", "error", err)
			}
		}
	}
}
