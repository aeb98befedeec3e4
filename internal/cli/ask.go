package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rkoyama/glmbot/internal/bot"
	"github.com/rkoyama/glmbot/internal/llm"
	"github.com/rkoyama/glmbot/internal/perm"
	"github.com/rkoyama/glmbot/internal/ratelimit"
	"github.com/rkoyama/glmbot/internal/session"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Run one message through the pipeline against the mock model",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAsk,
	}
	cmd.Flags().StringP("actor", "a", "cli", "Actor ID")
	cmd.Flags().StringP("scope", "s", "cli", "Scope, e.g. a channel ID")

	RootCmd.AddCommand(cmd)
}

func runAsk(cmd *cobra.Command, args []string) {
	actor, _ := cmd.Flags().GetString("actor")
	scope, _ := cmd.Flags().GetString("scope")

	cfg := loadConfig()
	s := openStore(cfg)
	defer s.Close()

	logger := newLogger()
	resolver, err := perm.NewResolver(s, nil, cfg.SuperUsers, cfg.DefaultCapabilities, logger)
	if err != nil {
		exitErr("permission resolver", err)
	}

	orch := bot.New(
		session.NewManager(s, cfg.HistoryLimit, logger),
		s, resolver,
		ratelimit.New(cfg.RateLimit, cfg.RateWindow),
		llm.NewMock(), discardGateway{}, logger,
	)

	reply, err := orch.Ask(cmd.Context(), actor, scope, strings.Join(args, " "))
	if err != nil {
		exitErr("ask", err)
	}
	fmt.Println(reply)
}
