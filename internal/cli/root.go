// Package cli implements the glmbot admin commands.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rkoyama/glmbot/internal/config"
	"github.com/rkoyama/glmbot/internal/store"
)

var (
	dbPath     string
	configPath string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "glmbot",
	Short: "Chatbot core: sessions, memory, schedules, permissions",
	Long:  "Admin surface for the glmbot core. SQLite-backed, single binary. The chat gateway and model backend attach through interfaces; the ask and serve commands run against the built-in mock model.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $GLMBOT_DB or ~/.glmbot/glmbot.db)")
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (YAML)")
}

func loadConfig() config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		exitErr("load config", err)
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	return cfg
}

func openStore(cfg config.Config) *store.Store {
	s, err := store.New(cfg.DBPath)
	if err != nil {
		exitErr("open store", err)
	}
	return s
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
