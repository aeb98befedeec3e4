package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rkoyama/glmbot/internal/model"
	"github.com/rkoyama/glmbot/internal/session"
)

func init() {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and manage conversation sessions",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List live sessions",
		Run:   runSessionList,
	}

	clear := &cobra.Command{
		Use:   "clear",
		Short: "Empty a session's history, keeping the session itself",
		Run:   func(cmd *cobra.Command, args []string) { sessionOp(cmd, "clear") },
	}

	rm := &cobra.Command{
		Use:   "rm",
		Short: "Delete a session entirely",
		Run:   func(cmd *cobra.Command, args []string) { sessionOp(cmd, "rm") },
	}

	for _, c := range []*cobra.Command{clear, rm} {
		c.Flags().StringP("actor", "a", "", "Actor ID (required)")
		c.Flags().StringP("scope", "s", "", "Scope, e.g. a channel ID (required)")
		c.MarkFlagRequired("actor")
		c.MarkFlagRequired("scope")
	}

	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Reclaim sessions idle beyond the configured timeout",
		Run:   runSessionSweep,
	}

	sessionCmd.AddCommand(list, clear, rm, sweep)
	RootCmd.AddCommand(sessionCmd)
}

func newManager(cmd *cobra.Command) (*session.Manager, func()) {
	cfg := loadConfig()
	s := openStore(cfg)
	return session.NewManager(s, cfg.HistoryLimit, newLogger()), func() { s.Close() }
}

func runSessionList(cmd *cobra.Command, args []string) {
	m, done := newManager(cmd)
	defer done()

	sessions, err := m.List(cmd.Context())
	if err != nil {
		exitErr("session list", err)
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions")
		return
	}
	for _, sess := range sessions {
		fmt.Printf("%s  %s/%s  %d turns  last active %s\n",
			sess.ID, sess.Key.Actor, sess.Key.Scope, len(sess.Turns),
			sess.LastActive.Format(time.RFC3339))
	}
}

func sessionOp(cmd *cobra.Command, op string) {
	actor, _ := cmd.Flags().GetString("actor")
	scope, _ := cmd.Flags().GetString("scope")
	key := model.SessionKey{Actor: actor, Scope: scope}

	m, done := newManager(cmd)
	defer done()

	var err error
	if op == "clear" {
		err = m.Clear(cmd.Context(), key)
	} else {
		err = m.Remove(cmd.Context(), key)
	}
	if err != nil {
		exitErr("session "+op, err)
	}
	fmt.Println("ok")
}

func runSessionSweep(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	s := openStore(cfg)
	defer s.Close()

	m := session.NewManager(s, cfg.HistoryLimit, newLogger())
	n, err := m.Sweep(cmd.Context(), cfg.SessionTimeout)
	if err != nil {
		exitErr("session sweep", err)
	}
	fmt.Printf("swept %d sessions\n", n)
}
