package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rkoyama/glmbot/internal/scheduler"
)

func init() {
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage scheduled prompts",
	}

	add := &cobra.Command{
		Use:   "add [prompt]",
		Short: "Schedule a recurring prompt",
		Long:  "Schedule a recurring prompt. The cron expression is validated up front; a malformed or never-firing expression is rejected here.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runScheduleAdd,
	}
	add.Flags().String("cron", "", "5-field cron expression, e.g. \"0 9 * * 1-5\" (required)")
	add.Flags().String("scope", "", "Delivery scope, e.g. a channel ID (required)")
	add.Flags().String("as", "", "Creator actor ID (required)")
	add.MarkFlagRequired("cron")
	add.MarkFlagRequired("scope")
	add.MarkFlagRequired("as")

	list := &cobra.Command{
		Use:   "list",
		Short: "List scheduled prompts",
		Run:   runScheduleList,
	}

	rm := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a scheduled prompt",
		Args:  cobra.ExactArgs(1),
		Run:   runScheduleRm,
	}

	pause := &cobra.Command{
		Use:   "pause <id>",
		Short: "Pause a scheduled prompt without deleting it",
		Args:  cobra.ExactArgs(1),
		Run:   func(cmd *cobra.Command, args []string) { toggleTask(cmd, args[0], false) },
	}

	resume := &cobra.Command{
		Use:   "resume <id>",
		Short: "Resume a paused prompt",
		Args:  cobra.ExactArgs(1),
		Run:   func(cmd *cobra.Command, args []string) { toggleTask(cmd, args[0], true) },
	}

	scheduleCmd.AddCommand(add, list, rm, pause, resume)
	RootCmd.AddCommand(scheduleCmd)
}

// newScheduler builds a scheduler for admin operations; its tick loop
// never runs here, so no dispatcher is wired.
func newScheduler(cmd *cobra.Command) (*scheduler.Scheduler, func()) {
	cfg := loadConfig()
	s := openStore(cfg)
	sched := scheduler.New(s, nil, cfg.TickInterval, cfg.DispatchTimeout, newLogger())
	if err := sched.Load(cmd.Context()); err != nil {
		s.Close()
		exitErr("load schedules", err)
	}
	return sched, func() { s.Close() }
}

func runScheduleAdd(cmd *cobra.Command, args []string) {
	expr, _ := cmd.Flags().GetString("cron")
	scope, _ := cmd.Flags().GetString("scope")
	creator, _ := cmd.Flags().GetString("as")

	sched, done := newScheduler(cmd)
	defer done()

	task, err := sched.Add(cmd.Context(), expr, strings.Join(args, " "), scope, creator)
	if err != nil {
		exitErr("schedule add", err)
	}
	printJSON(task)
}

func runScheduleList(cmd *cobra.Command, args []string) {
	sched, done := newScheduler(cmd)
	defer done()

	tasks := sched.List()
	if len(tasks) == 0 {
		fmt.Println("no scheduled prompts")
		return
	}
	for _, task := range tasks {
		state := "enabled"
		if !task.Enabled {
			state = "paused"
		}
		fmt.Printf("%s  %-16s %-9s %s  %s\n",
			task.ID, task.Expr, state, task.CreatedAt.Format(time.DateOnly), task.Prompt)
	}
}

func runScheduleRm(cmd *cobra.Command, args []string) {
	sched, done := newScheduler(cmd)
	defer done()

	if err := sched.Remove(cmd.Context(), args[0]); err != nil {
		exitErr("schedule rm", err)
	}
	fmt.Println("removed")
}

func toggleTask(cmd *cobra.Command, id string, enabled bool) {
	sched, done := newScheduler(cmd)
	defer done()

	if err := sched.Toggle(cmd.Context(), id, enabled); err != nil {
		exitErr("schedule toggle", err)
	}
	if enabled {
		fmt.Println("resumed")
	} else {
		fmt.Println("paused")
	}
}
