package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/solvaholic/wadigest/internal/digest"
	"github.com/solvaholic/wadigest/internal/logger"
	"github.com/solvaholic/wadigest/internal/retry"
	"github.com/solvaholic/wadigest/internal/scheduler"
	"github.com/solvaholic/wadigest/internal/utils"
)

var (
	scheduleSpec   string
	scheduleSend   bool
	scheduleNoRun  bool
	scheduleGroups []string
)

// scheduleCmd represents the schedule command
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run digests periodically",
	Long: `Run a digest for every configured group on a cron schedule until
interrupted. A failed digest is retried with a fixed delay and then skipped
until the next run.`,
	RunE: runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)

	scheduleCmd.Flags().StringVar(&scheduleSpec, "spec", "", "Cron spec (default: schedule.spec, e.g. '@every 24h' or '0 20 * * *')")
	scheduleCmd.Flags().BoolVar(&scheduleSend, "send", false, "Post summaries to the groups")
	scheduleCmd.Flags().BoolVar(&scheduleNoRun, "no-run-now", false, "Wait for the first scheduled run")
	scheduleCmd.Flags().StringSliceVarP(&scheduleGroups, "group", "g", nil, "Group chat IDs (default: configured groups)")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	groups := scheduleGroups
	if len(groups) == 0 {
		groups = settings.Groups
	}
	if len(groups) == 0 && settings.ActiveGroup != "" {
		groups = []string{settings.ActiveGroup}
	}
	if len(groups) == 0 {
		return fmt.Errorf("no groups to schedule: use --group or set WHATSAPP_GROUP_IDS")
	}

	cfg := scheduler.Config{
		Spec:       settings.Schedule.Spec,
		RetryDelay: settings.Schedule.RetryDelay,
		MaxRetries: settings.Schedule.MaxRetries,
		RunNow:     settings.Schedule.RunNow && !scheduleNoRun,
	}
	if scheduleSpec != "" {
		cfg.Spec = scheduleSpec
	}

	a, err := newApp(ctx, appOptions{publish: true})
	if err != nil {
		return err
	}
	defer a.Close()

	log := logger.Component("schedule")
	sched, err := scheduler.New(cfg, log)
	if err != nil {
		return err
	}

	for _, chatID := range groups {
		if err := sched.Add(chatID, digestJob(a.service, chatID)); err != nil {
			return err
		}
	}

	if err := sched.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	log.Info().Msg("Shutting down")
	sched.Stop()
	return nil
}

// digestJob runs one digest. Having nothing to summarize is not worth a
// retry.
func digestJob(svc *digest.Service, chatID string) scheduler.Job {
	return func(ctx context.Context) error {
		since := utils.DaysAgo(settings.Summary.Days)
		_, err := svc.Run(ctx, chatID, digest.RunOptions{Since: since, Send: scheduleSend})
		if errors.Is(err, digest.ErrNoMessages) || errors.Is(err, context.Canceled) {
			return retry.Permanent(err)
		}
		return err
	}
}
