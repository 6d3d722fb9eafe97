package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"lora-console/core/store"
	"lora-console/core/view"

	"github.com/spf13/cobra"
)

const clearScreen = "\033[H\033[2J"

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [job-id]",
		Short: "Follow jobs, progress and live logs in the terminal",
		Long: `Polls the job list, keeps the selected job's progress, artifacts and
log tail up to date, and redraws the dashboard on every change. Without a
job id the most recent job is selected.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.logger.Sync()

			var jobID int64
			if len(args) == 1 {
				if jobID, err = parseID(args[0]); err != nil {
					return err
				}
			}
			once, _ := cmd.Flags().GetBool("once")
			noClear, _ := cmd.Flags().GetBool("no-clear")

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if once {
				e.cfg.Stream = false
				ctrl := newController(e)
				ctrl.Init(ctx)
				if jobID != 0 {
					ctrl.Select(ctx, jobID)
				}
				ctrl.PollOnce(ctx)
				st := ctrl.Store().Snapshot()
				view.RenderDashboard(cmd.OutOrStdout(), &st, e.api.ArtifactURL)
				return nil
			}

			ctrl := newController(e)
			changes, unwatch := ctrl.Store().Watch()
			defer unwatch()

			done := make(chan struct{})
			go func() {
				defer close(done)
				ctrl.Start(ctx)
			}()
			if jobID != 0 {
				go selectWhenListed(ctx, ctrl.Store(), jobID, func() { ctrl.Select(ctx, jobID) })
			}

			redraw(cmd.OutOrStdout(), ctrl.Store(), e.api.ArtifactURL, !noClear)
			for {
				select {
				case <-ctx.Done():
					<-done
					return nil
				case <-changes:
					redraw(cmd.OutOrStdout(), ctrl.Store(), e.api.ArtifactURL, !noClear)
				}
			}
		},
	}
	cmd.Flags().Bool("once", false, "load once, print the dashboard and exit")
	cmd.Flags().Bool("no-clear", false, "append redraws instead of clearing the screen")
	return cmd
}

func redraw(w io.Writer, st *store.Store, artifactURL view.URLFunc, clearFirst bool) {
	snap := st.Snapshot()
	if clearFirst {
		fmt.Fprint(w, clearScreen)
	}
	view.RenderDashboard(w, &snap, artifactURL)
}

// selectWhenListed waits for jobID to appear in the list before selecting
// it, so the initial auto-selection does not win the race
func selectWhenListed(ctx context.Context, st *store.Store, jobID int64, selectFn func()) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if _, ok := st.Job(jobID); ok {
			selectFn()
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
