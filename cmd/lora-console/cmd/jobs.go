package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"lora-console/api/client"
	"lora-console/core/controller"
	"lora-console/core/dataset"
	"lora-console/core/models"
	"lora-console/core/monitoring"
	"lora-console/core/spec"
	"lora-console/core/store"
	"lora-console/core/view"
	"lora-console/storage"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List, create, start and stop training jobs",
	}
	cmd.AddCommand(
		jobsListCmd(),
		jobsShowCmd(),
		jobsCreateCmd(),
		jobActionCmd("start", "Start a job", (*client.Client).StartJob),
		jobActionCmd("stop", "Stop a running job", (*client.Client).StopJob),
		jobsLogsCmd(),
		jobsWaitCmd(),
		jobsDownloadCmd(),
	)
	return cmd
}

func jobsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			jobs, err := e.api.ListJobs(cmd.Context())
			if err != nil {
				return err
			}
			view.RenderJobList(cmd.OutOrStdout(), jobs, 0)
			return nil
		},
	}
}

func jobsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job's command, progress, log tail and artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseID(args[0])
			if err != nil {
				return err
			}
			e, err := setup(cmd)
			if err != nil {
				return err
			}

			st := store.State{SelectedID: jobID}
			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				job, err := e.api.GetJob(ctx, jobID)
				if err != nil {
					return err
				}
				st.Jobs = []models.Job{*job}
				return nil
			})
			g.Go(func() error {
				var err error
				st.Logs, err = e.api.GetLogs(ctx, jobID, e.cfg.LogLines)
				return err
			})
			g.Go(func() error {
				var err error
				st.Artifacts, err = e.api.GetArtifacts(ctx, jobID)
				return err
			})
			g.Go(func() error {
				progress, err := e.api.GetProgress(ctx, jobID)
				if err != nil {
					return err
				}
				st.Progress = *progress
				return nil
			})
			if err := g.Wait(); err != nil {
				return err
			}
			view.RenderJobDetail(cmd.OutOrStdout(), &st, e.api.ArtifactURL)
			return nil
		},
	}
}

func jobsCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create -f <spec.yaml>",
		Short: "Create a job from a YAML job spec",
		Long: `Creates a job from a YAML job spec. Values are layered: form defaults,
then the spec's profile, then its vram_gb suggestion, then explicit
training overrides. With --upload the local dataset is uploaded first
(zip archives are extracted on the server) and used as the dataset path.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			upload, _ := cmd.Flags().GetString("upload")

			raw, err := os.ReadFile(file)
			if err != nil {
				return errors.Wrap(err, "failed to read job spec")
			}
			req, err := spec.ParseJobSpec(raw)
			if err != nil {
				return err
			}

			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.logger.Sync()

			if upload != "" {
				outcome, err := dataset.NewUploader(e.api, e.logger).UploadFile(cmd.Context(), upload)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), outcome.Message())
				req.DatasetPath = outcome.DatasetPath
			}

			job, err := e.api.CreateJob(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created job #%d %s (%s)\n", job.ID, job.Name, job.Status)
			return nil
		},
	}
	cmd.Flags().StringP("file", "f", "", "YAML job spec")
	cmd.Flags().String("upload", "", "local dataset file or .zip to upload first")
	cmd.MarkFlagRequired("file")
	return cmd
}

func jobActionCmd(
	name, short string,
	call func(*client.Client, context.Context, int64) (*models.ActionResult, error),
) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <job-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseID(args[0])
			if err != nil {
				return err
			}
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			result, err := call(e.api, cmd.Context(), jobID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Job #%d: %s", jobID, result.Status)
			if result.Message != "" {
				fmt.Fprintf(out, " (%s)", result.Message)
			}
			fmt.Fprintln(out)
			return nil
		},
	}
}

func jobsLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs <job-id>",
		Short: "Print a job's log tail, optionally following the live stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseID(args[0])
			if err != nil {
				return err
			}
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.logger.Sync()
			if cmd.Flags().Changed("lines") {
				e.cfg.LogLines, _ = cmd.Flags().GetInt("lines")
			}
			follow, _ := cmd.Flags().GetBool("follow")

			opts := controller.Options{PollInterval: e.cfg.PollInterval, LogLines: e.cfg.LogLines}
			ctrl := controller.NewController(e.api, nil, store.New(), opts, e.logger)
			lines, err := ctrl.LoadLogs(cmd.Context(), jobID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, line := range lines {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return followLogs(ctx, e, jobID, lines, out)
		},
	}
	cmd.Flags().Int("lines", 120, "number of log lines to fetch")
	cmd.Flags().BoolP("follow", "F", false, "keep printing new lines from the live stream")
	return cmd
}

func followLogs(ctx context.Context, e *env, jobID int64, seen []string, out io.Writer) error {
	stream, err := e.api.SubscribeLogs(ctx, jobID)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		stream.Close()
	}()
	defer stream.Close()

	for {
		msg, err := stream.Next()
		if err == client.ErrMalformedMessage {
			e.logger.Debug("dropped malformed log frame", zap.Int64("job_id", jobID))
			continue
		}
		if err != nil {
			if ctx.Err() != nil || client.IsClosed(err) {
				return nil
			}
			return errors.New(controller.StreamDisconnectedMessage)
		}
		if msg.Lines == nil {
			continue
		}
		for _, line := range newLines(seen, msg.Lines) {
			fmt.Fprintln(out, line)
		}
		seen = msg.Lines
	}
}

// newLines returns the part of tail not already printed. Each frame carries
// a full tail window, so the longest suffix of prev that is a prefix of
// tail is skipped.
func newLines(prev, tail []string) []string {
	for overlap := min(len(prev), len(tail)); overlap > 0; overlap-- {
		if equalLines(prev[len(prev)-overlap:], tail[:overlap]) {
			return tail[overlap:]
		}
	}
	return tail
}

func equalLines(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func jobsWaitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wait <job-id>",
		Short: "Block until a job completes, fails or is stopped",
		Long: `Polls the job and prints a progress line whenever it changes. Exits
non-zero when the job ends in any status other than completed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseID(args[0])
			if err != nil {
				return err
			}
			stallAfter, _ := cmd.Flags().GetDuration("stall-after")
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.logger.Sync()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			out := cmd.OutOrStdout()
			last := ""
			jm := monitoring.NewJobMonitor(e.api, e.cfg.PollInterval, stallAfter, e.logger)
			final, err := jm.Wait(ctx, jobID, func(m *monitoring.JobMetrics) {
				line := fmt.Sprintf("%s %s", m.Status, view.ProgressLine(m.Progress))
				if m.Stalled {
					line += " [stalled]"
				}
				if line != last {
					fmt.Fprintln(out, line)
					last = line
				}
			})
			if err != nil {
				return err
			}
			if final.Status != models.JobStatusCompleted {
				if final.Error != nil && *final.Error != "" {
					return fmt.Errorf("job #%d %s: %s", jobID, final.Status, *final.Error)
				}
				return fmt.Errorf("job #%d %s", jobID, final.Status)
			}
			return nil
		},
	}
	cmd.Flags().Duration("stall-after", 10*time.Minute, "flag a running job whose step has not moved for this long (0 disables)")
	return cmd
}

func jobsDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download <job-id> [artifact]",
		Short: "Download an artifact, the latest checkpoint by default",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseID(args[0])
			if err != nil {
				return err
			}
			dir, _ := cmd.Flags().GetString("dir")
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.logger.Sync()

			cm := storage.NewCheckpointManager(e.api, e.logger)
			artifact := ""
			if len(args) == 2 {
				artifact = args[1]
			} else if artifact, err = cm.GetLatestCheckpoint(cmd.Context(), jobID); err != nil {
				return err
			}

			target, err := cm.Download(cmd.Context(), jobID, artifact, dir)
			if err != nil {
				return err
			}
			size := "?"
			if fi, err := os.Stat(target); err == nil {
				size = humanize.Bytes(uint64(fi.Size()))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s)\n", target, size)
			return nil
		},
	}
	cmd.Flags().String("dir", ".", "directory to save into")
	return cmd
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id %q", raw)
	}
	return id, nil
}
