package view

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"lora-console/core/models"
	"lora-console/core/store"

	"github.com/jedib0t/go-pretty/v6/table"
)

// URLFunc builds the download link for an artifact of a job
type URLFunc func(jobID int64, artifact string) string

// Actions is the advisory start/stop availability of a job
type Actions struct {
	JobID    int64            `json:"job_id"`
	Status   models.JobStatus `json:"status"`
	CanStart bool             `json:"can_start"`
	CanStop  bool             `json:"can_stop"`
}

// ActionsFor reports which controls are enabled for job
func ActionsFor(job *models.Job) Actions {
	return Actions{
		JobID:    job.ID,
		Status:   job.Status,
		CanStart: job.CanStart(),
		CanStop:  job.CanStop(),
	}
}

// Label renders enabled controls, e.g. "[start]"
func (a Actions) Label() string {
	var parts []string
	if a.CanStart {
		parts = append(parts, "[start]")
	}
	if a.CanStop {
		parts = append(parts, "[stop]")
	}
	return strings.Join(parts, " ")
}

// RenderJobList writes the job list as a table. The selected row is marked.
func RenderJobList(w io.Writer, jobs []models.Job, selectedID int64) {
	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs yet.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"", "ID", "Name", "Engine", "Status", "Base model", "Actions"})
	for i := range jobs {
		job := &jobs[i]
		marker := ""
		if job.ID == selectedID {
			marker = "*"
		}
		t.AppendRow(table.Row{
			marker,
			job.ID,
			job.Name,
			string(job.Engine),
			string(job.Status),
			job.BaseModel,
			ActionsFor(job).Label(),
		})
	}
	t.Render()
}

// ProgressLine formats progress as "step/total (pct%)" followed by whichever
// of loss, learning rate and eta are known
func ProgressLine(p models.JobProgress) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d/%d (%d%%)", p.CurrentStep, p.TotalSteps, p.Percent)
	if p.Loss != nil {
		b.WriteString(" · loss " + formatFloat(*p.Loss))
	}
	if p.LearningRate != nil {
		b.WriteString(" · lr " + formatFloat(*p.LearningRate))
	}
	if p.ETA != nil && *p.ETA != "" {
		b.WriteString(" · eta " + *p.ETA)
	}
	return b.String()
}

// RenderJobDetail writes the selected job's detail: command, output,
// progress, log tail and artifacts
func RenderJobDetail(w io.Writer, st *store.State, artifactURL URLFunc) {
	job := st.SelectedJob()
	if job == nil {
		fmt.Fprintln(w, "Select a job to view logs and artifacts.")
		return
	}

	fmt.Fprintf(w, "Job #%d: %s (%s)\n", job.ID, job.Name, job.Status)
	fmt.Fprintf(w, "Command:  %s\n", job.CommandLine())
	fmt.Fprintf(w, "Output:   %s\n", job.OutputDir)
	fmt.Fprintf(w, "Progress: %s\n", ProgressLine(st.Progress))
	if job.Error != nil && *job.Error != "" {
		fmt.Fprintf(w, "Failure:  %s\n", *job.Error)
	}
	if label := ActionsFor(job).Label(); label != "" {
		fmt.Fprintf(w, "Actions:  %s\n", label)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Live Logs")
	if len(st.Logs) == 0 {
		fmt.Fprintln(w, "No logs yet.")
	} else {
		for _, line := range st.Logs {
			fmt.Fprintln(w, line)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Artifacts")
	if len(st.Artifacts) == 0 {
		fmt.Fprintln(w, "No artifacts yet.")
		return
	}
	for _, artifact := range st.Artifacts {
		if artifactURL != nil {
			fmt.Fprintf(w, "- %s  %s\n", artifact, artifactURL(job.ID, artifact))
		} else {
			fmt.Fprintf(w, "- %s\n", artifact)
		}
	}
}

// RenderDashboard writes the health line, the current error if any, the
// job list and the selected job's detail
func RenderDashboard(w io.Writer, st *store.State, artifactURL URLFunc) {
	fmt.Fprintf(w, "API: %s\n", st.Health)
	if st.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", st.Error)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Jobs")
	RenderJobList(w, st.Jobs, st.SelectedID)
	fmt.Fprintln(w)
	RenderJobDetail(w, st, artifactURL)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
