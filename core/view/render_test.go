package view

import (
	"bytes"
	"fmt"
	"testing"

	"lora-console/core/models"
	"lora-console/core/store"

	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func TestActionsForRunningJob(t *testing.T) {
	job := &models.Job{ID: 7, Status: models.JobStatusRunning}

	a := ActionsFor(job)
	assert.False(t, a.CanStart)
	assert.True(t, a.CanStop)
	assert.Equal(t, "[stop]", a.Label())
}

func TestActionsForIdleJobs(t *testing.T) {
	for _, status := range []models.JobStatus{
		models.JobStatusCreated,
		models.JobStatusQueued,
		models.JobStatusCompleted,
		models.JobStatusFailed,
		models.JobStatusStopped,
	} {
		a := ActionsFor(&models.Job{ID: 1, Status: status})
		assert.True(t, a.CanStart, status)
		assert.False(t, a.CanStop, status)
		assert.Equal(t, "[start]", a.Label(), status)
	}
}

func TestProgressLine(t *testing.T) {
	assert.Equal(t, "0/0 (0%)", ProgressLine(models.JobProgress{}))
	assert.Equal(t, "50/200 (25%) · loss 0.12 · lr 0.0001 · eta 00:04:10", ProgressLine(models.JobProgress{
		CurrentStep:  50,
		TotalSteps:   200,
		Percent:      25,
		Loss:         ptr(0.12),
		LearningRate: ptr(0.0001),
		ETA:          ptr("00:04:10"),
	}))
}

func TestRenderJobList(t *testing.T) {
	var buf bytes.Buffer
	RenderJobList(&buf, nil, 0)
	assert.Equal(t, "No jobs yet.\n", buf.String())

	buf.Reset()
	RenderJobList(&buf, []models.Job{
		{ID: 7, Name: "faces", Engine: models.EngineAIToolkit, Status: models.JobStatusRunning},
		{ID: 3, Name: "style", Engine: models.EngineKohyaSS, Status: models.JobStatusCompleted},
	}, 7)
	out := buf.String()
	assert.Contains(t, out, "faces")
	assert.Contains(t, out, "kohya-ss")
	assert.Contains(t, out, "[stop]")
	assert.Contains(t, out, "[start]")
	assert.Contains(t, out, "*")
}

func TestRenderJobDetailNothingSelected(t *testing.T) {
	var buf bytes.Buffer
	st := store.New().Snapshot()
	RenderJobDetail(&buf, &st, nil)
	assert.Equal(t, "Select a job to view logs and artifacts.\n", buf.String())
}

func TestRenderJobDetailEmpty(t *testing.T) {
	st := store.State{
		Jobs:       []models.Job{{ID: 2, Name: "new", Status: models.JobStatusCreated, OutputDir: "/out/new"}},
		SelectedID: 2,
	}
	var buf bytes.Buffer
	RenderJobDetail(&buf, &st, nil)

	out := buf.String()
	assert.Contains(t, out, "Command:  (not started)")
	assert.Contains(t, out, "Output:   /out/new")
	assert.Contains(t, out, "Progress: 0/0 (0%)")
	assert.Contains(t, out, "No logs yet.")
	assert.Contains(t, out, "No artifacts yet.")
	assert.Contains(t, out, "Actions:  [start]")
}

func TestRenderDashboard(t *testing.T) {
	st := store.State{
		Health: store.HealthOnline,
		Jobs: []models.Job{{
			ID:      7,
			Name:    "faces",
			Status:  models.JobStatusRunning,
			Command: ptr("python run.py config.yaml"),
		}},
		SelectedID: 7,
		Logs:       []string{"step 10", "step 11"},
		Artifacts:  []string{"/out/faces/last.safetensors"},
		Progress:   models.JobProgress{CurrentStep: 11, TotalSteps: 100, Percent: 11},
		Error:      "WebSocket log stream disconnected.",
	}
	url := func(jobID int64, artifact string) string {
		return fmt.Sprintf("http://api/jobs/%d/artifacts/download?path=%s", jobID, artifact)
	}

	var buf bytes.Buffer
	RenderDashboard(&buf, &st, url)

	out := buf.String()
	assert.Contains(t, out, "API: online")
	assert.Contains(t, out, "Error: WebSocket log stream disconnected.")
	assert.Contains(t, out, "Job #7: faces (running)")
	assert.Contains(t, out, "Command:  python run.py config.yaml")
	assert.Contains(t, out, "Actions:  [stop]")
	assert.Contains(t, out, "step 10\nstep 11\n")
	assert.Contains(t, out, "- /out/faces/last.safetensors  http://api/jobs/7/artifacts/download?path=/out/faces/last.safetensors")
}
