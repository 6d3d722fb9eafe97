package models

import (
	"fmt"
	"time"
)

// Job represents a training run tracked by the job API
type Job struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Engine       Engine     `json:"engine"`
	Status       JobStatus  `json:"status"`
	DatasetPath  string     `json:"dataset_path"`
	BaseModel    string     `json:"base_model"`
	OutputDir    string     `json:"output_dir"`
	Epochs       int        `json:"epochs"`
	LearningRate float64    `json:"learning_rate"`
	BatchSize    int        `json:"batch_size"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	Command      *string    `json:"command,omitempty"`  // Set once started
	LogPath      *string    `json:"log_path,omitempty"` // Set once started
	ExitCode     *int       `json:"exit_code,omitempty"`
	Error        *string    `json:"error,omitempty"`
}

// Engine is the training toolkit a job runs on
type Engine string

const (
	EngineAIToolkit Engine = "ai-toolkit"
	EngineKohyaSS   Engine = "kohya-ss"
)

// Valid reports whether the engine is one the job API accepts
func (e Engine) Valid() bool {
	return e == EngineAIToolkit || e == EngineKohyaSS
}

// JobStatus represents the current status of a job.
// The server owns transitions; the client only reflects them.
type JobStatus string

const (
	JobStatusCreated   JobStatus = "created"
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusStopped   JobStatus = "stopped"
)

// IsTerminal reports whether no further transitions are expected
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusStopped:
		return true
	}
	return false
}

// CanStart is advisory: the start control is disabled while running
func (j *Job) CanStart() bool {
	return j.Status != JobStatusRunning
}

// CanStop is advisory: the stop control is only enabled while running
func (j *Job) CanStop() bool {
	return j.Status == JobStatusRunning
}

// CommandLine returns the resolved command or a placeholder when not started
func (j *Job) CommandLine() string {
	if j.Command == nil || *j.Command == "" {
		return "(not started)"
	}
	return *j.Command
}

// JobCreateRequest is the payload accepted by POST /api/jobs
type JobCreateRequest struct {
	Name         string                 `json:"name"`
	Engine       Engine                 `json:"engine"`
	DatasetPath  string                 `json:"dataset_path"`
	BaseModel    string                 `json:"base_model"`
	OutputDir    string                 `json:"output_dir"`
	Epochs       int                    `json:"epochs"`
	LearningRate float64                `json:"learning_rate"`
	BatchSize    int                    `json:"batch_size"`
	Extra        map[string]interface{} `json:"extra"`
}

// Validate mirrors the server's request constraints so obviously bad
// payloads fail before a round trip. The server remains authoritative.
func (r *JobCreateRequest) Validate() error {
	if r.Name == "" || len(r.Name) > 120 {
		return fmt.Errorf("name must be 1-120 characters")
	}
	if !r.Engine.Valid() {
		return fmt.Errorf("unsupported engine: %q", r.Engine)
	}
	if r.DatasetPath == "" {
		return fmt.Errorf("dataset_path is required")
	}
	if r.BaseModel == "" {
		return fmt.Errorf("base_model is required")
	}
	if r.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}
	if r.Epochs < 1 || r.Epochs > 1000 {
		return fmt.Errorf("epochs must be between 1 and 1000")
	}
	if r.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be positive")
	}
	if r.BatchSize < 1 || r.BatchSize > 128 {
		return fmt.Errorf("batch_size must be between 1 and 128")
	}
	return nil
}

// ActionResult is returned by start/stop requests
type ActionResult struct {
	ID      int64     `json:"id"`
	Status  JobStatus `json:"status"`
	Message string    `json:"message"`
}

// Health is the /api/healthz payload
type Health struct {
	OK         bool   `json:"ok"`
	DBPath     string `json:"db_path,omitempty"`
	RuntimeDir string `json:"runtime_dir,omitempty"`
}
