package spec

import (
	"fmt"

	"lora-console/core/models"
	"lora-console/core/presets"

	"gopkg.in/yaml.v3"
)

// JobSpec represents the YAML job specification
type JobSpec struct {
	Job JobSpecJob `yaml:"job"`
}

// JobSpecJob represents the job section of the spec
type JobSpecJob struct {
	Name      string           `yaml:"name"`
	Engine    string           `yaml:"engine"`
	BaseModel string           `yaml:"base_model"`
	OutputDir string           `yaml:"output_dir"`
	Profile   string           `yaml:"profile"`
	VRAMGB    *float64         `yaml:"vram_gb,omitempty"` // Applies the VRAM suggestion when set
	Data      JobSpecData      `yaml:"data"`
	Training  JobSpecTraining  `yaml:"training"`
	Execution JobSpecExecution `yaml:"execution"`
}

// JobSpecData represents dataset configuration
type JobSpecData struct {
	Dataset string `yaml:"dataset"`
}

// JobSpecTraining holds explicit overrides. Unset fields keep whatever the
// profile and VRAM suggestion produced.
type JobSpecTraining struct {
	Epochs         *int     `yaml:"epochs,omitempty"`
	LearningRate   *float64 `yaml:"learning_rate,omitempty"`
	BatchSize      *int     `yaml:"batch_size,omitempty"`
	Rank           *int     `yaml:"rank,omitempty"`
	Alpha          *int     `yaml:"alpha,omitempty"`
	CaptionDropout *float64 `yaml:"caption_dropout,omitempty"`
	Precision      *string  `yaml:"precision,omitempty"` // bf16 | fp16
}

// JobSpecExecution represents execution configuration
type JobSpecExecution struct {
	ResumeFrom   string `yaml:"resume_from"`
	TrainCommand string `yaml:"train_command"`
}

// ParseJobSpec parses a YAML job specification into a create request.
// Values are layered: form defaults, then profile, then VRAM suggestion,
// then explicit training overrides.
func ParseJobSpec(specYAML []byte) (*models.JobCreateRequest, error) {
	var spec JobSpec
	if err := yaml.Unmarshal(specYAML, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	form, err := spec.Form()
	if err != nil {
		return nil, err
	}

	req := form.Request()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid job spec: %w", err)
	}
	return req, nil
}

// Form applies the spec on top of the default form values
func (s *JobSpec) Form() (*presets.Form, error) {
	job := s.Job
	form := presets.NewForm()

	if job.Name != "" {
		form.Name = job.Name
	}
	if job.Engine != "" {
		form.Engine = models.Engine(job.Engine)
	}
	if job.BaseModel != "" {
		form.BaseModel = job.BaseModel
	}
	if job.OutputDir != "" {
		form.OutputDir = job.OutputDir
	}
	if job.Data.Dataset != "" {
		form.DatasetPath = job.Data.Dataset
	}
	form.ResumeCheckpoint = job.Execution.ResumeFrom
	form.TrainCommand = job.Execution.TrainCommand

	if job.Profile != "" {
		if err := form.ApplyProfile(presets.Profile(job.Profile)); err != nil {
			return nil, err
		}
	}
	if job.VRAMGB != nil {
		form.VRAMGB = *job.VRAMGB
		form.ApplyVRAM()
	}

	t := job.Training
	if t.Epochs != nil {
		form.Epochs = *t.Epochs
	}
	if t.LearningRate != nil {
		form.LearningRate = *t.LearningRate
	}
	if t.BatchSize != nil {
		form.BatchSize = *t.BatchSize
	}
	if t.Rank != nil {
		form.Rank = *t.Rank
	}
	if t.Alpha != nil {
		form.Alpha = *t.Alpha
	}
	if t.CaptionDropout != nil {
		form.CaptionDropout = *t.CaptionDropout
	}
	if t.Precision != nil {
		p := presets.Precision(*t.Precision)
		if p != presets.PrecisionBF16 && p != presets.PrecisionFP16 {
			return nil, fmt.Errorf("unsupported precision: %q", *t.Precision)
		}
		form.Precision = p
	}

	return form, nil
}
