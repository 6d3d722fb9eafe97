package presets

import (
	"lora-console/core/models"
)

// Form holds job creation values before they are submitted. Profile and
// VRAM helpers only ever change the form, never a job.
type Form struct {
	Name             string
	Engine           models.Engine
	DatasetPath      string
	BaseModel        string
	OutputDir        string
	ResumeCheckpoint string
	TrainCommand     string
	Epochs           int
	LearningRate     float64
	BatchSize        int
	Rank             int
	Alpha            int
	CaptionDropout   float64
	Precision        Precision
	Profile          Profile
	VRAMGB           float64
}

// NewForm returns the default form values
func NewForm() *Form {
	return &Form{
		Name:           "flux-job-1",
		Engine:         models.EngineAIToolkit,
		DatasetPath:    "/workspace/datasets/myset",
		BaseModel:      "black-forest-labs/FLUX.1-dev",
		OutputDir:      "/workspace/outputs/myset",
		Epochs:         10,
		LearningRate:   0.0001,
		BatchSize:      1,
		Rank:           32,
		Alpha:          16,
		CaptionDropout: 0.05,
		Precision:      PrecisionBF16,
		Profile:        ProfilePortrait,
		VRAMGB:         24,
	}
}

// ApplyProfile overwrites the six profile values with the named bundle
func (f *Form) ApplyProfile(p Profile) error {
	h, err := Lookup(p)
	if err != nil {
		return err
	}
	f.Profile = p
	f.Epochs = h.Epochs
	f.LearningRate = h.LearningRate
	f.BatchSize = h.BatchSize
	f.Rank = h.Rank
	f.Alpha = h.Alpha
	f.CaptionDropout = h.CaptionDropout
	return nil
}

// ApplyVRAM overwrites batch size, rank and precision with the suggestion
// for the form's VRAM size
func (f *Form) ApplyVRAM() VRAMSuggestion {
	s := SuggestByVRAM(f.VRAMGB)
	f.BatchSize = s.BatchSize
	f.Rank = s.Rank
	f.Precision = s.Precision
	return s
}

// Hyperparameters returns the profile-shaped subset of the form
func (f *Form) Hyperparameters() Hyperparameters {
	return Hyperparameters{
		Epochs:         f.Epochs,
		LearningRate:   f.LearningRate,
		BatchSize:      f.BatchSize,
		Rank:           f.Rank,
		Alpha:          f.Alpha,
		CaptionDropout: f.CaptionDropout,
	}
}

// Request builds the create payload. Engine-specific settings travel in
// Extra for the server to interpret.
func (f *Form) Request() *models.JobCreateRequest {
	return &models.JobCreateRequest{
		Name:         f.Name,
		Engine:       f.Engine,
		DatasetPath:  f.DatasetPath,
		BaseModel:    f.BaseModel,
		OutputDir:    f.OutputDir,
		Epochs:       f.Epochs,
		LearningRate: f.LearningRate,
		BatchSize:    f.BatchSize,
		Extra: map[string]interface{}{
			"resume_from_checkpoint": f.ResumeCheckpoint,
			"train_command":          f.TrainCommand,
			"profile":                string(f.Profile),
			"rank":                   f.Rank,
			"alpha":                  f.Alpha,
			"caption_dropout":        f.CaptionDropout,
			"precision":              string(f.Precision),
			"vram_gb":                f.VRAMGB,
		},
	}
}
