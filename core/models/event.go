package models

// JobProgress is a point-in-time snapshot of training metrics.
// It is never persisted by the client; it is always fetched or pushed fresh.
type JobProgress struct {
	CurrentStep  int      `json:"current_step"`
	TotalSteps   int      `json:"total_steps"`
	Percent      int      `json:"percent"` // 0 - 100
	Loss         *float64 `json:"loss"`
	LearningRate *float64 `json:"learning_rate"`
	ETA          *string  `json:"eta"`
}

// LogMessage is one frame of the live log stream.
// Lines always replace the previous snapshot; Progress, when present,
// replaces the previous progress wholesale.
type LogMessage struct {
	ID       int64        `json:"id,omitempty"`
	Status   JobStatus    `json:"status,omitempty"`
	Lines    []string     `json:"lines,omitempty"`
	Progress *JobProgress `json:"progress,omitempty"`
}

// UploadResult describes a dataset file stored by the server
type UploadResult struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
}

// ExtractResult describes a server-side archive extraction
type ExtractResult struct {
	ExtractDir string `json:"extract_dir"`
	FileCount  int    `json:"file_count"`
}

// PreviewItem is one previewable dataset image
type PreviewItem struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

// DatasetPreview is a bounded listing of dataset images
type DatasetPreview struct {
	Count int           `json:"count"`
	Items []PreviewItem `json:"items"`
}
