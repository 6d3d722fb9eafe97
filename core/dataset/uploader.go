package dataset

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"lora-console/core/models"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// MaxPreviewItems caps how many preview images are kept
const MaxPreviewItems = 12

// ErrNoPreviewImages is returned when a dataset path has nothing to preview
var ErrNoPreviewImages = errors.New("No previewable images found in dataset path.")

// API is the subset of the job API used for datasets
type API interface {
	UploadDataset(ctx context.Context, filename string, r io.Reader) (*models.UploadResult, error)
	ExtractUpload(ctx context.Context, path string) (*models.ExtractResult, error)
	PreviewDataset(ctx context.Context, path string, limit int) (*models.DatasetPreview, error)
}

// Uploader pushes local datasets to the job server
type Uploader struct {
	api    API
	logger *zap.Logger
}

// UploadOutcome tells the caller which dataset path to use
type UploadOutcome struct {
	Filename    string
	DatasetPath string
	Extracted   bool
	FileCount   int
}

// Message is the short status line shown after an upload
func (o *UploadOutcome) Message() string {
	if o.Extracted {
		return fmt.Sprintf("Uploaded + extracted: %s (%d files)", o.Filename, o.FileCount)
	}
	return fmt.Sprintf("Uploaded: %s", o.Filename)
}

// NewUploader creates a new uploader
func NewUploader(api API, logger *zap.Logger) *Uploader {
	return &Uploader{api: api, logger: logger}
}

// UploadFile uploads a local file. Zip archives are extracted on the
// server and the extraction directory becomes the dataset path.
func (u *Uploader) UploadFile(ctx context.Context, path string) (*UploadOutcome, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open dataset")
	}
	defer f.Close()
	return u.Upload(ctx, filepath.Base(path), f)
}

// Upload uploads r under filename
func (u *Uploader) Upload(ctx context.Context, filename string, r io.Reader) (*UploadOutcome, error) {
	uploaded, err := u.api.UploadDataset(ctx, filename, r)
	if err != nil {
		return nil, err
	}
	u.logger.Info("uploaded dataset",
		zap.String("filename", uploaded.Filename),
		zap.String("path", uploaded.Path),
		zap.Int64("size", uploaded.Size),
	)

	if !strings.HasSuffix(strings.ToLower(uploaded.Path), ".zip") {
		return &UploadOutcome{Filename: uploaded.Filename, DatasetPath: uploaded.Path}, nil
	}

	extracted, err := u.api.ExtractUpload(ctx, uploaded.Path)
	if err != nil {
		return nil, err
	}
	u.logger.Info("extracted dataset archive",
		zap.String("extract_dir", extracted.ExtractDir),
		zap.Int("file_count", extracted.FileCount),
	)
	return &UploadOutcome{
		Filename:    uploaded.Filename,
		DatasetPath: extracted.ExtractDir,
		Extracted:   true,
		FileCount:   extracted.FileCount,
	}, nil
}

// Preview lists up to MaxPreviewItems images under path
func (u *Uploader) Preview(ctx context.Context, path string) ([]models.PreviewItem, error) {
	preview, err := u.api.PreviewDataset(ctx, path, 0)
	if err != nil {
		return nil, err
	}
	if preview.Count == 0 {
		return nil, ErrNoPreviewImages
	}
	items := preview.Items
	if len(items) > MaxPreviewItems {
		items = items[:MaxPreviewItems]
	}
	return items, nil
}
