package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// checkpointExts are the artifact extensions that hold model weights
var checkpointExts = []string{".safetensors", ".ckpt", ".pt"}

// ArtifactAPI is the subset of the job API used to fetch artifacts
type ArtifactAPI interface {
	GetArtifacts(ctx context.Context, jobID int64) ([]string, error)
	DownloadArtifact(ctx context.Context, jobID int64, artifact string, w io.Writer) (int64, error)
}

// CheckpointManager downloads job artifacts and finds checkpoints
type CheckpointManager struct {
	api    ArtifactAPI
	logger *zap.Logger
}

// NewCheckpointManager creates a new checkpoint manager
func NewCheckpointManager(api ArtifactAPI, logger *zap.Logger) *CheckpointManager {
	return &CheckpointManager{
		api:    api,
		logger: logger,
	}
}

// IsCheckpoint reports whether an artifact path holds model weights
func IsCheckpoint(artifact string) bool {
	ext := strings.ToLower(path.Ext(artifact))
	for _, e := range checkpointExts {
		if ext == e {
			return true
		}
	}
	return false
}

// Checkpoints filters artifacts down to checkpoint files, sorted
func Checkpoints(artifacts []string) []string {
	out := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		if IsCheckpoint(a) {
			out = append(out, a)
		}
	}
	sort.Strings(out)
	return out
}

// LatestCheckpoint picks the last checkpoint in path order. Trainers name
// checkpoints with zero-padded epoch or step suffixes, so path order is
// training order.
func LatestCheckpoint(artifacts []string) (string, error) {
	cps := Checkpoints(artifacts)
	if len(cps) == 0 {
		return "", fmt.Errorf("no checkpoint found")
	}
	return cps[len(cps)-1], nil
}

// GetLatestCheckpoint retrieves the latest checkpoint for a job
func (cm *CheckpointManager) GetLatestCheckpoint(ctx context.Context, jobID int64) (string, error) {
	artifacts, err := cm.api.GetArtifacts(ctx, jobID)
	if err != nil {
		return "", err
	}
	latest, err := LatestCheckpoint(artifacts)
	if err != nil {
		return "", fmt.Errorf("no checkpoint found for job %d", jobID)
	}
	return latest, nil
}

// Download saves an artifact into dir under its base name and returns the
// local path. Partial files are removed on failure.
func (cm *CheckpointManager) Download(ctx context.Context, jobID int64, artifact, dir string) (string, error) {
	name := path.Base(filepath.ToSlash(artifact))
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("invalid artifact path %q", artifact)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create download dir")
	}
	target := filepath.Join(dir, name)

	f, err := os.Create(target)
	if err != nil {
		return "", errors.Wrap(err, "failed to create artifact file")
	}
	n, err := cm.api.DownloadArtifact(ctx, jobID, artifact, f)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(target)
		return "", err
	}

	cm.logger.Info("downloaded artifact",
		zap.Int64("job_id", jobID),
		zap.String("artifact", artifact),
		zap.String("target", target),
		zap.Int64("bytes", n),
	)
	return target, nil
}
