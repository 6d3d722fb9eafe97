package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lora-console/api/client"
	"lora-console/core/models"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeServer struct {
	uploads  map[string]string
	extracts []string
	preview  int
}

func (f *fakeServer) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/uploads", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		raw, _ := io.ReadAll(file)
		f.uploads[header.Filename] = string(raw)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(models.UploadResult{
			Filename: header.Filename,
			Path:     "/runtime/uploads/" + header.Filename,
			Size:     int64(len(raw)),
		})
	}).Methods("POST")
	r.HandleFunc("/api/uploads/extract", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Path string `json:"path"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.extracts = append(f.extracts, body.Path)
		json.NewEncoder(w).Encode(models.ExtractResult{
			ExtractDir: strings.TrimSuffix(strings.TrimSuffix(body.Path, ".zip"), ".ZIP") + "_extracted",
			FileCount:  42,
		})
	}).Methods("POST")
	r.HandleFunc("/api/datasets/preview", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Query().Get("path")
		if path == "/missing" {
			http.Error(w, `{"detail":"Dataset path not found"}`, http.StatusNotFound)
			return
		}
		items := make([]models.PreviewItem, 0, f.preview)
		for i := 0; i < f.preview; i++ {
			p := fmt.Sprintf("%s/%03d.png", path, i)
			items = append(items, models.PreviewItem{Path: p, URL: "/api/datasets/file?path=" + p})
		}
		json.NewEncoder(w).Encode(models.DatasetPreview{Count: len(items), Items: items})
	}).Methods("GET")
	return r
}

func newUploader(t *testing.T, f *fakeServer) *Uploader {
	srv := httptest.NewServer(f.router())
	t.Cleanup(srv.Close)
	c, err := client.NewClient(srv.URL, 5*time.Second)
	require.NoError(t, err)
	return NewUploader(c, zap.NewNop())
}

func TestUploadPlainFile(t *testing.T) {
	f := &fakeServer{uploads: map[string]string{}}
	u := newUploader(t, f)

	out, err := u.Upload(context.Background(), "captions.txt", strings.NewReader("a cat"))
	require.NoError(t, err)

	assert.False(t, out.Extracted)
	assert.Equal(t, "/runtime/uploads/captions.txt", out.DatasetPath)
	assert.Equal(t, "Uploaded: captions.txt", out.Message())
	assert.Equal(t, "a cat", f.uploads["captions.txt"])
	assert.Empty(t, f.extracts)
}

func TestUploadZipIsExtracted(t *testing.T) {
	f := &fakeServer{uploads: map[string]string{}}
	u := newUploader(t, f)

	dir := t.TempDir()
	archive := filepath.Join(dir, "Faces.ZIP")
	require.NoError(t, os.WriteFile(archive, []byte("PK"), 0o644))

	out, err := u.UploadFile(context.Background(), archive)
	require.NoError(t, err)

	assert.True(t, out.Extracted)
	assert.Equal(t, []string{"/runtime/uploads/Faces.ZIP"}, f.extracts)
	assert.Equal(t, "/runtime/uploads/Faces_extracted", out.DatasetPath)
	assert.Equal(t, "Uploaded + extracted: Faces.ZIP (42 files)", out.Message())
}

func TestPreviewIsCapped(t *testing.T) {
	u := newUploader(t, &fakeServer{preview: 30})

	items, err := u.Preview(context.Background(), "/data/set")
	require.NoError(t, err)
	assert.Len(t, items, MaxPreviewItems)
	assert.Equal(t, "/data/set/000.png", items[0].Path)
}

func TestPreviewEmptyAndMissing(t *testing.T) {
	u := newUploader(t, &fakeServer{})

	_, err := u.Preview(context.Background(), "/data/empty")
	assert.Equal(t, ErrNoPreviewImages, err)

	_, err = u.Preview(context.Background(), "/missing")
	require.Error(t, err)
	assert.Equal(t, "Dataset path not found", err.Error())
}
