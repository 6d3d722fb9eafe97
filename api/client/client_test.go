package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lora-console/core/models"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, r *mux.Router) *Client {
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, 5*time.Second)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestNewClientRejectsNonHTTP(t *testing.T) {
	_, err := NewClient("ftp://example.com", time.Second)
	assert.Error(t, err)

	c, err := NewClient("http://localhost:8000/", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", c.BaseURL())
}

func TestLogStreamURL(t *testing.T) {
	c, err := NewClient("http://localhost:8000", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8000/api/jobs/7/logs/ws", c.LogStreamURL(7))

	c, err = NewClient("https://trainer.example.com/base", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "wss://trainer.example.com/base/api/jobs/7/logs/ws", c.LogStreamURL(7))
}

func TestArtifactURL(t *testing.T) {
	c, err := NewClient("http://localhost:8000", time.Second)
	require.NoError(t, err)
	assert.Equal(t,
		"http://localhost:8000/api/jobs/3/artifacts/download?path=%2Fout%2Fa+b.safetensors",
		c.ArtifactURL(3, "/out/a b.safetensors"))
}

func TestErrorMessages(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/jobs/1/stop", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]string{"detail": "Job is not running"})
	}).Methods("POST")
	r.HandleFunc("/api/jobs/2/stop", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("  backend exploded \n"))
	}).Methods("POST")
	r.HandleFunc("/api/jobs/3/stop", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}).Methods("POST")
	r.HandleFunc("/api/jobs/4/stop", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"detail": []map[string]string{{"msg": "field required"}},
		})
	}).Methods("POST")
	r.HandleFunc("/api/jobs/5/stop", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"gpu busy"}`))
	}).Methods("POST")
	c := newTestClient(t, r)
	ctx := context.Background()

	_, err := c.StopJob(ctx, 1)
	require.Error(t, err)
	assert.Equal(t, "Job is not running", err.Error())
	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)

	_, err = c.StopJob(ctx, 2)
	require.Error(t, err)
	assert.Equal(t, "backend exploded", err.Error())

	_, err = c.StopJob(ctx, 3)
	require.Error(t, err)
	assert.Equal(t, "Request failed with 502", err.Error())

	// non-string detail keeps the raw body
	_, err = c.StopJob(ctx, 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field required")

	// JSON without detail passes through verbatim
	_, err = c.StopJob(ctx, 5)
	require.Error(t, err)
	assert.Equal(t, `{"error":"gpu busy"}`, err.Error())
}

func TestListJobsAndLogs(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"jobs": []map[string]interface{}{
				{"id": 7, "name": "faces", "engine": "ai-toolkit", "status": "running", "epochs": 10},
				{"id": 3, "name": "style", "engine": "kohya-ss", "status": "completed"},
			},
		})
	}).Methods("GET")
	r.HandleFunc("/api/jobs/{id}/logs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "120", r.URL.Query().Get("lines"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": 7, "lines": []string{"a", "b"}})
	}).Methods("GET")
	r.HandleFunc("/api/jobs/{id}/progress", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"current_step": 50, "total_steps": 200, "percent": 25, "loss": 0.12,
		})
	}).Methods("GET")
	c := newTestClient(t, r)
	ctx := context.Background()

	jobs, err := c.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, int64(7), jobs[0].ID)
	assert.Equal(t, models.JobStatusRunning, jobs[0].Status)
	assert.Equal(t, models.EngineKohyaSS, jobs[1].Engine)

	lines, err := c.GetLogs(ctx, 7, 120)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, lines)

	progress, err := c.GetProgress(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 25, progress.Percent)
	require.NotNil(t, progress.Loss)
	assert.Equal(t, 0.12, *progress.Loss)
	assert.Nil(t, progress.ETA)
}

func TestCreateJobSendsExtra(t *testing.T) {
	var got map[string]interface{}
	r := mux.NewRouter()
	r.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusCreated, map[string]interface{}{"id": 9, "name": got["name"], "status": "queued"})
	}).Methods("POST")
	c := newTestClient(t, r)

	job, err := c.CreateJob(context.Background(), &models.JobCreateRequest{
		Name:         "faces",
		Engine:       models.EngineAIToolkit,
		DatasetPath:  "/data/faces",
		BaseModel:    "base",
		OutputDir:    "/out",
		Epochs:       10,
		LearningRate: 1e-4,
		BatchSize:    1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9), job.ID)
	assert.Equal(t, map[string]interface{}{}, got["extra"])
}

func TestEmptyAcknowledgement(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/jobs/{id}/start", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods("POST")
	c := newTestClient(t, r)

	result, err := c.StartJob(context.Background(), 5)
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestUploadDataset(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/uploads", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		raw, _ := io.ReadAll(file)
		writeJSON(w, http.StatusOK, models.UploadResult{
			Filename: header.Filename,
			Path:     "/runtime/uploads/" + header.Filename,
			Size:     int64(len(raw)),
		})
	}).Methods("POST")
	c := newTestClient(t, r)

	result, err := c.UploadDataset(context.Background(), "set.zip", bytes.NewReader([]byte("PK\x03\x04")))
	require.NoError(t, err)
	assert.Equal(t, "set.zip", result.Filename)
	assert.Equal(t, "/runtime/uploads/set.zip", result.Path)
	assert.Equal(t, int64(4), result.Size)
}

func TestPreviewDatasetLimit(t *testing.T) {
	var limits []string
	r := mux.NewRouter()
	r.HandleFunc("/api/datasets/preview", func(w http.ResponseWriter, r *http.Request) {
		limits = append(limits, r.URL.Query().Get("limit"))
		writeJSON(w, http.StatusOK, models.DatasetPreview{})
	}).Methods("GET")
	c := newTestClient(t, r)

	_, err := c.PreviewDataset(context.Background(), "/data", 0)
	require.NoError(t, err)
	_, err = c.PreviewDataset(context.Background(), "/data", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"", "5"}, limits)
}

func TestDownloadArtifact(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/jobs/{id}/artifacts/download", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/out/last.safetensors", r.URL.Query().Get("path"))
		w.Write([]byte("weights"))
	}).Methods("GET")
	c := newTestClient(t, r)

	var buf bytes.Buffer
	n, err := c.DownloadArtifact(context.Background(), 2, "/out/last.safetensors", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, "weights", buf.String())
}

func TestSubscribeLogs(t *testing.T) {
	upgrader := websocket.Upgrader{}
	r := mux.NewRouter()
	r.HandleFunc("/api/jobs/{id}/logs/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"id":7,"status":"running","lines":["step 1"],"progress":{"current_step":1,"total_steps":10,"percent":10}}`))
		for _, frame := range []string{`not json`, `null`, `["step 2"]`, `"step 2"`, ` `} {
			conn.WriteMessage(websocket.TextMessage, []byte(frame))
		}
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	c := newTestClient(t, r)

	stream, err := c.SubscribeLogs(context.Background(), 7)
	require.NoError(t, err)
	defer stream.Close()
	assert.Equal(t, int64(7), stream.JobID)
	assert.NotEmpty(t, stream.ID)

	msg, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, []string{"step 1"}, msg.Lines)
	require.NotNil(t, msg.Progress)
	assert.Equal(t, 10, msg.Progress.Percent)

	for i := 0; i < 5; i++ {
		_, err = stream.Next()
		assert.Equal(t, ErrMalformedMessage, err, "frame %d", i)
	}

	_, err = stream.Next()
	require.Error(t, err)
	assert.True(t, IsClosed(err))

	assert.NotPanics(t, func() {
		stream.Close()
		stream.Close()
	})
}

func TestSubscribeLogsRejected(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/jobs/{id}/logs/ws", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Job not found"})
	})
	c := newTestClient(t, r)

	_, err := c.SubscribeLogs(context.Background(), 99)
	require.Error(t, err)
	assert.Equal(t, "Job not found", err.Error())
}

func TestIsClosed(t *testing.T) {
	assert.False(t, IsClosed(nil))
	assert.True(t, IsClosed(&websocket.CloseError{Code: websocket.CloseGoingAway}))
	assert.False(t, IsClosed(&websocket.CloseError{Code: websocket.CloseAbnormalClosure}))
}
