package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"lora-console/core/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Client is a typed wrapper around the job-management HTTP API.
// Every call issues exactly one request; nothing is retried or cached.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// APIError is returned for any non-2xx response
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewClient creates a client for the API rooted at baseURL.
// A zero timeout leaves requests unbounded.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid api url %q", baseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api url must be http or https, got %q", baseURL)
	}
	return &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: timeout},
		dialer:     websocket.DefaultDialer,
	}, nil
}

// BaseURL returns the API root
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Healthz handles GET /api/healthz
func (c *Client) Healthz(ctx context.Context) (*models.Health, error) {
	var health models.Health
	if err := c.doJSON(ctx, http.MethodGet, "/api/healthz", nil, nil, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// ListJobs handles GET /api/jobs
func (c *Client) ListJobs(ctx context.Context) ([]models.Job, error) {
	var payload struct {
		Jobs []models.Job `json:"jobs"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/jobs", nil, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Jobs, nil
}

// GetJob handles GET /api/jobs/{id}
func (c *Client) GetJob(ctx context.Context, jobID int64) (*models.Job, error) {
	var job models.Job
	if err := c.doJSON(ctx, http.MethodGet, jobPath(jobID, ""), nil, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// CreateJob handles POST /api/jobs
func (c *Client) CreateJob(ctx context.Context, req *models.JobCreateRequest) (*models.Job, error) {
	if req.Extra == nil {
		req.Extra = map[string]interface{}{}
	}
	var job models.Job
	if err := c.doJSON(ctx, http.MethodPost, "/api/jobs", nil, req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// StartJob handles POST /api/jobs/{id}/start
func (c *Client) StartJob(ctx context.Context, jobID int64) (*models.ActionResult, error) {
	var result models.ActionResult
	if err := c.doJSON(ctx, http.MethodPost, jobPath(jobID, "/start"), nil, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// StopJob handles POST /api/jobs/{id}/stop
func (c *Client) StopJob(ctx context.Context, jobID int64) (*models.ActionResult, error) {
	var result models.ActionResult
	if err := c.doJSON(ctx, http.MethodPost, jobPath(jobID, "/stop"), nil, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetLogs handles GET /api/jobs/{id}/logs?lines=N
func (c *Client) GetLogs(ctx context.Context, jobID int64, lines int) ([]string, error) {
	query := url.Values{}
	query.Set("lines", strconv.Itoa(lines))
	var payload struct {
		Lines []string `json:"lines"`
	}
	if err := c.doJSON(ctx, http.MethodGet, jobPath(jobID, "/logs"), query, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Lines, nil
}

// GetArtifacts handles GET /api/jobs/{id}/artifacts
func (c *Client) GetArtifacts(ctx context.Context, jobID int64) ([]string, error) {
	var payload struct {
		Artifacts []string `json:"artifacts"`
	}
	if err := c.doJSON(ctx, http.MethodGet, jobPath(jobID, "/artifacts"), nil, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Artifacts, nil
}

// GetProgress handles GET /api/jobs/{id}/progress
func (c *Client) GetProgress(ctx context.Context, jobID int64) (*models.JobProgress, error) {
	var progress models.JobProgress
	if err := c.doJSON(ctx, http.MethodGet, jobPath(jobID, "/progress"), nil, nil, &progress); err != nil {
		return nil, err
	}
	return &progress, nil
}

// UploadDataset handles POST /api/uploads as a multipart "file" field
func (c *Client) UploadDataset(ctx context.Context, filename string, r io.Reader) (*models.UploadResult, error) {
	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build upload form")
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, errors.Wrap(err, "failed to read upload")
	}
	if err := form.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to build upload form")
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/uploads", nil, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var result models.UploadResult
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ExtractUpload handles POST /api/uploads/extract
func (c *Client) ExtractUpload(ctx context.Context, path string) (*models.ExtractResult, error) {
	var result models.ExtractResult
	body := map[string]string{"path": path}
	if err := c.doJSON(ctx, http.MethodPost, "/api/uploads/extract", nil, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PreviewDataset handles GET /api/datasets/preview?path=&limit=.
// A limit <= 0 leaves the server default in place.
func (c *Client) PreviewDataset(ctx context.Context, path string, limit int) (*models.DatasetPreview, error) {
	query := url.Values{}
	query.Set("path", path)
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var preview models.DatasetPreview
	if err := c.doJSON(ctx, http.MethodGet, "/api/datasets/preview", query, nil, &preview); err != nil {
		return nil, err
	}
	return &preview, nil
}

// ArtifactURL returns the download link for an artifact
func (c *Client) ArtifactURL(jobID int64, artifact string) string {
	query := url.Values{}
	query.Set("path", artifact)
	return c.resolve(jobPath(jobID, "/artifacts/download"), query).String()
}

// DownloadArtifact streams GET /api/jobs/{id}/artifacts/download into w
func (c *Client) DownloadArtifact(ctx context.Context, jobID int64, artifact string, w io.Writer) (int64, error) {
	query := url.Values{}
	query.Set("path", artifact)
	req, err := c.newRequest(ctx, http.MethodGet, jobPath(jobID, "/artifacts/download"), query, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, errors.Wrapf(err, "%s %s", req.Method, req.URL.Path)
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return 0, err
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, errors.Wrap(err, "failed to read artifact")
	}
	return n, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		body = bytes.NewReader(raw)
	}
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path, query).String(), body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	return req, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", req.Method, req.URL.Path)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if err == io.EOF {
			// empty acknowledgement
			return nil
		}
		return errors.Wrapf(err, "failed to decode %s %s response", req.Method, req.URL.Path)
	}
	return nil
}

func (c *Client) resolve(path string, query url.Values) *url.URL {
	u := *c.baseURL
	u.Path = strings.TrimRight(c.baseURL.Path, "/") + path
	u.RawQuery = query.Encode()
	return &u
}

// checkResponse turns a non-2xx response into an APIError whose message is
// the body text, the FastAPI "detail" field when present, or the status.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	message := strings.TrimSpace(string(raw))

	var detail struct {
		Detail interface{} `json:"detail"`
	}
	if message != "" && json.Unmarshal(raw, &detail) == nil {
		if s, ok := detail.Detail.(string); ok && s != "" {
			message = s
		}
	}
	if message == "" {
		message = fmt.Sprintf("Request failed with %d", resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: message}
}

func jobPath(jobID int64, suffix string) string {
	return "/api/jobs/" + strconv.FormatInt(jobID, 10) + suffix
}
