package controller

import (
	"context"
	"sync"
	"time"

	"lora-console/core/models"
	"lora-console/core/store"

	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"
)

// API is the subset of the job API the controller drives
type API interface {
	Healthz(ctx context.Context) (*models.Health, error)
	ListJobs(ctx context.Context) ([]models.Job, error)
	CreateJob(ctx context.Context, req *models.JobCreateRequest) (*models.Job, error)
	StartJob(ctx context.Context, jobID int64) (*models.ActionResult, error)
	StopJob(ctx context.Context, jobID int64) (*models.ActionResult, error)
	GetLogs(ctx context.Context, jobID int64, lines int) ([]string, error)
	GetArtifacts(ctx context.Context, jobID int64) ([]string, error)
	GetProgress(ctx context.Context, jobID int64) (*models.JobProgress, error)
}

// Options tunes the controller
type Options struct {
	PollInterval time.Duration
	LogLines     int
	// Stream enables the live log subscription. When false, logs are
	// fetched over HTTP on every poll cycle instead.
	Stream bool
}

// DefaultOptions polls every 4s and streams logs for the selected job
func DefaultOptions() Options {
	return Options{
		PollInterval: 4 * time.Second,
		LogLines:     120,
		Stream:       true,
	}
}

// Controller keeps the store in sync with the job API: it polls, holds one
// live subscription for the selected job, and runs user intents
type Controller struct {
	api    API
	dial   StreamDialer
	store  *store.Store
	opts   Options
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	subMu      sync.Mutex
	sub        *subscription
	subSeq     uint64
	dialCancel context.CancelFunc

	polls    sync.WaitGroup
	stopOnce sync.Once
}

// NewController creates a new controller
func NewController(api API, dial StreamDialer, st *store.Store, opts Options, logger *zap.Logger) *Controller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultOptions().PollInterval
	}
	if opts.LogLines <= 0 {
		opts.LogLines = DefaultOptions().LogLines
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		api:    api,
		dial:   dial,
		store:  st,
		opts:   opts,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Store returns the view state the controller writes to
func (c *Controller) Store() *store.Store {
	return c.store
}

// Start checks health, loads the job list, then polls every PollInterval
// until ctx is cancelled or Stop is called. On return the poll loop has
// drained and the live subscription is closed.
func (c *Controller) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.ctx.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	defer c.teardown()

	c.Init(ctx)

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Ticks never wait for the previous cycle; store generations
			// discard whatever a slow cycle brings back late.
			c.polls.Add(1)
			go func() {
				defer c.polls.Done()
				c.PollOnce(ctx)
			}()
		}
	}
}

// Stop ends Start and releases the live subscription
func (c *Controller) Stop() {
	c.stopOnce.Do(c.cancel)
}

// Init runs the startup sequence: health check, then the first list load
func (c *Controller) Init(ctx context.Context) {
	c.CheckHealth(ctx)
	if err := c.refreshJobs(ctx); err != nil {
		c.fail("failed to load jobs", err)
	}
}

// CheckHealth updates the health indicator. Failure means offline and is
// never reported as an error.
func (c *Controller) CheckHealth(ctx context.Context) store.Health {
	health := store.HealthOffline
	hz, err := c.api.Healthz(ctx)
	if err != nil {
		c.logger.Warn("health check failed", zap.Error(err))
	} else if hz.OK {
		health = store.HealthOnline
	}
	c.store.SetHealth(health)
	return health
}

// PollOnce runs one poll cycle: the job list and the selected job's detail
// are refreshed concurrently and both awaited
func (c *Controller) PollOnce(ctx context.Context) {
	var g errgroup.Group
	g.Go(func() error {
		return c.refreshJobs(ctx)
	})
	g.Go(func() error {
		return c.refreshDetail(ctx)
	})
	if !c.opts.Stream {
		g.Go(func() error {
			return c.refreshLogs(ctx)
		})
	}
	if err := g.Wait(); err != nil {
		c.fail("poll cycle failed", err)
	}
}

// Select makes jobID the selection: the previous subscription is closed
// before the next one is opened, then the new job's detail is refreshed.
// Selecting 0 deselects and leaves no subscription open.
func (c *Controller) Select(ctx context.Context, jobID int64) {
	if !c.selectJob(jobID, false) {
		return
	}
	if jobID != 0 {
		if err := c.refreshDetail(ctx); err != nil {
			c.fail("failed to refresh job detail", err)
		}
	}
}

// Deselect clears the selection and closes the subscription
func (c *Controller) Deselect() {
	c.selectJob(0, false)
}

// CreateJob creates a job, refreshes the list and selects the new job
func (c *Controller) CreateJob(ctx context.Context, req *models.JobCreateRequest) (*models.Job, error) {
	c.store.ClearError()
	created, err := c.api.CreateJob(ctx, req)
	if err != nil {
		c.fail("failed to create job", err)
	}
	if rerr := c.refreshJobs(ctx); rerr != nil {
		c.fail("failed to refresh jobs", rerr)
	}
	if err != nil {
		return nil, err
	}
	c.logger.Info("created job", zap.Int64("job_id", created.ID), zap.String("name", created.Name))
	c.Select(ctx, created.ID)
	return created, nil
}

// StartJob asks the server to start jobID
func (c *Controller) StartJob(ctx context.Context, jobID int64) error {
	return c.runAction(ctx, jobID, "start", c.api.StartJob)
}

// StopJob asks the server to stop jobID
func (c *Controller) StopJob(ctx context.Context, jobID int64) error {
	return c.runAction(ctx, jobID, "stop", c.api.StopJob)
}

// LoadLogs fetches the log tail for jobID once, without touching the store
func (c *Controller) LoadLogs(ctx context.Context, jobID int64) ([]string, error) {
	lines, err := c.api.GetLogs(ctx, jobID, c.opts.LogLines)
	if err != nil {
		return nil, err
	}
	if lines == nil {
		lines = []string{}
	}
	return lines, nil
}

// runAction calls the API, then always refreshes the list once and, when
// jobID is selected, its detail once. The server's post-action state is
// what the store shows; nothing is patched optimistically.
func (c *Controller) runAction(
	ctx context.Context,
	jobID int64,
	name string,
	call func(context.Context, int64) (*models.ActionResult, error),
) error {
	c.store.ClearError()
	selected := c.store.SelectedID() == jobID

	result, err := call(ctx, jobID)
	if err != nil {
		c.fail("failed to "+name+" job", err, zap.Int64("job_id", jobID))
	} else {
		c.logger.Info("job action accepted",
			zap.String("action", name),
			zap.Int64("job_id", jobID),
			zap.String("status", string(result.Status)),
		)
	}

	if rerr := c.refreshJobs(ctx); rerr != nil {
		c.fail("failed to refresh jobs", rerr)
	}
	if selected {
		if rerr := c.refreshDetail(ctx); rerr != nil {
			c.fail("failed to refresh job detail", rerr)
		}
	}
	return err
}

func (c *Controller) refreshJobs(ctx context.Context) error {
	gen := c.store.BeginJobsRefresh()
	jobs, err := c.api.ListJobs(ctx)
	if err != nil {
		return err
	}
	firstID, applied := c.store.ApplyJobs(gen, jobs)
	if !applied {
		c.logger.Debug("dropped stale job list", zap.Uint64("generation", gen))
		return nil
	}
	if firstID != 0 && c.selectJob(firstID, true) {
		if err := c.refreshDetail(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) refreshDetail(ctx context.Context) error {
	gen, jobID := c.store.BeginDetailRefresh()
	if jobID == 0 {
		return nil
	}

	var (
		g         errgroup.Group
		artifacts []string
		progress  *models.JobProgress
	)
	g.Go(func() error {
		var err error
		artifacts, err = c.api.GetArtifacts(ctx, jobID)
		return err
	})
	g.Go(func() error {
		var err error
		progress, err = c.api.GetProgress(ctx, jobID)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	c.store.ApplyDetail(gen, jobID, artifacts, *progress)
	return nil
}

func (c *Controller) refreshLogs(ctx context.Context) error {
	gen, jobID := c.store.BeginLogsRefresh()
	if jobID == 0 {
		return nil
	}
	lines, err := c.api.GetLogs(ctx, jobID, c.opts.LogLines)
	if err != nil {
		return err
	}
	c.store.ApplyLogs(gen, jobID, lines)
	return nil
}

// selectJob swaps the selection under subMu and closes the old
// subscription there. The handshake for the new job runs outside the lock;
// a newer selection cancels it, and its stream is only installed if the
// selection is still current. With onlyIfNone it leaves an existing
// selection alone.
func (c *Controller) selectJob(jobID int64, onlyIfNone bool) bool {
	c.subMu.Lock()
	if onlyIfNone && c.store.SelectedID() != 0 {
		c.subMu.Unlock()
		return false
	}
	if !c.store.Select(jobID) {
		c.subMu.Unlock()
		return false
	}
	c.releaseLocked()
	c.subSeq++
	seq := c.subSeq
	if jobID == 0 || !c.opts.Stream || c.dial == nil || c.ctx.Err() != nil {
		c.subMu.Unlock()
		return true
	}
	dialCtx, cancel := context.WithCancel(c.ctx)
	c.dialCancel = cancel
	c.subMu.Unlock()

	sub, err := openSubscription(dialCtx, c.dial, jobID, c.store, c.logger)

	c.subMu.Lock()
	defer c.subMu.Unlock()
	current := seq == c.subSeq && c.ctx.Err() == nil
	if err != nil {
		cancel()
		if current {
			c.dialCancel = nil
			c.logger.Warn("failed to open log stream", zap.Int64("job_id", jobID), zap.Error(err))
			c.store.SetError(StreamDisconnectedMessage)
		}
		return true
	}
	if !current {
		sub.close()
		cancel()
		c.logger.Debug("discarded log stream for stale selection", zap.Int64("job_id", jobID))
		return true
	}
	c.sub = sub
	c.logger.Debug("subscribed to log stream", zap.Int64("job_id", jobID))
	return true
}

// releaseLocked closes the open subscription and cancels a pending handshake
func (c *Controller) releaseLocked() {
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	if c.sub != nil {
		c.sub.close()
		c.sub = nil
	}
}

func (c *Controller) teardown() {
	c.Stop()
	c.polls.Wait()

	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.releaseLocked()
}

func (c *Controller) fail(msg string, err error, fields ...zap.Field) {
	c.logger.Warn(msg, append(fields, zap.Error(err))...)
	c.store.SetError(err.Error())
}
