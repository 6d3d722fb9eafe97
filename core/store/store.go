package store

import (
	"sync"

	"lora-console/core/models"
)

// Health is the tri-state API availability indicator
type Health string

const (
	HealthChecking Health = "checking"
	HealthOnline   Health = "online"
	HealthOffline  Health = "offline"
)

// State is an immutable copy of the view state
type State struct {
	Health     Health             `json:"health"`
	Jobs       []models.Job       `json:"jobs"`
	SelectedID int64              `json:"selected_id"` // 0 when nothing is selected
	Logs       []string           `json:"logs"`
	Artifacts  []string           `json:"artifacts"`
	Progress   models.JobProgress `json:"progress"`
	Error      string             `json:"error,omitempty"`
	Version    uint64             `json:"version"`
}

// SelectedJob returns the selected job if it is present in the list
func (s *State) SelectedJob() *models.Job {
	if s.SelectedID == 0 {
		return nil
	}
	for i := range s.Jobs {
		if s.Jobs[i].ID == s.SelectedID {
			return &s.Jobs[i]
		}
	}
	return nil
}

// Store owns the dashboard view state. All writers (poll loop, log stream
// reader, action handlers) go through its methods, so every change is one
// step in a single linear history numbered by Version.
//
// Refreshes are bracketed by Begin*/Apply* pairs. Each Begin hands out a
// generation; an Apply carrying a generation older than the last applied
// one is discarded, so a slow response never overwrites newer state.
type Store struct {
	mu    sync.RWMutex
	state State

	jobsGen       uint64
	jobsApplied   uint64
	detailGen     uint64
	detailApplied uint64
	logsGen       uint64
	logsApplied   uint64

	watchers map[int]chan struct{}
	nextID   int
}

// New creates a store in its initial state: health "checking", no jobs,
// no selection, zero progress
func New() *Store {
	return &Store{
		state: State{
			Health:    HealthChecking,
			Jobs:      []models.Job{},
			Logs:      []string{},
			Artifacts: []string{},
		},
		watchers: make(map[int]chan struct{}),
	}
}

// Snapshot returns a copy of the current state
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.state
	out.Jobs = append(make([]models.Job, 0, len(s.state.Jobs)), s.state.Jobs...)
	out.Logs = append(make([]string, 0, len(s.state.Logs)), s.state.Logs...)
	out.Artifacts = append(make([]string, 0, len(s.state.Artifacts)), s.state.Artifacts...)
	return out
}

// SelectedID returns the current selection (0 for none)
func (s *Store) SelectedID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.SelectedID
}

// Job looks up a job from the last list refresh
func (s *Store) Job(jobID int64) (models.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, job := range s.state.Jobs {
		if job.ID == jobID {
			return job, true
		}
	}
	return models.Job{}, false
}

// Watch returns a channel that receives a signal after every change.
// Signals coalesce; readers should take a Snapshot on wake-up.
func (s *Store) Watch() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan struct{}, 1)
	s.watchers[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, id)
	}
}

// SetHealth records the result of a health check
func (s *Store) SetHealth(h Health) {
	s.update(func(st *State) bool {
		if st.Health == h {
			return false
		}
		st.Health = h
		return true
	})
}

// SetError records the current error message. The last failure wins.
func (s *Store) SetError(message string) {
	s.update(func(st *State) bool {
		st.Error = message
		return true
	})
}

// ClearError resets the error slot
func (s *Store) ClearError() {
	s.update(func(st *State) bool {
		if st.Error == "" {
			return false
		}
		st.Error = ""
		return true
	})
}

// BeginJobsRefresh opens a job list refresh
func (s *Store) BeginJobsRefresh() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobsGen++
	return s.jobsGen
}

// ApplyJobs replaces the job list unless a newer refresh already landed.
// It returns the id of the first job when the list is non-empty and nothing
// is selected, so the caller can select it.
func (s *Store) ApplyJobs(gen uint64, jobs []models.Job) (firstID int64, applied bool) {
	if jobs == nil {
		jobs = []models.Job{}
	}
	s.update(func(st *State) bool {
		if gen <= s.jobsApplied {
			return false
		}
		s.jobsApplied = gen
		st.Jobs = jobs
		applied = true
		if st.SelectedID == 0 && len(jobs) > 0 {
			firstID = jobs[0].ID
		}
		return true
	})
	return firstID, applied
}

// Select changes the selection. Logs, artifacts and progress belong to the
// previous job and are reset; in-flight detail refreshes are invalidated.
// It reports whether the selection changed.
func (s *Store) Select(jobID int64) bool {
	changed := false
	s.update(func(st *State) bool {
		if st.SelectedID == jobID {
			return false
		}
		st.SelectedID = jobID
		st.Logs = []string{}
		st.Artifacts = []string{}
		st.Progress = models.JobProgress{}
		s.detailApplied = s.detailGen
		s.logsApplied = s.logsGen
		changed = true
		return true
	})
	return changed
}

// BeginDetailRefresh opens an artifacts + progress refresh for the
// selected job. jobID is 0 when nothing is selected.
func (s *Store) BeginDetailRefresh() (gen uint64, jobID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detailGen++
	return s.detailGen, s.state.SelectedID
}

// ApplyDetail stores artifacts and progress for jobID if it is still the
// selection and no newer detail refresh has been applied
func (s *Store) ApplyDetail(gen uint64, jobID int64, artifacts []string, progress models.JobProgress) bool {
	if artifacts == nil {
		artifacts = []string{}
	}
	applied := false
	s.update(func(st *State) bool {
		if jobID == 0 || st.SelectedID != jobID || gen <= s.detailApplied {
			return false
		}
		s.detailApplied = gen
		st.Artifacts = artifacts
		st.Progress = progress
		applied = true
		return true
	})
	return applied
}

// BeginLogsRefresh opens a polled log refresh for the selected job
func (s *Store) BeginLogsRefresh() (gen uint64, jobID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logsGen++
	return s.logsGen, s.state.SelectedID
}

// ApplyLogs replaces the log snapshot from a polled refresh
func (s *Store) ApplyLogs(gen uint64, jobID int64, lines []string) bool {
	if lines == nil {
		lines = []string{}
	}
	applied := false
	s.update(func(st *State) bool {
		if jobID == 0 || st.SelectedID != jobID || gen <= s.logsApplied {
			return false
		}
		s.logsApplied = gen
		st.Logs = lines
		applied = true
		return true
	})
	return applied
}

// ApplyLogMessage merges one pushed frame for jobID. Lines replace the
// snapshot; progress, when present, replaces the previous one wholesale.
func (s *Store) ApplyLogMessage(jobID int64, msg *models.LogMessage) bool {
	applied := false
	s.update(func(st *State) bool {
		if st.SelectedID != jobID || jobID == 0 {
			return false
		}
		lines := msg.Lines
		if lines == nil {
			lines = []string{}
		}
		st.Logs = lines
		if msg.Progress != nil {
			st.Progress = *msg.Progress
		}
		applied = true
		return true
	})
	return applied
}

// update applies fn under the write lock; fn returns whether it changed
// anything. Watchers are signalled after the lock is released.
func (s *Store) update(fn func(st *State) bool) {
	s.mu.Lock()
	if !fn(&s.state) {
		s.mu.Unlock()
		return
	}
	s.state.Version++
	watchers := make([]chan struct{}, 0, len(s.watchers))
	for _, ch := range s.watchers {
		watchers = append(watchers, ch)
	}
	s.mu.Unlock()

	for _, ch := range watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
