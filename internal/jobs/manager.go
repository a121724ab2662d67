package jobs

import (
	"errors"
	"fmt"
	"sync"

	"longform-transcriber/internal/domain"
)

// ErrJobAlreadyRunning is returned when starting a second active job.
var ErrJobAlreadyRunning = errors.New("job already running")

// ErrNoRunningJob is returned when cancel is requested for idle state.
var ErrNoRunningJob = errors.New("no running job")

// Manager tracks the single allowed active job and its transitions.
type Manager struct {
	mu      sync.RWMutex
	current domain.Job
}

// NewManager creates a manager in idle state.
func NewManager() *Manager {
	return &Manager{
		current: domain.Job{
			Status: domain.JobStatusIdle,
		},
	}
}

// Start creates a new job and moves it to chunking state.
func (m *Manager) Start(jobID, inputPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if isRunning(m.current.Status) {
		return ErrJobAlreadyRunning
	}

	m.current = domain.Job{
		ID:        jobID,
		Status:    domain.JobStatusChunking,
		InputPath: inputPath,
		Progress:  domain.StageProgress{Stage: domain.StageChunking},
	}
	return nil
}

// Transition validates and applies state transitions for current job.
func (m *Manager) Transition(status domain.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.ID == "" && status != domain.JobStatusIdle {
		return fmt.Errorf("cannot transition without an active job")
	}
	if status == m.current.Status {
		return nil
	}
	if !isValidTransition(m.current.Status, status) {
		return fmt.Errorf("invalid transition: %s -> %s", m.current.Status, status)
	}

	m.current.Status = status
	if status != domain.JobStatusReviewing {
		m.current.Pending = nil
	}
	return nil
}

// Review parks the job in reviewing state until a partial result is decided.
func (m *Manager) Review(outcome domain.PartialOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !isValidTransition(m.current.Status, domain.JobStatusReviewing) {
		return fmt.Errorf("invalid transition: %s -> %s", m.current.Status, domain.JobStatusReviewing)
	}
	m.current.Status = domain.JobStatusReviewing
	m.current.Pending = &outcome
	return nil
}

// UpdateProgress stores the latest progress snapshot. Snapshots from a run
// that is no longer active are ignored.
func (m *Manager) UpdateProgress(progress domain.StageProgress) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !isRunning(m.current.Status) {
		return
	}
	if progress.OverallProgress < m.current.Progress.OverallProgress {
		progress.OverallProgress = m.current.Progress.OverallProgress
	}
	m.current.Progress = progress
}

// Current returns a snapshot of the current job.
func (m *Manager) Current() domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reset clears job metadata and returns manager to idle.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = domain.Job{Status: domain.JobStatusIdle}
}

// IsRunning reports whether the current state is an active stage.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return isRunning(m.current.Status)
}

// Cancel moves an active job to cancelled state.
func (m *Manager) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !isRunning(m.current.Status) {
		return ErrNoRunningJob
	}
	m.current.Status = domain.JobStatusCancelled
	m.current.Pending = nil
	return nil
}

// isRunning checks if a status represents active pipeline execution.
func isRunning(status domain.JobStatus) bool {
	switch status {
	case domain.JobStatusChunking,
		domain.JobStatusTranscribing,
		domain.JobStatusMerging,
		domain.JobStatusRefining,
		domain.JobStatusSummarizing,
		domain.JobStatusReviewing:
		return true
	default:
		return false
	}
}

// isValidTransition enforces the allowed job state machine edges.
func isValidTransition(from, to domain.JobStatus) bool {
	if isRunning(from) && (to == domain.JobStatusFailed || to == domain.JobStatusCancelled) {
		return true
	}

	switch from {
	case domain.JobStatusIdle:
		return to == domain.JobStatusChunking
	case domain.JobStatusChunking:
		return to == domain.JobStatusTranscribing
	case domain.JobStatusTranscribing:
		return to == domain.JobStatusMerging || to == domain.JobStatusReviewing
	case domain.JobStatusMerging:
		return to == domain.JobStatusRefining
	case domain.JobStatusRefining:
		return to == domain.JobStatusSummarizing || to == domain.JobStatusReviewing
	case domain.JobStatusSummarizing:
		return to == domain.JobStatusDone
	case domain.JobStatusReviewing:
		switch to {
		case domain.JobStatusTranscribing, domain.JobStatusMerging,
			domain.JobStatusRefining, domain.JobStatusSummarizing:
			return true
		}
		return false
	case domain.JobStatusDone, domain.JobStatusFailed, domain.JobStatusCancelled:
		return to == domain.JobStatusChunking || to == domain.JobStatusIdle
	default:
		return false
	}
}
