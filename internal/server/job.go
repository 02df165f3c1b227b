// Package server exposes penalized regression fits as asynchronous jobs
// over HTTP, with progress streamed as server-sent events.
package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cwbudde/penreg/internal/penalty"
	"github.com/cwbudde/penreg/internal/store"
	"github.com/google/uuid"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Done reports whether the state is final.
func (s JobState) Done() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// JobConfig describes a fit request. The data is given either as file
// paths readable by the server or inline as rows of X and values of y.
type JobConfig struct {
	XPath string      `json:"xPath,omitempty"`
	YPath string      `json:"yPath,omitempty"`
	X     [][]float64 `json:"x,omitempty"`
	Y     []float64   `json:"y,omitempty"`

	Optimizer     string    `json:"optimizer"`
	Penalty       string    `json:"penalty,omitempty"`
	Unpenalized   []int     `json:"unpenalized,omitempty"`
	Lambdas       []float64 `json:"lambdas"`
	Thetas        []float64 `json:"thetas,omitempty"`
	HessianStep   float64   `json:"hessianStep,omitempty"`
	MaxIterations int       `json:"maxIterations,omitempty"`
}

// applyDefaults fills in the values the CLI uses when a flag is omitted.
func (c *JobConfig) applyDefaults() {
	if c.Penalty == "" {
		c.Penalty = string(penalty.Lasso)
	}
	if c.Unpenalized == nil {
		c.Unpenalized = []int{0}
	}
	if c.HessianStep == 0 {
		c.HessianStep = 1e-7
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = 1000
	}
}

// validate checks the request before a job is created. Shape problems are
// only detected once the data is loaded by the worker.
func (c *JobConfig) validate() error {
	inline := len(c.X) > 0 || len(c.Y) > 0
	paths := c.XPath != "" || c.YPath != ""
	switch {
	case inline && paths:
		return fmt.Errorf("give either x/y or xPath/yPath, not both")
	case !inline && !paths:
		return fmt.Errorf("x and y (or xPath and yPath) are required")
	case paths && (c.XPath == "" || c.YPath == ""):
		return fmt.Errorf("both xPath and yPath are required")
	}
	if c.Optimizer == "" {
		return fmt.Errorf("optimizer is required")
	}
	if len(c.Lambdas) == 0 {
		return fmt.Errorf("at least one lambda is required")
	}
	if _, err := penalty.ParseKind(c.Penalty); err != nil {
		return err
	}
	return nil
}

// Job represents a fit job. Inline data is kept out of the JSON view.
type Job struct {
	ID          string             `json:"id"`
	State       JobState           `json:"state"`
	Config      JobConfig          `json:"config"`
	Samples     int                `json:"samples,omitempty"`
	Params      int                `json:"params,omitempty"`
	InitialLoss float64            `json:"initialLoss"`
	Point       penalty.Point      `json:"point"`
	Objective   float64            `json:"objective"`
	Iterations  int                `json:"iterations"`
	Fits        []store.FitSummary `json:"fits,omitempty"`
	StartTime   time.Time          `json:"startTime"`
	EndTime     *time.Time         `json:"endTime,omitempty"`
	Error       string             `json:"error,omitempty"`

	x [][]float64
	y []float64
}

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	cancels     map[string]context.CancelFunc
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		cancels:     make(map[string]context.CancelFunc),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob registers a pending job for config and returns a snapshot.
func (jm *JobManager) CreateJob(config JobConfig) *Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Config:    config,
		StartTime: time.Now(),
		x:         config.X,
		y:         config.Y,
	}
	job.Config.X = nil
	job.Config.Y = nil

	jm.jobs[job.ID] = job
	return job.snapshot()
}

// snapshot copies the job so callers can read it without holding the lock.
// Slices are replaced, never modified in place, so sharing them is safe.
func (j *Job) snapshot() *Job {
	cp := *j
	return &cp
}

// GetJob retrieves a snapshot of a job by ID
func (jm *JobManager) GetJob(id string) (*Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	return job.snapshot(), true
}

// ListJobs returns snapshots of all jobs, oldest first
func (jm *JobManager) ListJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]*Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		jobs = append(jobs, job.snapshot())
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartTime.Before(jobs[j].StartTime)
	})
	return jobs
}

// UpdateJob atomically updates a job using the provided function
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	updateFn(job)
	return nil
}

// GetRunningJobs returns all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	runningJobs := make([]*Job, 0)
	for _, job := range jm.jobs {
		if job.State == StateRunning {
			runningJobs = append(runningJobs, job.snapshot())
		}
	}
	return runningJobs
}

// setCancel registers the function that stops a running job.
func (jm *JobManager) setCancel(id string, cancel context.CancelFunc) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	jm.cancels[id] = cancel
}

// clearCancel drops the cancel function of a finished job.
func (jm *JobManager) clearCancel(id string) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	delete(jm.cancels, id)
}

// CancelJob stops a pending or running job. It returns false if the job
// does not exist or has already finished.
func (jm *JobManager) CancelJob(id string) bool {
	jm.mu.RLock()
	job, exists := jm.jobs[id]
	cancel := jm.cancels[id]
	done := exists && job.State.Done()
	jm.mu.RUnlock()

	if !exists || done || cancel == nil {
		return false
	}
	cancel()
	return true
}

// CancelAll stops every job that is still in flight.
func (jm *JobManager) CancelAll() {
	jm.mu.RLock()
	cancels := make([]context.CancelFunc, 0, len(jm.cancels))
	for _, cancel := range jm.cancels {
		cancels = append(cancels, cancel)
	}
	jm.mu.RUnlock()

	for _, cancel := range cancels {
		cancel()
	}
}
