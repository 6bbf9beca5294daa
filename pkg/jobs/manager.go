package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/civicmind/civicmind/pkg/agents"
	"github.com/civicmind/civicmind/pkg/civic"
	"github.com/civicmind/civicmind/pkg/config"
	"github.com/civicmind/civicmind/pkg/observability"
	"github.com/civicmind/civicmind/pkg/pipeline"
)

// defaultConcurrency caps simultaneously running pipelines.
const defaultConcurrency = 16

// Runner executes one job's pipeline. *pipeline.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, jobID string, req *civic.Request) (*pipeline.Output, error)
}

// Manager owns job lifecycles. Jobs are kept in memory; the durable trail is
// the audit log the pipelines write.
type Manager struct {
	runners map[civic.AgentType]Runner
	cfg     config.PipelineConfig
	metrics *observability.Metrics
	log     *slog.Logger
	sem     *semaphore.Weighted

	mu   sync.RWMutex
	jobs map[string]*Job

	// base context for job goroutines; closed on shutdown
	base   context.Context
	stop   context.CancelFunc
	active sync.WaitGroup
}

// NewManager builds a manager over per-agent runners.
func NewManager(runners map[civic.AgentType]Runner, cfg config.PipelineConfig, metrics *observability.Metrics) *Manager {
	base, stop := context.WithCancel(context.Background())
	return &Manager{
		runners: runners,
		cfg:     cfg,
		metrics: metrics,
		log:     slog.With("component", "jobs"),
		sem:     semaphore.NewWeighted(defaultConcurrency),
		jobs:    make(map[string]*Job),
		base:    base,
		stop:    stop,
	}
}

// Submit validates and enqueues a request. Validation failures are returned
// synchronously; everything after acceptance is reported through job state.
func (m *Manager) Submit(ctx context.Context, req *civic.Request) (*Job, error) {
	if err := agents.ValidateRequest(req); err != nil {
		return nil, err
	}
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = time.Now().UTC()
	}

	agent, known := agents.AgentFor(req.Type)
	runner, ok := m.runners[agent]
	if !ok {
		return nil, fmt.Errorf("no runner for agent %q", agent)
	}
	if !known {
		m.log.Info("unrecognized request type routed to default agent",
			"type", req.Type, "agent", agent)
	}

	job := newJob(agent, req)
	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	m.active.Add(1)
	go m.run(job, runner)

	m.log.Info("job submitted", "job_id", job.ID, "type", req.Type, "agent", agent)
	return m.snapshot(job.ID)
}

// UpdateConfig applies new pipeline settings to subsequently started jobs.
func (m *Manager) UpdateConfig(cfg config.PipelineConfig) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
}

func (m *Manager) jobTimeout() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.JobTimeout
}

func (m *Manager) run(job *Job, runner Runner) {
	defer m.active.Done()

	ctx, cancel := context.WithTimeout(m.base, m.jobTimeout())
	defer cancel()

	m.mu.Lock()
	if job.State != StateQueued {
		// cancelled before it started
		m.mu.Unlock()
		return
	}
	job.cancel = cancel
	m.mu.Unlock()

	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.finish(job, nil, fmt.Errorf("queue wait: %w", err))
		return
	}
	defer m.sem.Release(1)

	m.mu.Lock()
	if job.State != StateQueued {
		m.mu.Unlock()
		return
	}
	job.State = StateRunning
	now := time.Now().UTC()
	job.StartedAt = &now
	m.mu.Unlock()

	out, err := runner.Run(ctx, job.ID, job.Request)
	m.finish(job, out, err)
}

// finish moves the job to its terminal state.
func (m *Manager) finish(job *Job, out *pipeline.Output, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	target := StateSucceeded
	switch {
	case job.State == StateCancelled:
		return
	case errors.Is(err, context.Canceled):
		target = StateCancelled
	case err != nil:
		target = StateFailed
	}
	if !canTransition(job.State, target) {
		return
	}
	job.State = target
	now := time.Now().UTC()
	job.FinishedAt = &now
	job.Output = out
	if err != nil {
		job.Error = err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			job.Error = fmt.Sprintf("job exceeded the %s time limit", m.cfg.JobTimeout)
		}
	}

	m.metrics.RecordJob(context.Background(), string(target), now.Sub(job.CreatedAt))
	m.log.Info("job finished", "job_id", job.ID, "state", target, "error", job.Error)
}

// Get returns a copy of the job.
func (m *Manager) Get(id string) (*Job, error) {
	return m.snapshot(id)
}

// Cancel requests cancellation. Queued jobs cancel immediately; running jobs
// see their context cancelled and stop between phases.
func (m *Manager) Cancel(id string) (*Job, error) {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	if job.State.Terminal() {
		m.mu.Unlock()
		return nil, ErrNotCancelable
	}
	if job.State == StateQueued {
		job.State = StateCancelled
		now := time.Now().UTC()
		job.FinishedAt = &now
	}
	cancel := job.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return m.snapshot(id)
}

// Shutdown stops accepting work from running jobs' contexts and waits for
// them to wind down, bounded by the given timeout.
func (m *Manager) Shutdown(timeout time.Duration) {
	m.stop()
	done := make(chan struct{})
	go func() {
		m.active.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		m.log.Warn("shutdown timed out with jobs still running")
	}
}

func (m *Manager) snapshot(id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *job
	cp.cancel = nil
	return &cp, nil
}
