package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicmind/civicmind/pkg/civic"
	"github.com/civicmind/civicmind/pkg/config"
	"github.com/civicmind/civicmind/pkg/pipeline"
)

// runnerFunc adapts a function to the Runner interface.
type runnerFunc func(ctx context.Context, jobID string, req *civic.Request) (*pipeline.Output, error)

func (f runnerFunc) Run(ctx context.Context, jobID string, req *civic.Request) (*pipeline.Output, error) {
	return f(ctx, jobID, req)
}

func instantRunner(decision civic.Decision) Runner {
	return runnerFunc(func(_ context.Context, jobID string, req *civic.Request) (*pipeline.Output, error) {
		return &pipeline.Output{JobID: jobID, Decision: decision}, nil
	})
}

// blockingRunner waits for its context and surfaces the cancellation cause.
var blockingRunner = runnerFunc(func(ctx context.Context, _ string, _ *civic.Request) (*pipeline.Output, error) {
	<-ctx.Done()
	return nil, ctx.Err()
})

func allRunners(r Runner) map[civic.AgentType]Runner {
	out := make(map[civic.AgentType]Runner)
	for _, agent := range civic.AgentTypes() {
		out[agent] = r
	}
	return out
}

func validRequest() *civic.Request {
	return &civic.Request{
		Type:     "schedule_shift_request",
		Location: "Downtown",
		Fields:   map[string]any{"requested_shift_days": 2},
	}
}

func TestSubmitRunsToCompletion(t *testing.T) {
	m := NewManager(allRunners(instantRunner(civic.DecisionRecommend)), config.Default().Pipeline, nil)
	defer m.Shutdown(time.Second)

	job, err := m.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, civic.AgentWater, job.AgentType)
	assert.NotEmpty(t, job.ID)
	assert.False(t, job.CreatedAt.IsZero())

	require.Eventually(t, func() bool {
		got, err := m.Get(job.ID)
		return err == nil && got.State == StateSucceeded
	}, 2*time.Second, 10*time.Millisecond)

	got, err := m.Get(job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Output)
	assert.Equal(t, civic.DecisionRecommend, got.Output.Decision)
	assert.NotNil(t, got.FinishedAt)
	assert.Empty(t, got.Error)
}

func TestSubmitRejectsInvalidRequests(t *testing.T) {
	m := NewManager(allRunners(instantRunner(civic.DecisionRecommend)), config.Default().Pipeline, nil)
	defer m.Shutdown(time.Second)

	_, err := m.Submit(context.Background(), &civic.Request{Type: "schedule_shift_request", Location: "Downtown"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requested_shift_days")
}

func TestUnknownTypeRoutesToDefaultAgent(t *testing.T) {
	m := NewManager(allRunners(instantRunner(civic.DecisionEscalate)), config.Default().Pipeline, nil)
	defer m.Shutdown(time.Second)

	job, err := m.Submit(context.Background(), &civic.Request{Type: "parade_permit", Location: "Downtown"})
	require.NoError(t, err)
	assert.Equal(t, civic.AgentFinance, job.AgentType)
}

func TestCancelRunningJob(t *testing.T) {
	m := NewManager(allRunners(blockingRunner), config.Default().Pipeline, nil)
	defer m.Shutdown(time.Second)

	job, err := m.Submit(context.Background(), validRequest())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := m.Get(job.ID)
		return err == nil && got.State == StateRunning
	}, 2*time.Second, 10*time.Millisecond)

	_, err = m.Cancel(job.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := m.Get(job.ID)
		return err == nil && got.State == StateCancelled
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCancelFinishedJobFails(t *testing.T) {
	m := NewManager(allRunners(instantRunner(civic.DecisionRecommend)), config.Default().Pipeline, nil)
	defer m.Shutdown(time.Second)

	job, err := m.Submit(context.Background(), validRequest())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := m.Get(job.ID)
		return err == nil && got.State.Terminal()
	}, 2*time.Second, 10*time.Millisecond)

	_, err = m.Cancel(job.ID)
	assert.ErrorIs(t, err, ErrNotCancelable)
}

func TestJobTimeoutFails(t *testing.T) {
	cfg := config.Default().Pipeline
	cfg.JobTimeout = 50 * time.Millisecond

	m := NewManager(allRunners(blockingRunner), cfg, nil)
	defer m.Shutdown(time.Second)

	job, err := m.Submit(context.Background(), validRequest())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := m.Get(job.ID)
		return err == nil && got.State == StateFailed
	}, 2*time.Second, 10*time.Millisecond)

	got, err := m.Get(job.ID)
	require.NoError(t, err)
	assert.Contains(t, got.Error, "time limit")
}

func TestGetUnknownJob(t *testing.T) {
	m := NewManager(nil, config.Default().Pipeline, nil)
	defer m.Shutdown(time.Second)

	_, err := m.Get("no-such-job")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Cancel("no-such-job")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStateMachine(t *testing.T) {
	assert.True(t, canTransition(StateQueued, StateRunning))
	assert.True(t, canTransition(StateQueued, StateCancelled))
	assert.True(t, canTransition(StateRunning, StateSucceeded))
	assert.True(t, canTransition(StateRunning, StateFailed))
	assert.True(t, canTransition(StateRunning, StateCancelled))

	assert.False(t, canTransition(StateQueued, StateSucceeded))
	assert.False(t, canTransition(StateSucceeded, StateRunning))
	assert.False(t, canTransition(StateCancelled, StateFailed))

	assert.True(t, StateSucceeded.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.True(t, StateCancelled.Terminal())
	assert.False(t, StateQueued.Terminal())
	assert.False(t, StateRunning.Terminal())
}
