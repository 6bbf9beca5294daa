// Package jobs runs accepted requests asynchronously. A job moves through a
// strict state machine (queued, running, then exactly one terminal state) and
// keeps its pipeline output for retrieval.
package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/civicmind/civicmind/pkg/civic"
	"github.com/civicmind/civicmind/pkg/pipeline"
)

var (
	// ErrNotFound means no job exists under the given ID.
	ErrNotFound = errors.New("jobs: job not found")

	// ErrNotCancelable means the job already reached a terminal state.
	ErrNotCancelable = errors.New("jobs: job is not cancelable")
)

// State is a job lifecycle state.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	}
	return false
}

// validTransitions is the job state machine. Anything not listed is refused.
var validTransitions = map[State][]State{
	StateQueued:  {StateRunning, StateCancelled},
	StateRunning: {StateSucceeded, StateFailed, StateCancelled},
}

func canTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Job is one submitted request and its progress.
type Job struct {
	ID        string          `json:"job_id"`
	State     State           `json:"state"`
	AgentType civic.AgentType `json:"agent_type"`
	Request   *civic.Request  `json:"request"`

	Output *pipeline.Output `json:"output,omitempty"`
	Error  string           `json:"error,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	cancel func()
}

func newJob(agent civic.AgentType, req *civic.Request) *Job {
	return &Job{
		ID:        uuid.NewString(),
		State:     StateQueued,
		AgentType: agent,
		Request:   req,
		CreatedAt: time.Now().UTC(),
	}
}
