package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicmind/civicmind/pkg/civic"
)

func TestNewRecordStampsIdentity(t *testing.T) {
	rec := NewRecord("job-1", civic.AgentWater)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "job-1", rec.JobID)
	assert.Equal(t, civic.AgentWater, rec.AgentType)
	assert.False(t, rec.CreatedAt.IsZero())

	other := NewRecord("job-1", civic.AgentWater)
	assert.NotEqual(t, rec.ID, other.ID)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec := NewRecord("job-1", civic.AgentFire)
	rec.Decision = civic.DecisionEscalate
	require.NoError(t, s.Append(ctx, rec))

	byID, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, civic.DecisionEscalate, byID.Decision)

	byJob, err := s.ByJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, byJob.ID)
}

func TestMemoryStoreNotFound(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.ByJob(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreRecentNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		rec := NewRecord("", civic.AgentHealth)
		require.NoError(t, s.Append(ctx, rec))
		ids = append(ids, rec.ID)
	}

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, ids[2], recent[0].ID)
	assert.Equal(t, ids[1], recent[1].ID)

	all, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestAppendCopiesTheRecord(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec := NewRecord("job-1", civic.AgentWater)
	rec.Decision = civic.DecisionRecommend
	require.NoError(t, s.Append(ctx, rec))

	// the log keeps its own copy; caller mutation after append is invisible
	rec.Decision = civic.DecisionReject
	stored, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, civic.DecisionRecommend, stored.Decision)
}
