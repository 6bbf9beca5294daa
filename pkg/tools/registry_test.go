package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicmind/civicmind/pkg/civic"
	"github.com/civicmind/civicmind/pkg/contextstore"
)

func TestRegistryPerDepartment(t *testing.T) {
	store := contextstore.Seeded()

	water := NewRegistryFor(civic.AgentWater, store)
	_, ok := water.Get("check_pipeline_health")
	assert.True(t, ok)
	_, ok = water.Get("check_hydrants")
	assert.False(t, ok, "water must not see fire tooling")

	fire := NewRegistryFor(civic.AgentFire, store)
	for _, name := range []string{"check_hydrants", "check_equipment", "check_manpower"} {
		_, ok := fire.Get(name)
		assert.True(t, ok, name)
	}

	// shared primitives exist everywhere
	for _, agent := range civic.AgentTypes() {
		r := NewRegistryFor(agent, store)
		for _, name := range []string{"check_manpower", "check_schedule", "check_budget", "check_active_projects", "check_incidents"} {
			_, ok := r.Get(name)
			assert.True(t, ok, "%s missing %s", agent, name)
		}
	}
}

func TestManpowerTool(t *testing.T) {
	store := contextstore.Seeded()
	r := NewRegistryFor(civic.AgentWater, store)
	tool, ok := r.Get("check_manpower")
	require.True(t, ok)

	out, err := tool.Execute(context.Background(), map[string]any{"location": "Downtown"})
	require.NoError(t, err)
	assert.Equal(t, 11, out["available"])
	assert.Equal(t, true, out["sufficient"])

	out, err = tool.Execute(context.Background(), map[string]any{"location": "Industrial Zone"})
	require.NoError(t, err)
	assert.Equal(t, false, out["sufficient"])

	_, err = tool.Execute(context.Background(), map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "location")
}

func TestScheduleToolFindsOpenShift(t *testing.T) {
	store := contextstore.Seeded()
	r := NewRegistryFor(civic.AgentWater, store)
	tool, ok := r.Get("check_schedule")
	require.True(t, ok)

	out, err := tool.Execute(context.Background(), map[string]any{"location": "Downtown"})
	require.NoError(t, err)
	assert.Equal(t, "evening", out["open_shift"])
	assert.Equal(t, 2, out["slack"])
}

func TestAssetHealthToolUnknownKind(t *testing.T) {
	store := contextstore.Seeded()
	r := NewRegistryFor(civic.AgentSanitation, store)
	tool, ok := r.Get("check_drainage")
	require.True(t, ok)

	// Downtown has no drains on record
	out, err := tool.Execute(context.Background(), map[string]any{"location": "Downtown"})
	require.NoError(t, err)
	assert.Equal(t, "unknown", out["condition"])

	out, err = tool.Execute(context.Background(), map[string]any{"location": "Riverside"})
	require.NoError(t, err)
	assert.Equal(t, "fair", out["condition"])
}

func TestWithTimeout(t *testing.T) {
	slow := Func{
		Meta: Info{Name: "slow"},
		Run: func(ctx context.Context, _ map[string]any) (map[string]any, error) {
			select {
			case <-time.After(time.Second):
				return map[string]any{"done": true}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}

	_, err := WithTimeout(slow, 20*time.Millisecond).Execute(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	fast := Func{
		Meta: Info{Name: "fast"},
		Run: func(context.Context, map[string]any) (map[string]any, error) {
			return map[string]any{"done": true}, nil
		},
	}
	out, err := WithTimeout(fast, time.Second).Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, true, out["done"])
}

func TestDescribeListsToolsSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(Func{Meta: Info{Name: "zeta", Description: "last"}})
	r.Register(Func{Meta: Info{Name: "alpha", Description: "first"}})

	names := r.Names()
	require.Equal(t, []string{"alpha", "zeta"}, names)
	desc := r.Describe()
	assert.Less(t, strings.Index(desc, "alpha"), strings.Index(desc, "zeta"))
}
