package civic

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoneyString(t *testing.T) {
	assert.Equal(t, "₹2Cr", Crore(2).String())
	assert.Equal(t, "₹50.0L", Lakh(50).String())
	assert.Equal(t, "₹2.5L", Money(250_000).String())
	assert.Equal(t, "₹900", Money(900).String())
}

func TestRequestUnmarshalFoldsUnknownKeys(t *testing.T) {
	data := []byte(`{
		"type": "schedule_shift_request",
		"location": "Downtown",
		"estimated_cost": 500000,
		"requested_shift_days": 2,
		"priority": "high"
	}`)

	var req Request
	require.NoError(t, json.Unmarshal(data, &req))

	assert.Equal(t, "schedule_shift_request", req.Type)
	assert.Equal(t, "Downtown", req.Location)
	assert.Equal(t, Lakh(5), req.EstimatedCost)

	days, ok := req.IntField("requested_shift_days")
	require.True(t, ok)
	assert.Equal(t, 2, days)
	assert.Equal(t, "high", req.StringField("priority"))

	_, ok = req.Field("estimated_cost")
	assert.False(t, ok, "known keys must not leak into Fields")
}

func TestRiskRankOrdering(t *testing.T) {
	assert.Less(t, RiskLow.Rank(), RiskMedium.Rank())
	assert.Less(t, RiskMedium.Rank(), RiskHigh.Rank())
	assert.Less(t, RiskHigh.Rank(), RiskCritical.Rank())
	// unknown grades sort as medium
	assert.Equal(t, RiskMedium.Rank(), RiskLevel("weird").Rank())
}

func TestIntersects(t *testing.T) {
	assert.True(t, Intersects([]string{"crane-1", "crew-bus"}, []string{"crane-1"}))
	assert.False(t, Intersects([]string{"crane-1"}, []string{"crane-2"}))
	assert.False(t, Intersects(nil, []string{"crane-1"}))
	assert.False(t, Intersects([]string{"crane-1"}, nil))
}

func TestBoolDefaults(t *testing.T) {
	assert.True(t, Bool(nil, true))
	assert.False(t, Bool(nil, false))
	assert.False(t, Bool(BoolPtr(false), true))
}
