package model_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/keisoku/internal/model"
)

func TestGranularitySizeMs(t *testing.T) {
	assert.Equal(t, int64(3_600_000), model.GranularityHour.SizeMs())
	assert.Equal(t, int64(86_400_000), model.GranularityDay.SizeMs())
	assert.Equal(t, int64(604_800_000), model.GranularityWeek.SizeMs())
	assert.Equal(t, int64(0), model.Granularity("month").SizeMs())
	assert.Equal(t, int64(0), model.Granularity("").SizeMs())
}

func TestRoleAtLeast(t *testing.T) {
	assert.True(t, model.RoleAtLeast(model.RoleAdmin, model.RoleReader))
	assert.True(t, model.RoleAtLeast(model.RoleAgent, model.RoleAgent))
	assert.False(t, model.RoleAtLeast(model.RoleReader, model.RoleAgent))
	assert.False(t, model.RoleAtLeast(model.AgentRole("superuser"), model.RoleReader))
}

func TestValidationErrorAs(t *testing.T) {
	err := error(model.ValidationError("agent must be a non-empty string"))

	var verr model.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "agent must be a non-empty string", verr.Error())
}

func TestTelemetryRecordJSONHidesOrg(t *testing.T) {
	rec := model.TelemetryRecord{Agent: "planner", Model: "gpt-4o"}
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	_, hasOrg := out["org_id"]
	assert.False(t, hasOrg, "org id must never leak over the wire")
	assert.Equal(t, "planner", out["agent"])
}

func TestAnomalyJSONOmitsUnsetDimensions(t *testing.T) {
	a := model.Anomaly{
		Kind:     model.AnomalySpike,
		Severity: model.SeverityHigh,
		Score:    4.2,
	}
	data, err := json.Marshal(a)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	for _, key := range []string{"project", "category", "categoryType"} {
		_, present := out[key]
		assert.False(t, present, "%s should be omitted when unset", key)
	}
}
