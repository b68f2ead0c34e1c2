package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"copyforge/internal/types"
)

func TestFeatureGate_HasAccess(t *testing.T) {
	gate := NewFeatureGate()

	tests := []struct {
		name    string
		plan    types.Plan
		feature string
		want    bool
	}{
		{"free denied brand voice", types.PlanFree, FeatureBrandVoice, false},
		{"pro allowed brand voice", types.PlanPro, FeatureBrandVoice, true},
		{"pro denied collaboration", types.PlanPro, FeatureCollaboration, false},
		{"agency allowed collaboration", types.PlanAgency, FeatureCollaboration, true},
		{"agency denied api access", types.PlanAgency, FeatureAPIAccess, false},
		{"enterprise allowed api access", types.PlanEnterprise, FeatureAPIAccess, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gate.HasAccess(tt.plan, tt.feature))
		})
	}
}

func TestFeatureGate_UnknownFeature_Unrestricted(t *testing.T) {
	gate := NewFeatureGate()

	// A feature absent from the allow-list is open to every plan, FREE
	// included. Absence means "unrestricted", not "forbidden".
	assert.True(t, gate.HasAccess(types.PlanFree, "word-count"))
	assert.Nil(t, gate.RequiredPlans("word-count"))
}

func TestFeatureGate_RequiredPlans(t *testing.T) {
	gate := NewFeatureGate()

	plans := gate.RequiredPlans(FeatureCollaboration)
	assert.Equal(t, []types.Plan{types.PlanAgency, types.PlanEnterprise}, plans)
}

func TestFeatureGate_RequiredPlans_CopyIsolated(t *testing.T) {
	gate := NewFeatureGate()

	plans := gate.RequiredPlans(FeatureAPIAccess)
	plans[0] = types.PlanFree

	assert.Equal(t, []types.Plan{types.PlanEnterprise}, gate.RequiredPlans(FeatureAPIAccess))
}
