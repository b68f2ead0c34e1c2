package billing

import "copyforge/internal/types"

// Feature names gated purely by plan tier, independent of numeric quotas.
const (
	FeatureBrandVoice      = "brand-voice"
	FeatureCollaboration   = "collaboration"
	FeatureAPIAccess       = "api-access"
	FeaturePrioritySupport = "priority-support"
	FeatureCustomTemplates = "custom-templates"
)

// FeatureGate answers boolean capability checks against a static
// feature → permitted-plans allow-list. A feature absent from the map is
// unrestricted: every plan has access. Absence means "unrestricted", not
// "forbidden".
type FeatureGate struct {
	allow map[string][]types.Plan
}

// defaultFeaturePlans is the static allow-list. Features not listed here are
// available to all tiers.
var defaultFeaturePlans = map[string][]types.Plan{
	FeatureBrandVoice:      {types.PlanPro, types.PlanAgency, types.PlanEnterprise},
	FeatureCustomTemplates: {types.PlanPro, types.PlanAgency, types.PlanEnterprise},
	FeatureCollaboration:   {types.PlanAgency, types.PlanEnterprise},
	FeaturePrioritySupport: {types.PlanAgency, types.PlanEnterprise},
	FeatureAPIAccess:       {types.PlanEnterprise},
}

// NewFeatureGate returns a gate backed by the default allow-list.
func NewFeatureGate() *FeatureGate {
	return NewFeatureGateWithMap(defaultFeaturePlans)
}

// NewFeatureGateWithMap returns a gate backed by the given allow-list.
// The map is copied so callers cannot mutate the gate after construction.
func NewFeatureGateWithMap(allow map[string][]types.Plan) *FeatureGate {
	m := make(map[string][]types.Plan, len(allow))
	for feature, plans := range allow {
		m[feature] = append([]types.Plan(nil), plans...)
	}
	return &FeatureGate{allow: m}
}

// HasAccess reports whether the plan may use the feature.
func (g *FeatureGate) HasAccess(plan types.Plan, feature string) bool {
	permitted, gated := g.allow[feature]
	if !gated {
		return true
	}
	for _, p := range permitted {
		if p == plan {
			return true
		}
	}
	return false
}

// RequiredPlans returns the plans permitted to use the feature, or nil if
// the feature is unrestricted. Used to build upgrade-hint payloads.
func (g *FeatureGate) RequiredPlans(feature string) []types.Plan {
	permitted, gated := g.allow[feature]
	if !gated {
		return nil
	}
	return append([]types.Plan(nil), permitted...)
}
