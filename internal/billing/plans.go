// Package billing provides plan policy, usage metering, feature gating, and
// the per-request entitlement facade.
package billing

import "copyforge/internal/types"

// PlanRegistry is the authoritative source of per-plan limits.
// For unknown tiers it returns the most restrictive (Free) limits to fail
// safely.
type PlanRegistry interface {
	GetLimits(plan types.Plan) types.PlanLimits
}

// staticPlanRegistry is a compile-time plan registry backed by an in-memory
// map. It is the standard production implementation; there is no database or
// remote source for plan policy.
type staticPlanRegistry struct {
	limits map[types.Plan]types.PlanLimits
}

// planDefaults defines the hardcoded plan limits.
//
//	| Plan       | Generations/mo | Documents/mo | Storage    | Collaborators | Brand Voices |
//	|------------|----------------|--------------|------------|---------------|--------------|
//	| Free       | 10             | 20           | 50 MB      | 1             | 1            |
//	| Pro        | 500            | 500          | 2 GB       | 3             | 5            |
//	| Agency     | 2000           | 2000         | 20 GB      | 10            | 25           |
//	| Enterprise | unlimited      | unlimited    | unlimited  | unlimited     | unlimited    |
//
// Unlimited dimensions use the -1 sentinel; enforcement must short-circuit
// before any comparison or division. This table is mirrored by a client-side
// display copy; the two must be kept in sync by hand (documented duplication
// risk) and the /v1/billing/plans endpoint serves this server-side table as
// the reference copy.
var planDefaults = map[types.Plan]types.PlanLimits{
	types.PlanFree: {
		AIGenerationsPerMonth: 10,
		DocumentsPerMonth:     20,
		StorageBytesLimit:     50 << 20,
		AllowedExportFormats:  []types.Format{types.FormatTXT, types.FormatMarkdown},
		CollaboratorLimit:     1,
		BrandVoiceLimit:       1,
	},
	types.PlanPro: {
		AIGenerationsPerMonth: 500,
		DocumentsPerMonth:     500,
		StorageBytesLimit:     2 << 30,
		AllowedExportFormats: []types.Format{
			types.FormatTXT, types.FormatMarkdown, types.FormatHTML, types.FormatDOCX,
		},
		CollaboratorLimit: 3,
		BrandVoiceLimit:   5,
	},
	types.PlanAgency: {
		AIGenerationsPerMonth: 2000,
		DocumentsPerMonth:     2000,
		StorageBytesLimit:     20 << 30,
		AllowedExportFormats: []types.Format{
			types.FormatTXT, types.FormatMarkdown, types.FormatHTML,
			types.FormatDOCX, types.FormatPDF,
		},
		CollaboratorLimit: 10,
		BrandVoiceLimit:   25,
	},
	types.PlanEnterprise: {
		AIGenerationsPerMonth: types.Unlimited,
		DocumentsPerMonth:     types.Unlimited,
		StorageBytesLimit:     types.Unlimited,
		AllowedExportFormats: []types.Format{
			types.FormatTXT, types.FormatMarkdown, types.FormatHTML,
			types.FormatDOCX, types.FormatPDF,
		},
		CollaboratorLimit: types.Unlimited,
		BrandVoiceLimit:   types.Unlimited,
	},
}

// freeLimits is cached to avoid map lookups on the fallback path.
var freeLimits = planDefaults[types.PlanFree]

// NewStaticPlanRegistry returns a PlanRegistry backed by the hardcoded plan
// table.
func NewStaticPlanRegistry() PlanRegistry {
	// Copy the defaults so callers cannot mutate the package-level table.
	m := make(map[types.Plan]types.PlanLimits, len(planDefaults))
	for k, v := range planDefaults {
		m[k] = v
	}
	return &staticPlanRegistry{limits: m}
}

// GetLimits returns the limits for the given plan, falling back to Free
// limits for unknown tiers.
func (r *staticPlanRegistry) GetLimits(plan types.Plan) types.PlanLimits {
	if limits, ok := r.limits[plan]; ok {
		return limits
	}
	return freeLimits
}
