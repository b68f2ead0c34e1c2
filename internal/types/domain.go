// Package types defines the shared domain model for the CopyForge
// entitlement engine: plans, subscriptions, usage ledger entries, and the
// decision payloads exchanged between the billing components and the API
// layer. Keeping these in one leaf package avoids import cycles between
// repositories, domain services, and handlers.
package types

import (
	"encoding/json"
	"strconv"
	"time"
)

// Plan identifies a subscription tier.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanAgency     Plan = "agency"
	PlanEnterprise Plan = "enterprise"
)

// AllPlans lists every defined tier, ordered from cheapest to most expensive.
// Used by the plan catalog endpoint and by upgrade-hint payloads.
var AllPlans = []Plan{PlanFree, PlanPro, PlanAgency, PlanEnterprise}

// Valid reports whether p is one of the defined tiers.
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanAgency, PlanEnterprise:
		return true
	}
	return false
}

// SubscriptionStatus is the local subscription state vocabulary. Provider
// statuses are mapped into this enum at the webhook boundary; the rest of
// the engine never sees raw provider strings.
type SubscriptionStatus string

const (
	SubStatusActive     SubscriptionStatus = "active"
	SubStatusPastDue    SubscriptionStatus = "past_due"
	SubStatusCanceled   SubscriptionStatus = "canceled"
	SubStatusIncomplete SubscriptionStatus = "incomplete"
	SubStatusTrialing   SubscriptionStatus = "trialing"
)

// ResourceKind identifies a metered resource in the usage ledger.
type ResourceKind string

const (
	ResourceGeneration     ResourceKind = "generation"
	ResourceDocumentCreate ResourceKind = "document_create"
)

// Valid reports whether k is a known metered resource.
func (k ResourceKind) Valid() bool {
	return k == ResourceGeneration || k == ResourceDocumentCreate
}

// Format is a document export format.
type Format string

const (
	FormatTXT      Format = "txt"
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
	FormatDOCX     Format = "docx"
	FormatPDF      Format = "pdf"
)

// Unlimited is the sentinel limit value meaning "no ceiling". Enforcement
// code must check for it before any comparison or division.
const Unlimited = -1

// LimitValue is an integer limit that renders the Unlimited sentinel as the
// JSON string "unlimited" instead of -1, matching the public API contract.
type LimitValue int64

// IsUnlimited reports whether the value is the Unlimited sentinel.
func (v LimitValue) IsUnlimited() bool { return v == Unlimited }

// MarshalJSON renders Unlimited as "unlimited" and everything else as a
// plain JSON number.
func (v LimitValue) MarshalJSON() ([]byte, error) {
	if v.IsUnlimited() {
		return []byte(`"unlimited"`), nil
	}
	return []byte(strconv.FormatInt(int64(v), 10)), nil
}

// UnmarshalJSON accepts either the "unlimited" string or a JSON number.
func (v *LimitValue) UnmarshalJSON(data []byte) error {
	if string(data) == `"unlimited"` {
		*v = Unlimited
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*v = LimitValue(n)
	return nil
}

// PlanLimits is the static per-plan policy row: quota ceilings, allowed
// export formats, and count-based feature ceilings. A value of Unlimited (-1)
// means no ceiling for that dimension.
type PlanLimits struct {
	AIGenerationsPerMonth int64    `json:"ai_generations_per_month"`
	DocumentsPerMonth     int64    `json:"documents_per_month"`
	StorageBytesLimit     int64    `json:"storage_bytes_limit"`
	AllowedExportFormats  []Format `json:"allowed_export_formats"`
	CollaboratorLimit     int64    `json:"collaborator_limit"`
	BrandVoiceLimit       int64    `json:"brand_voice_limit"`
}

// AllowsFormat reports whether the plan may export in the given format.
func (l PlanLimits) AllowsFormat(f Format) bool {
	for _, allowed := range l.AllowedExportFormats {
		if allowed == f {
			return true
		}
	}
	return false
}

// LimitFor returns the monthly ceiling for the given metered resource.
// Unknown kinds return 0 (nothing allowed) so that a typo fails safe.
func (l PlanLimits) LimitFor(kind ResourceKind) int64 {
	switch kind {
	case ResourceGeneration:
		return l.AIGenerationsPerMonth
	case ResourceDocumentCreate:
		return l.DocumentsPerMonth
	default:
		return 0
	}
}

// Subscription is the locally persisted subscription record. It is the
// single source of truth for plan/status and is mutated only by the webhook
// event processor. The upsert key is StripeCustomerID, not the row id: the
// payment provider guarantees at-least-once delivery, and keying on the
// stable external id makes redelivery a no-op.
type Subscription struct {
	ID                   string             `json:"id"`
	UserID               string             `json:"user_id"`
	Plan                 Plan               `json:"plan"`
	Status               SubscriptionStatus `json:"status"`
	StripeCustomerID     string             `json:"stripe_customer_id"`
	StripeSubscriptionID string             `json:"stripe_subscription_id"`
	CurrentPeriodEnd     time.Time          `json:"current_period_end"`
	CanceledAt           *time.Time         `json:"canceled_at,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// SubscriptionPatch is an explicit partial update for a subscription row.
// Each optional field carries its own presence flag via a pointer so that
// "field not in this event" and "field set to zero value" are distinct.
// This replaces ad hoc conditional-write patterns.
type SubscriptionPatch struct {
	Status           *SubscriptionStatus
	Plan             *Plan
	CurrentPeriodEnd *time.Time
	CanceledAt       *time.Time
	// EventTimestamp is the provider event's created time. Recorded for
	// forensics only; updates are applied in arrival order (last write wins).
	EventTimestamp time.Time
}

// IsEmpty reports whether the patch would change nothing.
func (p SubscriptionPatch) IsEmpty() bool {
	return p.Status == nil && p.Plan == nil && p.CurrentPeriodEnd == nil && p.CanceledAt == nil
}

// CheckoutCompletion carries the fields extracted from a completed checkout
// event. Applying it upserts the subscription and syncs the user's plan in
// one transaction.
type CheckoutCompletion struct {
	UserID               string
	Plan                 Plan
	StripeCustomerID     string
	StripeSubscriptionID string
	CurrentPeriodEnd     time.Time
	EventTimestamp       time.Time
}

// User is the minimal user projection this engine cares about. User.Plan is
// a denormalized cache of the user's most recent active/trialing/past-due
// subscription (FREE if none) and is updated atomically with every
// subscription transition that changes plan.
type User struct {
	ID   string `json:"id"`
	Plan Plan   `json:"plan"`
}

// UsageEntry is one append-only consumption record. Entries are written
// exactly once, by the caller of a metered action, strictly after the action
// succeeds. They are never mutated or deleted.
type UsageEntry struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	Kind      ResourceKind `json:"resource_kind"`
	SizeBytes int64        `json:"size_bytes,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// QuotaCheck is the result of evaluating current-period usage against the
// plan ceiling for one resource.
type QuotaCheck struct {
	Allowed    bool       `json:"allowed"`
	Current    int64      `json:"current"`
	Limit      LimitValue `json:"limit"`
	Remaining  LimitValue `json:"remaining"`
	Percentage int        `json:"percentage"`
}

// DecisionReason explains why an entitlement decision denied a request.
type DecisionReason string

const (
	ReasonQuotaExceeded      DecisionReason = "quota_exceeded"
	ReasonFeatureNotEntitled DecisionReason = "feature_not_entitled"
)

// Decision is the combined entitlement verdict for one request: quota state
// plus feature-gate outcome, with enough detail for the caller to build a
// precise rejection message.
type Decision struct {
	Allowed       bool           `json:"allowed"`
	Reason        DecisionReason `json:"reason,omitempty"`
	Plan          Plan           `json:"plan"`
	Quota         QuotaCheck     `json:"quota"`
	RequiredPlans []Plan         `json:"required_plans,omitempty"`
}
