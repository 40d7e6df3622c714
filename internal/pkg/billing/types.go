package billing

import (
	"time"

	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/entitlements"
)

// SubscriptionUpsert is the provider-agnostic mirror-row shape the
// reconciler writes. It is built either from a fetched provider subscription
// or synthesized for one-time lifetime purchases.
type SubscriptionUpsert struct {
	ProviderSubscriptionID string
	Tier                   entitlements.Tier
	Status                 string
	ProviderPriceID        string
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time
	CancelAtPeriodEnd      bool
	CanceledAt             *time.Time
	EndedAt                *time.Time
	TrialStart             *time.Time
	TrialEnd               *time.Time
	RawPayloadJSON         string
}

// ReconcileInput is the single entry shape for tier writes. Confirmed
// billing state (webhooks) and admin overrides both funnel through it.
type ReconcileInput struct {
	UserID  uint
	NewTier entitlements.Tier
	// ExpiresAt lands on User.TierExpiresAt: the mirror period end for
	// recurring tiers, nil for free and lifetime.
	ExpiresAt *time.Time
	// Subscription, when set, is upserted as the mirror row. Admin overrides
	// leave it nil.
	Subscription *SubscriptionUpsert
	// LinkSubscriptionID links the user to a provider subscription;
	// ClearLink removes the linkage (subscription deleted).
	LinkSubscriptionID string
	ClearLink          bool
	// CustomerID, when non-empty, is persisted as the user's billing
	// customer identity alongside the tier write.
	CustomerID string
	// EventAt is the provider-side event generation time. Reconciliations
	// older than the mirror row's stored value are ignored.
	EventAt time.Time

	// Transition classification hints for the side-effect pipeline.
	AdminGranted bool
	Canceled     bool
	Expired      bool
}

// ReconcileResult reports what the reconciliation did.
type ReconcileResult struct {
	PreviousTier entitlements.Tier
	NewTier      entitlements.Tier
	TierChanged  bool
	// Stale is true when the input carried an event older than the mirror
	// row's recorded state and was ignored.
	Stale bool
	// Notified is true when the side-effect pipeline emitted a notification.
	Notified bool
}

// CurrentSubscription is the read model served to the rest of the app.
type CurrentSubscription struct {
	Tier          entitlements.Tier `json:"tier"`
	TierExpiresAt *time.Time        `json:"tier_expires_at,omitempty"`
	Subscription  *SubscriptionInfo `json:"subscription,omitempty"`
}

// SubscriptionInfo is the subset of mirror state exposed to callers.
type SubscriptionInfo struct {
	Status            string     `json:"status"`
	CurrentPeriodEnd  *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
}

// TierConfigResponse is the registry read model plus whether billing is
// usable at all.
type TierConfigResponse struct {
	Configured bool                      `json:"configured"`
	Tiers      []entitlements.TierConfig `json:"tiers"`
}
