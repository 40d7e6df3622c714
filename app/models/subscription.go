package models

import "time"

const (
	SubscriptionStatusTrialing = "trialing"
	SubscriptionStatusActive   = "active"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusCanceled = "canceled"
)

// LifetimePeriodEnd is the sentinel period end stored on the mirror row of a
// lifetime grant. A one-time payment has no provider subscription, so the
// row fakes a far-future period while User.TierExpiresAt stays null.
var LifetimePeriodEnd = time.Date(2999, time.December, 31, 0, 0, 0, 0, time.UTC)

// Subscription mirrors a provider subscription. Rows are keyed by the
// provider subscription id, created on first confirmed checkout and updated
// in place; they are never deleted, only moved to status canceled.
type Subscription struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	UserID                 uint       `gorm:"not null;index" json:"user_id"`
	ProviderSubscriptionID string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_subscriptions_provider_subid" json:"provider_subscription_id"`
	Tier                   string     `gorm:"type:varchar(20);not null;default:'free';index" json:"tier"`
	Status                 string     `gorm:"type:varchar(32);not null;default:'active';index" json:"status"`
	ProviderPriceID        string     `gorm:"type:varchar(191);default:''" json:"provider_price_id"`
	CurrentPeriodStart     *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd      bool       `gorm:"default:false" json:"cancel_at_period_end"`
	CanceledAt             *time.Time `gorm:"type:timestamp;default:null" json:"canceled_at,omitempty"`
	EndedAt                *time.Time `gorm:"type:timestamp;default:null" json:"ended_at,omitempty"`
	TrialStart             *time.Time `gorm:"type:timestamp;default:null" json:"trial_start,omitempty"`
	TrialEnd               *time.Time `gorm:"type:timestamp;default:null" json:"trial_end,omitempty"`
	// ProviderEventAt carries the provider-side generation time of the event
	// that produced this row state. Reconciliations older than it are stale
	// and must be ignored; webhook delivery order is not trustworthy.
	ProviderEventAt *time.Time `gorm:"type:timestamp;default:null" json:"provider_event_at,omitempty"`
	RawPayloadJSON  string     `gorm:"type:longtext" json:"raw_payload_json"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Entitling reports whether the subscription status grants its tier. Any
// other status means the effective tier is free.
func (s *Subscription) Entitling() bool {
	switch s.Status {
	case SubscriptionStatusActive, SubscriptionStatusTrialing:
		return true
	default:
		return false
	}
}

// Terminal reports whether the row reached its final canceled state.
func (s *Subscription) Terminal() bool {
	return s.Status == SubscriptionStatusCanceled
}
