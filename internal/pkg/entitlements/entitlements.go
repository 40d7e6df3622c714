package entitlements

import (
	"strings"
	"time"

	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/env"
)

// Tier is a named entitlement level gating profile features.
type Tier string

const (
	TierFree     Tier = "free"
	TierPro      Tier = "pro"
	TierCreator  Tier = "creator"
	TierLifetime Tier = "lifetime"
)

// ParseTier normalizes a stored or incoming tier value. This is the single
// place legacy values are mapped: old accounts carry "standard", which is
// equivalent to free.
func ParseTier(s string) Tier {
	tier, _ := ParseTierStrict(s)
	return tier
}

// ParseTierStrict parses a tier name and reports whether it was recognized,
// for callers that must reject bad input instead of folding it to free.
func ParseTierStrict(s string) (Tier, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(TierFree), "standard":
		return TierFree, true
	case string(TierPro):
		return TierPro, true
	case string(TierCreator):
		return TierCreator, true
	case string(TierLifetime):
		return TierLifetime, true
	default:
		return TierFree, false
	}
}

// Rank places tiers in a total order used to classify transitions as
// upgrades or downgrades: free < pro < creator < lifetime.
func (t Tier) Rank() int {
	switch t {
	case TierLifetime:
		return 3
	case TierCreator:
		return 2
	case TierPro:
		return 1
	default:
		return 0
	}
}

// Recurring reports whether the tier is billed on a recurring subscription.
func (t Tier) Recurring() bool {
	return t == TierPro || t == TierCreator
}

// Paid reports whether the tier requires payment at all.
func (t Tier) Paid() bool {
	return t != TierFree
}

// Badge names assigned by the side-effect pipeline. At most one of these may
// be present on a user and it must match the current tier.
const (
	BadgeProSubscriber      = "pro_subscriber"
	BadgeCreatorSubscriber  = "creator_subscriber"
	BadgeLifetimeSubscriber = "lifetime_subscriber"
)

// TierBadges lists every badge the pipeline manages.
var TierBadges = []string{BadgeProSubscriber, BadgeCreatorSubscriber, BadgeLifetimeSubscriber}

// BadgeForTier returns the badge matching a tier. Free has no badge.
func BadgeForTier(t Tier) (string, bool) {
	switch t {
	case TierPro:
		return BadgeProSubscriber, true
	case TierCreator:
		return BadgeCreatorSubscriber, true
	case TierLifetime:
		return BadgeLifetimeSubscriber, true
	default:
		return "", false
	}
}

// Entitlement is what a paid tier grants in time: either a recurring period
// that ends, or a perpetual grant. The storage layer maps Perpetual onto a
// sentinel period end; business logic never sees that date.
type Entitlement struct {
	perpetual bool
	periodEnd time.Time
}

// Recurring builds an entitlement bounded by the given period end.
func Recurring(periodEnd time.Time) Entitlement {
	return Entitlement{periodEnd: periodEnd}
}

// Perpetual builds an entitlement that never expires.
func Perpetual() Entitlement {
	return Entitlement{perpetual: true}
}

// IsPerpetual reports whether the entitlement never expires.
func (e Entitlement) IsPerpetual() bool { return e.perpetual }

// ExpiresAt returns the period end for recurring entitlements and nil for
// perpetual ones. The nil result is what lands on User.TierExpiresAt.
func (e Entitlement) ExpiresAt() *time.Time {
	if e.perpetual || e.periodEnd.IsZero() {
		return nil
	}
	t := e.periodEnd
	return &t
}

// Limits describes the profile features a tier unlocks.
type Limits struct {
	MaxLinks       int  `json:"max_links"`
	CustomThemes   bool `json:"custom_themes"`
	Analytics      bool `json:"analytics"`
	RemoveBranding bool `json:"remove_branding"`
	CustomDomain   bool `json:"custom_domain"`
}

// TierConfig maps a tier to its provider price and display metadata.
type TierConfig struct {
	Tier        Tier   `json:"tier"`
	DisplayName string `json:"display_name"`
	PriceID     string `json:"-"`
	Limits      Limits `json:"limits"`
}

// Registry returns the static tier table. Price IDs come from the
// environment; a tier without a configured price cannot be checked out.
func Registry() map[Tier]TierConfig {
	return map[Tier]TierConfig{
		TierFree: {
			Tier:        TierFree,
			DisplayName: "Free",
			Limits:      Limits{MaxLinks: 10},
		},
		TierPro: {
			Tier:        TierPro,
			DisplayName: "Pro",
			PriceID:     env.GetEnv("BILLING_PRICE_PRO", ""),
			Limits:      Limits{MaxLinks: 50, CustomThemes: true, Analytics: true},
		},
		TierCreator: {
			Tier:        TierCreator,
			DisplayName: "Creator",
			PriceID:     env.GetEnv("BILLING_PRICE_CREATOR", ""),
			Limits:      Limits{MaxLinks: 200, CustomThemes: true, Analytics: true, RemoveBranding: true},
		},
		TierLifetime: {
			Tier:        TierLifetime,
			DisplayName: "Lifetime",
			PriceID:     env.GetEnv("BILLING_PRICE_LIFETIME", ""),
			Limits:      Limits{MaxLinks: 200, CustomThemes: true, Analytics: true, RemoveBranding: true, CustomDomain: true},
		},
	}
}

// PriceIDForTier resolves the provider price configured for a tier.
func PriceIDForTier(t Tier) (string, bool) {
	cfg, ok := Registry()[t]
	if !ok || cfg.PriceID == "" {
		return "", false
	}
	return cfg.PriceID, true
}

// TierForPriceID resolves the tier a provider price belongs to.
func TierForPriceID(priceID string) (Tier, bool) {
	if priceID == "" {
		return TierFree, false
	}
	for t, cfg := range Registry() {
		if cfg.PriceID == priceID {
			return t, true
		}
	}
	return TierFree, false
}

// Configured reports whether billing is usable: an API secret plus at least
// one paid price must be present.
func Configured() bool {
	if env.GetEnv("BILLING_SECRET_KEY", "") == "" {
		return false
	}
	for _, t := range []Tier{TierPro, TierCreator, TierLifetime} {
		if _, ok := PriceIDForTier(t); ok {
			return true
		}
	}
	return false
}
