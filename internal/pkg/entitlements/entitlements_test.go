package entitlements

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTier(t *testing.T) {
	tests := []struct {
		in   string
		want Tier
	}{
		{"pro", TierPro},
		{"creator", TierCreator},
		{"lifetime", TierLifetime},
		{"free", TierFree},
		{"PRO", TierPro},
		{"  Creator ", TierCreator},
		{"standard", TierFree}, // legacy value
		{"", TierFree},
		{"gibberish", TierFree},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseTier(tt.in), "ParseTier(%q)", tt.in)
	}
}

func TestParseTierStrict(t *testing.T) {
	for _, known := range []string{"free", "pro", "creator", "lifetime", "standard", " PRO "} {
		_, ok := ParseTierStrict(known)
		assert.True(t, ok, "ParseTierStrict(%q)", known)
	}
	for _, unknown := range []string{"", "gibberish", "platinum"} {
		tier, ok := ParseTierStrict(unknown)
		assert.False(t, ok, "ParseTierStrict(%q)", unknown)
		assert.Equal(t, TierFree, tier)
	}
}

func TestTierRankOrdering(t *testing.T) {
	assert.Less(t, TierFree.Rank(), TierPro.Rank())
	assert.Less(t, TierPro.Rank(), TierCreator.Rank())
	assert.Less(t, TierCreator.Rank(), TierLifetime.Rank())
}

func TestTierClassification(t *testing.T) {
	assert.False(t, TierFree.Paid())
	assert.True(t, TierPro.Paid())
	assert.True(t, TierLifetime.Paid())

	assert.True(t, TierPro.Recurring())
	assert.True(t, TierCreator.Recurring())
	assert.False(t, TierLifetime.Recurring())
	assert.False(t, TierFree.Recurring())
}

func TestBadgeForTier(t *testing.T) {
	name, ok := BadgeForTier(TierPro)
	assert.True(t, ok)
	assert.Equal(t, BadgeProSubscriber, name)

	name, ok = BadgeForTier(TierFree)
	assert.False(t, ok)
	assert.Empty(t, name)

	// Every paid tier has exactly one managed badge.
	seen := map[string]bool{}
	for _, tier := range []Tier{TierPro, TierCreator, TierLifetime} {
		name, ok := BadgeForTier(tier)
		require.True(t, ok)
		assert.False(t, seen[name], "badge %s assigned twice", name)
		seen[name] = true
	}
	assert.Len(t, TierBadges, len(seen))
}

func TestEntitlement(t *testing.T) {
	end := time.Now().Add(30 * 24 * time.Hour)

	rec := Recurring(end)
	assert.False(t, rec.IsPerpetual())
	require.NotNil(t, rec.ExpiresAt())
	assert.True(t, rec.ExpiresAt().Equal(end))

	perp := Perpetual()
	assert.True(t, perp.IsPerpetual())
	assert.Nil(t, perp.ExpiresAt())

	assert.Nil(t, Recurring(time.Time{}).ExpiresAt())
}

func TestPriceMapping(t *testing.T) {
	t.Setenv("BILLING_PRICE_PRO", "price_pro")
	t.Setenv("BILLING_PRICE_CREATOR", "price_creator")
	t.Setenv("BILLING_PRICE_LIFETIME", "")

	priceID, ok := PriceIDForTier(TierPro)
	assert.True(t, ok)
	assert.Equal(t, "price_pro", priceID)

	_, ok = PriceIDForTier(TierLifetime)
	assert.False(t, ok)
	_, ok = PriceIDForTier(TierFree)
	assert.False(t, ok)

	tier, ok := TierForPriceID("price_creator")
	assert.True(t, ok)
	assert.Equal(t, TierCreator, tier)

	_, ok = TierForPriceID("price_unknown")
	assert.False(t, ok)
	_, ok = TierForPriceID("")
	assert.False(t, ok)
}

func TestConfigured(t *testing.T) {
	t.Setenv("BILLING_SECRET_KEY", "")
	t.Setenv("BILLING_PRICE_PRO", "price_pro")
	assert.False(t, Configured())

	t.Setenv("BILLING_SECRET_KEY", "sk_test")
	assert.True(t, Configured())

	t.Setenv("BILLING_PRICE_PRO", "")
	t.Setenv("BILLING_PRICE_CREATOR", "")
	t.Setenv("BILLING_PRICE_LIFETIME", "")
	assert.False(t, Configured())
}

func TestRegistryLimitsGrowWithRank(t *testing.T) {
	reg := Registry()
	assert.Less(t, reg[TierFree].Limits.MaxLinks, reg[TierPro].Limits.MaxLinks)
	assert.Less(t, reg[TierPro].Limits.MaxLinks, reg[TierCreator].Limits.MaxLinks)
	assert.False(t, reg[TierFree].Limits.Analytics)
	assert.True(t, reg[TierCreator].Limits.RemoveBranding)
	assert.True(t, reg[TierLifetime].Limits.CustomDomain)
}
