package billing

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"

	"github.com/Eziox-Development/eziox-web-sub001/app/models"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/entitlements"
)

func configureBilling(t *testing.T) {
	t.Helper()
	t.Setenv("BILLING_SECRET_KEY", "sk_test_123")
	t.Setenv("BILLING_PRICE_PRO", "price_pro")
	t.Setenv("BILLING_PRICE_CREATOR", "price_creator")
	t.Setenv("BILLING_PRICE_LIFETIME", "price_lifetime")
}

func TestGetTierConfig(t *testing.T) {
	configureBilling(t)
	e := newTestEngine()

	cfg := e.service.GetTierConfig()
	assert.True(t, cfg.Configured)
	require.Len(t, cfg.Tiers, 4)
	assert.Equal(t, entitlements.TierFree, cfg.Tiers[0].Tier)
	assert.Equal(t, entitlements.TierPro, cfg.Tiers[1].Tier)
	assert.Equal(t, entitlements.TierCreator, cfg.Tiers[2].Tier)
	assert.Equal(t, entitlements.TierLifetime, cfg.Tiers[3].Tier)
}

func TestCreateCheckoutSessionRequiresConfiguration(t *testing.T) {
	e := newTestEngine(activeUser(1, "free"))

	_, err := e.service.CreateCheckoutSession(context.Background(), 1, "pro", "", "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestCreateCheckoutSessionRejectsFreeTier(t *testing.T) {
	configureBilling(t)
	e := newTestEngine(activeUser(1, "free"))

	_, err := e.service.CreateCheckoutSession(context.Background(), 1, "free", "", "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateCheckoutSessionRejectsLifetimeHolders(t *testing.T) {
	configureBilling(t)
	e := newTestEngine(activeUser(1, "lifetime"))

	_, err := e.service.CreateCheckoutSession(context.Background(), 1, "pro", "", "")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCreateCheckoutSessionCreatesAndPersistsCustomer(t *testing.T) {
	configureBilling(t)
	e := newTestEngine(activeUser(1, "free"))

	url, err := e.service.CreateCheckoutSession(context.Background(), 1, "pro", "https://eziox.test/ok", "https://eziox.test/no")
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/session", url)

	// The customer identity was created once and stored on the user.
	require.NotNil(t, e.provider.createdCustomer)
	require.NotNil(t, e.users.users[1].BillingCustomerID)
	assert.Equal(t, e.provider.createdCustomer.ID, *e.users.users[1].BillingCustomerID)

	// Attribution metadata rides along for the webhook.
	assert.Equal(t, "1", e.provider.lastCheckout.Metadata["userId"])
	assert.Equal(t, "pro", e.provider.lastCheckout.Metadata["tier"])
	assert.Equal(t, "price_pro", e.provider.lastCheckout.PriceID)
	assert.False(t, e.provider.lastCheckout.OneTime)

	// Starting a checkout never touches the tier.
	assert.Equal(t, "free", e.users.users[1].Tier)
}

func TestCreateCheckoutSessionLifetimeIsOneTime(t *testing.T) {
	configureBilling(t)
	e := newTestEngine(activeUser(1, "pro"))

	_, err := e.service.CreateCheckoutSession(context.Background(), 1, "lifetime", "", "")
	require.NoError(t, err)
	assert.True(t, e.provider.lastCheckout.OneTime)
	assert.Equal(t, "price_lifetime", e.provider.lastCheckout.PriceID)
}

func TestCreateBillingPortalSessionWithoutCustomer(t *testing.T) {
	configureBilling(t)
	e := newTestEngine(activeUser(1, "free"))

	_, err := e.service.CreateBillingPortalSession(context.Background(), 1, "https://eziox.test/billing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateBillingPortalSessionRecoversCustomerByEmail(t *testing.T) {
	configureBilling(t)
	e := newTestEngine(activeUser(1, "pro"))
	e.provider.customers["cus_known"] = &Customer{ID: "cus_known", Email: "tester@example.com"}

	url, err := e.service.CreateBillingPortalSession(context.Background(), 1, "https://eziox.test/billing")
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/portal", url)

	require.NotNil(t, e.users.users[1].BillingCustomerID)
	assert.Equal(t, "cus_known", *e.users.users[1].BillingCustomerID)
}

func TestCancelSubscriptionWithoutLink(t *testing.T) {
	e := newTestEngine(activeUser(1, "pro"))

	_, err := e.service.CancelSubscription(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelAndResumeSubscription(t *testing.T) {
	periodEnd := time.Now().Add(15 * 24 * time.Hour).UTC().Truncate(time.Second)
	linked := "sub_1"
	user := activeUser(1, "pro")
	user.BillingSubscriptionID = &linked
	user.TierExpiresAt = &periodEnd
	e := newTestEngine(user)
	e.provider.subscriptions["sub_1"] = &ProviderSubscription{
		ID:               "sub_1",
		Status:           "active",
		CurrentPeriodEnd: &periodEnd,
	}

	current, err := e.service.CancelSubscription(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, current.Subscription)
	assert.True(t, current.Subscription.CancelAtPeriodEnd)
	assert.Equal(t, entitlements.TierPro, current.Tier)
	assert.Equal(t, []string{"sub_1"}, e.provider.cancelCalls)
	require.Len(t, e.notifications.created, 1)
	assert.Equal(t, models.NotificationTierCanceled, e.notifications.created[0].Kind)

	current, err = e.service.ResumeSubscription(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, current.Subscription)
	assert.False(t, current.Subscription.CancelAtPeriodEnd)
	assert.Equal(t, entitlements.TierPro, current.Tier)
	// Resuming is not news; no extra notification.
	assert.Len(t, e.notifications.created, 1)
}

func TestSetUserTierDefaultsExpiry(t *testing.T) {
	e := newTestEngine(activeUser(1, "free"))

	result, err := e.service.SetUserTier(context.Background(), 1, "pro", nil)
	require.NoError(t, err)
	assert.True(t, result.TierChanged)

	user := e.users.users[1]
	assert.Equal(t, "pro", user.Tier)
	require.NotNil(t, user.TierExpiresAt)
	expected := time.Now().UTC().Add(adminGrantDuration)
	assert.WithinDuration(t, expected, *user.TierExpiresAt, time.Minute)

	require.Len(t, e.notifications.created, 1)
	assert.Equal(t, models.NotificationTierGranted, e.notifications.created[0].Kind)
}

func TestSetUserTierLifetimeAndFreeCarryNoExpiry(t *testing.T) {
	e := newTestEngine(activeUser(1, "free"), activeUser(2, "pro"))

	_, err := e.service.SetUserTier(context.Background(), 1, "lifetime", nil)
	require.NoError(t, err)
	assert.Nil(t, e.users.users[1].TierExpiresAt)
	assert.Equal(t, "lifetime", e.users.users[1].Tier)

	_, err = e.service.SetUserTier(context.Background(), 2, "free", nil)
	require.NoError(t, err)
	assert.Nil(t, e.users.users[2].TierExpiresAt)
	assert.Equal(t, "free", e.users.users[2].Tier)
}

func TestSetUserTierRejectsPastExpiry(t *testing.T) {
	e := newTestEngine(activeUser(1, "free"))
	past := time.Now().Add(-time.Hour)

	_, err := e.service.SetUserTier(context.Background(), 1, "pro", &past)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAddCustomerCredit(t *testing.T) {
	customerID := "cus_1"
	user := activeUser(1, "pro")
	user.BillingCustomerID = &customerID
	e := newTestEngine(user)

	require.NoError(t, e.service.AddCustomerCredit(context.Background(), 1, -500, "goodwill"))
	balance, err := e.service.GetCustomerBalance(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(-500), balance)

	err = e.service.AddCustomerCredit(context.Background(), 1, 0, "nothing")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAddCustomerCreditCreatesMissingCustomer(t *testing.T) {
	e := newTestEngine(activeUser(1, "free"))

	require.NoError(t, e.service.AddCustomerCredit(context.Background(), 1, -100, "goodwill"))

	// The customer identity was created and persisted on the way.
	require.NotNil(t, e.provider.createdCustomer)
	require.NotNil(t, e.users.users[1].BillingCustomerID)
	assert.Equal(t, int64(-100), e.provider.balances[*e.users.users[1].BillingCustomerID])
}

func TestProcessWebhookRejectsBadSignature(t *testing.T) {
	e := newTestEngine()
	e.provider.verifyErr = assert.AnError

	_, err := e.service.ProcessWebhook(context.Background(), []byte("{}"), "bad")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, e.events.events)
}

func TestProcessWebhookDeduplicatesDeliveries(t *testing.T) {
	e := newTestEngine(activeUser(1, "free"))
	raw, _ := json.Marshal(map[string]interface{}{"id": "ch_1"})
	e.provider.verifyEvent = stripe.Event{
		ID:      "evt_1",
		Type:    "charge.refunded",
		Created: time.Now().Unix(),
		Data:    &stripe.EventData{Raw: raw},
	}

	first, err := e.service.ProcessWebhook(context.Background(), []byte("{}"), "sig")
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := e.service.ProcessWebhook(context.Background(), []byte("{}"), "sig")
	require.NoError(t, err)
	assert.True(t, second.Duplicate)

	assert.Len(t, e.events.events, 1)
}

func TestProcessWebhookPropagatesHandlerErrors(t *testing.T) {
	e := newTestEngine(activeUser(1, "free"))
	raw, _ := json.Marshal(map[string]interface{}{
		"id":           "cs_1",
		"mode":         "subscription",
		"subscription": "sub_missing",
		"metadata":     map[string]string{"userId": "1", "tier": "pro"},
	})
	e.provider.verifyEvent = stripe.Event{
		ID:      "evt_2",
		Type:    "checkout.session.completed",
		Created: time.Now().Unix(),
		Data:    &stripe.EventData{Raw: raw},
	}

	_, err := e.service.ProcessWebhook(context.Background(), []byte("{}"), "sig")
	require.Error(t, err)

	// The failure is recorded on the stored event for operators.
	record := e.events.events["evt_2"]
	require.NotNil(t, record)
	assert.NotEmpty(t, e.events.processed[record.ID])
}

func TestProcessWebhookRedeliveryAfterFailureIsHandled(t *testing.T) {
	e := newTestEngine(activeUser(1, "free"))
	raw, _ := json.Marshal(map[string]interface{}{
		"id":           "cs_1",
		"mode":         "subscription",
		"subscription": "sub_1",
		"customer":     "cus_1",
		"metadata":     map[string]string{"userId": "1", "tier": "pro"},
	})
	e.provider.verifyEvent = stripe.Event{
		ID:      "evt_3",
		Type:    "checkout.session.completed",
		Created: time.Now().Unix(),
		Data:    &stripe.EventData{Raw: raw},
	}

	// First delivery fails: the provider cannot serve the subscription yet.
	_, err := e.service.ProcessWebhook(context.Background(), []byte("{}"), "sig")
	require.Error(t, err)
	assert.Equal(t, "free", e.users.users[1].Tier)

	// The provider retries. The redelivery is not a duplicate of a handled
	// event and must run the handlers again.
	periodEnd := time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Second)
	e.provider.subscriptions["sub_1"] = &ProviderSubscription{
		ID:               "sub_1",
		CustomerID:       "cus_1",
		Status:           "active",
		CurrentPeriodEnd: &periodEnd,
		Metadata:         map[string]string{"userId": "1", "tier": "pro"},
	}
	outcome, err := e.service.ProcessWebhook(context.Background(), []byte("{}"), "sig")
	require.NoError(t, err)
	assert.False(t, outcome.Duplicate)
	assert.Equal(t, "pro", e.users.users[1].Tier)
	assert.Len(t, e.events.events, 1)

	// A third delivery after success is an ordinary duplicate.
	outcome, err = e.service.ProcessWebhook(context.Background(), []byte("{}"), "sig")
	require.NoError(t, err)
	assert.True(t, outcome.Duplicate)
}

func TestListUsersByTierFilter(t *testing.T) {
	free := activeUser(1, "free")
	pro := activeUser(2, "pro")
	pro.Email = "pro@example.com"
	e := newTestEngine(free, pro)

	users, total, err := e.service.ListUsersByTier("pro", 50, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, users, 1)
	assert.Equal(t, "pro", users[0].Tier)

	// An empty filter pages every user.
	_, total, err = e.service.ListUsersByTier("", 50, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	_, _, err = e.service.ListUsersByTier("platinum", 50, 0)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCancelSubscriptionKeepsStoredPayload(t *testing.T) {
	periodEnd := time.Now().Add(15 * 24 * time.Hour).UTC().Truncate(time.Second)
	linked := "sub_1"
	user := activeUser(1, "pro")
	user.BillingSubscriptionID = &linked
	e := newTestEngine(user)
	e.subs.subs["sub_1"] = &models.Subscription{
		ID: 1, UserID: 1, ProviderSubscriptionID: "sub_1",
		Tier: "pro", Status: models.SubscriptionStatusActive,
		RawPayloadJSON: `{"id":"sub_1","status":"active"}`,
	}
	e.provider.subscriptions["sub_1"] = &ProviderSubscription{
		ID:               "sub_1",
		Status:           "active",
		CurrentPeriodEnd: &periodEnd,
	}

	_, err := e.service.CancelSubscription(context.Background(), 1)
	require.NoError(t, err)

	// Provider fetches carry no payload; the last webhook's stays put.
	mirror, err := e.subs.GetByProviderID("sub_1")
	require.NoError(t, err)
	assert.True(t, mirror.CancelAtPeriodEnd)
	assert.Equal(t, `{"id":"sub_1","status":"active"}`, mirror.RawPayloadJSON)
}

func TestGetCurrentSubscriptionHidesLifetimeSentinel(t *testing.T) {
	linked := "pi:pi_1"
	user := activeUser(1, "lifetime")
	user.BillingSubscriptionID = &linked
	e := newTestEngine(user)
	sentinel := models.LifetimePeriodEnd
	e.subs.subs["pi:pi_1"] = &models.Subscription{
		ID: 1, UserID: 1, ProviderSubscriptionID: "pi:pi_1",
		Tier: "lifetime", Status: models.SubscriptionStatusActive,
		CurrentPeriodEnd: &sentinel,
	}

	current, err := e.service.GetCurrentSubscription(1)
	require.NoError(t, err)
	assert.Equal(t, entitlements.TierLifetime, current.Tier)
	assert.Nil(t, current.TierExpiresAt)
	require.NotNil(t, current.Subscription)
	assert.Nil(t, current.Subscription.CurrentPeriodEnd)
}
