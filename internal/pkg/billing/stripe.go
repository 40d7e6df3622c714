package billing

import (
	"context"
	"time"

	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/entitlements"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/env"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/customerbalancetransaction"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

// stripeProvider implements Provider on the Stripe SDK.
type stripeProvider struct {
	webhookSecret string
}

// NewStripeProviderFromEnv wires the Stripe SDK from environment config.
func NewStripeProviderFromEnv() (Provider, error) {
	key := env.GetEnv("BILLING_SECRET_KEY", "")
	if key == "" {
		return nil, configErrorf("BILLING_SECRET_KEY is not set")
	}
	stripe.Key = key
	return &stripeProvider{
		webhookSecret: env.GetEnv("BILLING_WEBHOOK_SECRET", ""),
	}, nil
}

func (p *stripeProvider) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	params := &stripe.CustomerListParams{}
	params.Context = ctx
	params.Email = stripe.String(email)
	params.Limit = stripe.Int64(1)

	it := customer.List(params)
	for it.Next() {
		c := it.Customer()
		return &Customer{ID: c.ID, Email: c.Email}, nil
	}
	if err := it.Err(); err != nil {
		return nil, providerErrorf("list customers", err)
	}
	return nil, nil
}

func (p *stripeProvider) CreateCustomer(ctx context.Context, email, name string) (*Customer, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	params.Context = ctx
	if name != "" {
		params.Name = stripe.String(name)
	}
	params.IdempotencyKey = stripe.String(uuid.NewString())

	c, err := customer.New(params)
	if err != nil {
		return nil, providerErrorf("create customer", err)
	}
	return &Customer{ID: c.ID, Email: c.Email}, nil
}

func (p *stripeProvider) CreateCheckoutSession(ctx context.Context, in CheckoutParams) (string, error) {
	mode := stripe.CheckoutSessionModeSubscription
	if in.OneTime {
		mode = stripe.CheckoutSessionModePayment
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(mode)),
		Customer:   stripe.String(in.CustomerID),
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(in.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	// Mirror the metadata onto the subscription object so later
	// subscription.* events stay attributable to the user.
	if !in.OneTime {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: in.Metadata,
		}
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", providerErrorf("create checkout session", err)
	}
	return sess.URL, nil
}

func (p *stripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := portalsession.New(params)
	if err != nil {
		return "", providerErrorf("create portal session", err)
	}
	return sess.URL, nil
}

func (p *stripeProvider) GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := subscription.Get(subscriptionID, params)
	if err != nil {
		return nil, providerErrorf("get subscription", err)
	}
	return normalizeStripeSubscription(sub), nil
}

func (p *stripeProvider) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*ProviderSubscription, error) {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(cancel),
	}
	params.Context = ctx

	sub, err := subscription.Update(subscriptionID, params)
	if err != nil {
		return nil, providerErrorf("update subscription", err)
	}
	return normalizeStripeSubscription(sub), nil
}

func (p *stripeProvider) AddCustomerBalance(ctx context.Context, customerID string, amountCents int64, description string) error {
	params := &stripe.CustomerBalanceTransactionParams{
		Customer: stripe.String(customerID),
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(string(stripe.CurrencyUSD)),
	}
	params.Context = ctx
	if description != "" {
		params.Description = stripe.String(description)
	}
	params.IdempotencyKey = stripe.String(uuid.NewString())

	if _, err := customerbalancetransaction.New(params); err != nil {
		return providerErrorf("add customer balance", err)
	}
	return nil
}

func (p *stripeProvider) GetCustomerBalance(ctx context.Context, customerID string) (int64, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx

	c, err := customer.Get(customerID, params)
	if err != nil {
		return 0, providerErrorf("get customer", err)
	}
	return c.Balance, nil
}

func (p *stripeProvider) VerifyWebhook(payload []byte, signatureHeader string) (stripe.Event, error) {
	if p.webhookSecret == "" {
		return stripe.Event{}, configErrorf("BILLING_WEBHOOK_SECRET is not set")
	}
	return webhook.ConstructEvent(payload, signatureHeader, p.webhookSecret)
}

// normalizeStripeSubscription flattens the SDK shape into the
// provider-agnostic one. Period bounds live on the subscription item.
func normalizeStripeSubscription(sub *stripe.Subscription) *ProviderSubscription {
	out := &ProviderSubscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CanceledAt:        epochToTime(sub.CanceledAt),
		EndedAt:           epochToTime(sub.EndedAt),
		TrialStart:        epochToTime(sub.TrialStart),
		TrialEnd:          epochToTime(sub.TrialEnd),
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		out.CurrentPeriodStart = epochToTime(item.CurrentPeriodStart)
		out.CurrentPeriodEnd = epochToTime(item.CurrentPeriodEnd)
		if item.Price != nil {
			out.PriceID = item.Price.ID
		}
	}
	return out
}

// TierFromProviderSubscription resolves the tier a provider subscription
// grants, preferring metadata and falling back to the price mapping.
func TierFromProviderSubscription(sub *ProviderSubscription) (entitlements.Tier, bool) {
	if raw, ok := sub.Metadata["tier"]; ok && raw != "" {
		return entitlements.ParseTier(raw), true
	}
	return entitlements.TierForPriceID(sub.PriceID)
}

func epochToTime(epoch int64) *time.Time {
	if epoch <= 0 {
		return nil
	}
	t := time.Unix(epoch, 0).UTC()
	return &t
}
