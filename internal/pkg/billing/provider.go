package billing

import (
	"context"
	"time"

	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/entitlements"
	"github.com/stripe/stripe-go/v82"
)

// Customer is the provider-side billing identity of a user.
type Customer struct {
	ID    string
	Email string
}

// ProviderSubscription is the normalized view of a provider subscription
// object, fetched after a confirmed checkout or on demand.
type ProviderSubscription struct {
	ID                 string
	CustomerID         string
	Status             string
	PriceID            string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
	EndedAt            *time.Time
	TrialStart         *time.Time
	TrialEnd           *time.Time
	Metadata           map[string]string
}

// CheckoutParams describes a checkout session request. Metadata carries the
// user id and tier so the webhook can attribute the completed session
// without re-querying.
type CheckoutParams struct {
	CustomerID string
	Tier       entitlements.Tier
	PriceID    string
	OneTime    bool
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// Provider is the boundary to the external billing authority. The stripe
// implementation is the only production one; tests substitute a fake.
type Provider interface {
	// FindCustomerByEmail returns the existing customer for the email, or
	// nil when none exists. Used to avoid duplicate customer identities.
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)
	CreateCustomer(ctx context.Context, email, name string) (*Customer, error)
	// CreateCheckoutSession returns the redirect URL for the hosted page.
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (string, error)
	// CreatePortalSession returns the redirect URL for self-service billing.
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*ProviderSubscription, error)
	// AddCustomerBalance issues a signed balance adjustment; negative
	// amounts credit the customer.
	AddCustomerBalance(ctx context.Context, customerID string, amountCents int64, description string) error
	GetCustomerBalance(ctx context.Context, customerID string) (int64, error)
	// VerifyWebhook checks the event envelope signature and returns the
	// parsed event. Payloads failing verification never reach a handler.
	VerifyWebhook(payload []byte, signatureHeader string) (stripe.Event, error)
}
