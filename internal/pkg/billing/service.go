package billing

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/Eziox-Development/eziox-web-sub001/app/models"
	"github.com/Eziox-Development/eziox-web-sub001/app/repository"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/entitlements"
	"github.com/gofiber/fiber/v2/log"
)

// providerTimeout bounds every outbound call to the billing provider.
const providerTimeout = 15 * time.Second

// adminGrantDuration is the default validity of an admin-granted recurring
// tier when no explicit expiry is given.
const adminGrantDuration = 365 * 24 * time.Hour

// Service is the application-facing billing API. It owns customer identity,
// hosted session creation and the webhook intake; all tier writes it causes
// go through the reconciler.
type Service struct {
	users      repository.UserRepository
	subs       repository.SubscriptionRepository
	events     repository.WebhookEventRepository
	provider   Provider
	reconciler *Reconciler
	dispatcher *Dispatcher
}

// NewService wires the billing service.
func NewService(repos *repository.Repositories, provider Provider, reconciler *Reconciler, dispatcher *Dispatcher) *Service {
	return &Service{
		users:      repos.User,
		subs:       repos.Subscription,
		events:     repos.WebhookEvent,
		provider:   provider,
		reconciler: reconciler,
		dispatcher: dispatcher,
	}
}

// GetTierConfig returns the tier table in rank order plus whether billing is
// usable at all. Served without authentication; price ids stay internal.
func (s *Service) GetTierConfig() TierConfigResponse {
	registry := entitlements.Registry()
	tiers := make([]entitlements.TierConfig, 0, len(registry))
	for _, t := range []entitlements.Tier{entitlements.TierFree, entitlements.TierPro, entitlements.TierCreator, entitlements.TierLifetime} {
		tiers = append(tiers, registry[t])
	}
	return TierConfigResponse{Configured: entitlements.Configured(), Tiers: tiers}
}

// GetCurrentSubscription returns the user's tier, expiry and, when a
// provider subscription is linked, its mirror state.
func (s *Service) GetCurrentSubscription(userID uint) (*CurrentSubscription, error) {
	user, err := s.users.GetByID(userID)
	if err != nil {
		return nil, ErrNotFound
	}

	cur := &CurrentSubscription{
		Tier:          entitlements.ParseTier(user.Tier),
		TierExpiresAt: user.TierExpiresAt,
	}
	if linked := user.LinkedSubscriptionID(); linked != "" {
		if mirror, err := s.subs.GetByProviderID(linked); err == nil && mirror != nil {
			cur.Subscription = subscriptionInfo(mirror)
		}
	}
	return cur, nil
}

// subscriptionInfo builds the exposed mirror view. The lifetime sentinel
// period end is a storage detail and is never served.
func subscriptionInfo(mirror *models.Subscription) *SubscriptionInfo {
	info := &SubscriptionInfo{
		Status:            mirror.Status,
		CancelAtPeriodEnd: mirror.CancelAtPeriodEnd,
	}
	if mirror.CurrentPeriodEnd != nil && !mirror.CurrentPeriodEnd.Equal(models.LifetimePeriodEnd) {
		info.CurrentPeriodEnd = mirror.CurrentPeriodEnd
	}
	return info
}

// CreateCheckoutSession builds a hosted checkout for the given paid tier and
// returns the redirect URL. The user's tier is never touched here; only the
// confirmed webhook grants it.
func (s *Service) CreateCheckoutSession(ctx context.Context, userID uint, rawTier, successURL, cancelURL string) (string, error) {
	if !entitlements.Configured() {
		return "", configErrorf("no provider secret or prices set")
	}
	tier := entitlements.ParseTier(rawTier)
	if !tier.Paid() {
		return "", validationErrorf("tier %q is not purchasable", rawTier)
	}
	priceID, ok := entitlements.PriceIDForTier(tier)
	if !ok {
		return "", configErrorf("no price configured for tier %s", tier)
	}

	user, err := s.users.GetByID(userID)
	if err != nil {
		return "", ErrNotFound
	}
	if entitlements.ParseTier(user.Tier) == entitlements.TierLifetime {
		return "", ErrForbidden
	}

	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return "", err
	}

	return s.provider.CreateCheckoutSession(ctx, CheckoutParams{
		CustomerID: customerID,
		Tier:       tier,
		PriceID:    priceID,
		OneTime:    tier == entitlements.TierLifetime,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
		Metadata:   attributionMetadata(userID, tier),
	})
}

// CreateBillingPortalSession returns the redirect URL for the provider's
// self-service portal. Requires an existing billing customer.
func (s *Service) CreateBillingPortalSession(ctx context.Context, userID uint, returnURL string) (string, error) {
	if !entitlements.Configured() {
		return "", configErrorf("no provider secret or prices set")
	}
	user, err := s.users.GetByID(userID)
	if err != nil {
		return "", ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	customerID := ""
	if user.HasBillingCustomer() {
		customerID = *user.BillingCustomerID
	} else if found, err := s.provider.FindCustomerByEmail(ctx, user.Email); err == nil && found != nil {
		customerID = found.ID
		if err := s.users.SetBillingCustomerID(userID, customerID); err != nil {
			log.Warnf("billing: could not persist recovered customer id for user %d: %v", userID, err)
		}
	}
	if customerID == "" {
		return "", ErrNotFound
	}

	return s.provider.CreatePortalSession(ctx, customerID, returnURL)
}

// CancelSubscription flags the user's linked subscription to end at the
// period close. The tier stays until then; the reconciler records the
// cancellation and notifies once.
func (s *Service) CancelSubscription(ctx context.Context, userID uint) (*CurrentSubscription, error) {
	return s.setCancelState(ctx, userID, true)
}

// ResumeSubscription clears a pending cancellation before the period closes.
func (s *Service) ResumeSubscription(ctx context.Context, userID uint) (*CurrentSubscription, error) {
	return s.setCancelState(ctx, userID, false)
}

func (s *Service) setCancelState(ctx context.Context, userID uint, cancelFlag bool) (*CurrentSubscription, error) {
	user, err := s.users.GetByID(userID)
	if err != nil {
		return nil, ErrNotFound
	}
	linked := user.LinkedSubscriptionID()
	if linked == "" {
		return nil, ErrNotFound
	}

	callCtx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	sub, err := s.provider.SetCancelAtPeriodEnd(callCtx, linked, cancelFlag)
	if err != nil {
		return nil, err
	}

	tier := entitlements.ParseTier(user.Tier)
	ent := entitlements.Recurring(timeOrZero(sub.CurrentPeriodEnd))
	if tier == entitlements.TierLifetime {
		ent = entitlements.Perpetual()
	}
	if _, err := s.reconciler.Reconcile(ctx, ReconcileInput{
		UserID:             userID,
		NewTier:            tier,
		ExpiresAt:          ent.ExpiresAt(),
		Subscription:       upsertFromProvider(tier, sub, ""),
		LinkSubscriptionID: sub.ID,
		Canceled:           cancelFlag,
		EventAt:            time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	return s.GetCurrentSubscription(userID)
}

// SetUserTier is the admin override: it grants or revokes a tier without
// touching the provider. Recurring tiers default to a year of validity when
// no expiry is passed; free and lifetime never carry one.
func (s *Service) SetUserTier(ctx context.Context, userID uint, rawTier string, expiresAt *time.Time) (*ReconcileResult, error) {
	tier := entitlements.ParseTier(rawTier)

	switch {
	case !tier.Paid() || tier == entitlements.TierLifetime:
		expiresAt = nil
	case expiresAt == nil:
		t := time.Now().UTC().Add(adminGrantDuration)
		expiresAt = &t
	case !expiresAt.After(time.Now()):
		return nil, validationErrorf("expiry %s is in the past", expiresAt)
	}

	return s.reconciler.Reconcile(ctx, ReconcileInput{
		UserID:       userID,
		NewTier:      tier,
		ExpiresAt:    expiresAt,
		AdminGranted: true,
		EventAt:      time.Now().UTC(),
	})
}

// AddCustomerCredit posts a signed balance adjustment on the user's billing
// customer, creating the customer identity first if none exists. Negative
// amounts credit the customer against future invoices.
func (s *Service) AddCustomerCredit(ctx context.Context, userID uint, amountCents int64, description string) error {
	if amountCents == 0 {
		return validationErrorf("amount must be non-zero")
	}
	user, err := s.users.GetByID(userID)
	if err != nil {
		return ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return err
	}
	return s.provider.AddCustomerBalance(ctx, customerID, amountCents, description)
}

// GetCustomerBalance reads the user's current provider-side balance in
// cents. Users without a billing customer hold a zero balance.
func (s *Service) GetCustomerBalance(ctx context.Context, userID uint) (int64, error) {
	user, err := s.users.GetByID(userID)
	if err != nil {
		return 0, ErrNotFound
	}
	if !user.HasBillingCustomer() {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()
	return s.provider.GetCustomerBalance(ctx, *user.BillingCustomerID)
}

// ListUsersByTier pages users holding a tier, for the admin console. An
// empty filter lists every user; an unrecognized one is rejected.
func (s *Service) ListUsersByTier(rawTier string, limit, offset int) ([]models.User, int64, error) {
	tier := ""
	if strings.TrimSpace(rawTier) != "" {
		parsed, ok := entitlements.ParseTierStrict(rawTier)
		if !ok {
			return nil, 0, validationErrorf("unknown tier filter %q", rawTier)
		}
		tier = string(parsed)
	}
	total, err := s.users.CountByTier(tier)
	if err != nil {
		return nil, 0, err
	}
	users, err := s.users.ListByTier(tier, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// WebhookOutcome reports how an inbound event was handled.
type WebhookOutcome struct {
	EventID   string
	EventType string
	Duplicate bool
}

// ProcessWebhook is the full intake path for one provider delivery: verify
// the signature, record the event exactly once, dispatch, and persist the
// handling result. A returned error (other than ErrValidation for a bad
// signature) means the provider should redeliver.
func (s *Service) ProcessWebhook(ctx context.Context, payload []byte, signatureHeader string) (*WebhookOutcome, error) {
	if s.provider == nil {
		return nil, configErrorf("no billing provider configured")
	}
	event, err := s.provider.VerifyWebhook(payload, signatureHeader)
	if err != nil {
		return nil, validationErrorf("signature verification failed: %v", err)
	}

	created, record, err := s.events.CreateIfNotExists(&models.WebhookEvent{
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		PayloadJSON:     string(payload),
		SignatureValid:  true,
	})
	if err != nil {
		return nil, err
	}
	outcome := &WebhookOutcome{EventID: event.ID, EventType: string(event.Type)}
	if !created {
		// Only deliveries whose first attempt completed cleanly are
		// duplicates. A redelivery after a failed or still-running attempt
		// must run the handlers again; they are idempotent.
		if record.ProcessedAt != nil && record.ProcessingError == "" {
			log.Infof("billing: duplicate delivery of event %s, acknowledging", event.ID)
			outcome.Duplicate = true
			return outcome, nil
		}
		log.Infof("billing: redelivery of event %s after failed handling, retrying", event.ID)
	}

	dispatchErr := s.dispatcher.Dispatch(ctx, event)
	errText := ""
	if dispatchErr != nil {
		errText = dispatchErr.Error()
	}
	if err := s.events.MarkProcessed(record.ID, errText); err != nil {
		log.Errorf("billing: could not mark event %s processed: %v", event.ID, err)
	}
	return outcome, dispatchErr
}

// ensureCustomer returns the user's billing customer id, recovering an
// existing provider customer by email or creating one, and persists it.
func (s *Service) ensureCustomer(ctx context.Context, user *models.User) (string, error) {
	if user.HasBillingCustomer() {
		return *user.BillingCustomerID, nil
	}

	found, err := s.provider.FindCustomerByEmail(ctx, user.Email)
	if err != nil {
		return "", err
	}
	customer := found
	if customer == nil {
		customer, err = s.provider.CreateCustomer(ctx, user.Email, user.DisplayName)
		if err != nil {
			return "", err
		}
	}
	if err := s.users.SetBillingCustomerID(user.ID, customer.ID); err != nil {
		return "", err
	}
	return customer.ID, nil
}

// attributionMetadata is what webhook handlers use to attribute a session or
// subscription back to a user.
func attributionMetadata(userID uint, tier entitlements.Tier) map[string]string {
	return map[string]string{
		"userId": strconv.FormatUint(uint64(userID), 10),
		"tier":   string(tier),
	}
}
