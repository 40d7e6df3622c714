package billing

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/Eziox-Development/eziox-web-sub001/app/models"
	"github.com/Eziox-Development/eziox-web-sub001/app/repository"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/entitlements"
	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v82"
)

// Event kinds the dispatcher routes. Anything else is acknowledged and
// ignored.
const (
	eventCheckoutCompleted   = "checkout.session.completed"
	eventSubscriptionCreated = "customer.subscription.created"
	eventSubscriptionUpdated = "customer.subscription.updated"
	eventSubscriptionDeleted = "customer.subscription.deleted"
	eventInvoicePaymentFail  = "invoice.payment_failed"
)

// Wire shapes, limited to the fields this engine consumes. The provider
// delivers ids as plain strings on unexpanded event payloads.
type checkoutSessionPayload struct {
	ID            string            `json:"id"`
	Mode          string            `json:"mode"`
	Subscription  string            `json:"subscription"`
	PaymentIntent string            `json:"payment_intent"`
	Customer      string            `json:"customer"`
	Metadata      map[string]string `json:"metadata"`
}

type subscriptionPayload struct {
	ID                 string `json:"id"`
	Status             string `json:"status"`
	Customer           string `json:"customer"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	CanceledAt         int64  `json:"canceled_at"`
	EndedAt            int64  `json:"ended_at"`
	TrialStart         int64  `json:"trial_start"`
	TrialEnd           int64  `json:"trial_end"`
	Items              struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
	Metadata map[string]string `json:"metadata"`
}

type invoicePayload struct {
	Subscription string `json:"subscription"`
	Customer     string `json:"customer"`
}

// Dispatcher routes verified provider events to their handlers. Delivery is
// at-least-once and unordered, so every handler must be safely re-runnable;
// a returned error makes the endpoint answer 5xx and the provider redeliver.
type Dispatcher struct {
	subs       repository.SubscriptionRepository
	reconciler *Reconciler
	provider   Provider
}

// NewDispatcher creates a dispatcher over the reconciler and provider.
func NewDispatcher(subs repository.SubscriptionRepository, reconciler *Reconciler, provider Provider) *Dispatcher {
	return &Dispatcher{subs: subs, reconciler: reconciler, provider: provider}
}

// Dispatch routes one verified event. Events that can never become valid
// (missing metadata, unknown subscription) are logged and acknowledged; the
// provider's delivery guarantee is already satisfied for them.
func (d *Dispatcher) Dispatch(ctx context.Context, event stripe.Event) error {
	eventAt := time.Unix(event.Created, 0).UTC()

	switch string(event.Type) {
	case eventCheckoutCompleted:
		return d.handleCheckoutCompleted(ctx, event.Data.Raw, eventAt)
	case eventSubscriptionCreated, eventSubscriptionUpdated:
		return d.handleSubscriptionUpdated(ctx, event.Data.Raw, eventAt)
	case eventSubscriptionDeleted:
		return d.handleSubscriptionDeleted(ctx, event.Data.Raw, eventAt)
	case eventInvoicePaymentFail:
		return d.handleInvoicePaymentFailed(ctx, event.Data.Raw)
	default:
		log.Debugf("billing: ignoring event type %s", event.Type)
		return nil
	}
}

// handleCheckoutCompleted turns a confirmed checkout into the first
// reconciliation. Subscription mode fetches the just-created subscription
// for its authoritative fields; payment mode has no subscription object and
// synthesizes the mirror row.
func (d *Dispatcher) handleCheckoutCompleted(ctx context.Context, raw json.RawMessage, eventAt time.Time) error {
	var sess checkoutSessionPayload
	if err := json.Unmarshal(raw, &sess); err != nil {
		log.Warnf("billing: malformed checkout payload, skipping: %v", err)
		return nil
	}

	userID, ok := userIDFromMetadata(sess.Metadata)
	if !ok {
		log.Warnf("billing: checkout session %s carries no userId metadata, skipping", sess.ID)
		return nil
	}
	if sess.Mode == string(stripe.CheckoutSessionModePayment) {
		rawTier, ok := sess.Metadata["tier"]
		if !ok || rawTier == "" {
			log.Warnf("billing: checkout session %s carries no tier metadata, skipping", sess.ID)
			return nil
		}
		return d.reconcileOneTimeGrant(ctx, userID, entitlements.ParseTier(rawTier), sess, eventAt)
	}

	if sess.Subscription == "" {
		log.Warnf("billing: subscription-mode checkout session %s has no subscription id, skipping", sess.ID)
		return nil
	}

	// Fetch the authoritative subscription state instead of trusting the
	// session snapshot.
	sub, err := d.provider.GetSubscription(ctx, sess.Subscription)
	if err != nil {
		return err
	}

	tier := entitlements.ParseTier(sess.Metadata["tier"])
	if tier == entitlements.TierFree {
		derived, ok := TierFromProviderSubscription(sub)
		if !ok {
			log.Warnf("billing: checkout session %s resolves to no paid tier, skipping", sess.ID)
			return nil
		}
		tier = derived
	}

	ent := entitlements.Recurring(timeOrZero(sub.CurrentPeriodEnd))
	_, err = d.reconciler.Reconcile(ctx, ReconcileInput{
		UserID:             userID,
		NewTier:            tier,
		ExpiresAt:          ent.ExpiresAt(),
		Subscription:       upsertFromProvider(tier, sub, string(raw)),
		LinkSubscriptionID: sub.ID,
		CustomerID:         sess.Customer,
		EventAt:            eventAt,
	})
	return err
}

// reconcileOneTimeGrant handles payment-mode checkouts: a lifetime purchase
// grants a perpetual entitlement, anything else a year. No provider
// subscription exists, so the mirror row is synthesized under a stable id.
func (d *Dispatcher) reconcileOneTimeGrant(ctx context.Context, userID uint, tier entitlements.Tier, sess checkoutSessionPayload, eventAt time.Time) error {
	subID := "pi:" + sess.PaymentIntent
	if sess.PaymentIntent == "" {
		subID = "cs:" + sess.ID
	}

	ent := entitlements.Perpetual()
	if tier != entitlements.TierLifetime {
		ent = entitlements.Recurring(eventAt.AddDate(1, 0, 0))
	}

	_, err := d.reconciler.Reconcile(ctx, ReconcileInput{
		UserID:    userID,
		NewTier:   tier,
		ExpiresAt: ent.ExpiresAt(),
		Subscription: &SubscriptionUpsert{
			ProviderSubscriptionID: subID,
			Tier:                   tier,
			Status:                 models.SubscriptionStatusActive,
			CurrentPeriodStart:     &eventAt,
			CurrentPeriodEnd:       ent.ExpiresAt(),
		},
		LinkSubscriptionID: subID,
		CustomerID:         sess.Customer,
		EventAt:            eventAt,
	})
	return err
}

// handleSubscriptionUpdated recomputes the effective tier from the mirror
// and the event's status: a subscription that is not active or trialing
// entitles nothing, regardless of its nominal tier.
func (d *Dispatcher) handleSubscriptionUpdated(ctx context.Context, raw json.RawMessage, eventAt time.Time) error {
	var sub subscriptionPayload
	if err := json.Unmarshal(raw, &sub); err != nil {
		log.Warnf("billing: malformed subscription payload, skipping: %v", err)
		return nil
	}
	if sub.ID == "" {
		log.Warnf("billing: subscription event without id, skipping")
		return nil
	}

	nominalTier, userID, ok := d.attributeSubscription(sub)
	if !ok {
		log.Warnf("billing: subscription %s was never attributed to a user, skipping", sub.ID)
		return nil
	}

	status := normalizeStatus(sub.Status)
	effectiveTier := entitlements.TierFree
	var expiresAt *time.Time
	if status == models.SubscriptionStatusActive || status == models.SubscriptionStatusTrialing {
		effectiveTier = nominalTier
		expiresAt = epochToTime(sub.CurrentPeriodEnd)
	}

	_, err := d.reconciler.Reconcile(ctx, ReconcileInput{
		UserID:             userID,
		NewTier:            effectiveTier,
		ExpiresAt:          expiresAt,
		Subscription:       upsertFromPayload(nominalTier, status, sub, string(raw)),
		LinkSubscriptionID: sub.ID,
		Canceled:           sub.CancelAtPeriodEnd,
		EventAt:            eventAt,
	})
	return err
}

// handleSubscriptionDeleted downgrades to free and clears the linkage. A
// replay for an already-free user only keeps the mirror terminal.
func (d *Dispatcher) handleSubscriptionDeleted(ctx context.Context, raw json.RawMessage, eventAt time.Time) error {
	var sub subscriptionPayload
	if err := json.Unmarshal(raw, &sub); err != nil {
		log.Warnf("billing: malformed subscription payload, skipping: %v", err)
		return nil
	}
	if sub.ID == "" {
		log.Warnf("billing: subscription event without id, skipping")
		return nil
	}

	nominalTier, userID, ok := d.attributeSubscription(sub)
	if !ok {
		log.Warnf("billing: subscription %s was never attributed to a user, skipping", sub.ID)
		return nil
	}

	endedAt := epochToTime(sub.EndedAt)
	if endedAt == nil {
		endedAt = &eventAt
	}
	upsert := upsertFromPayload(nominalTier, models.SubscriptionStatusCanceled, sub, string(raw))
	upsert.EndedAt = endedAt

	_, err := d.reconciler.Reconcile(ctx, ReconcileInput{
		UserID:             userID,
		NewTier:            entitlements.TierFree,
		ExpiresAt:          nil,
		Subscription:       upsert,
		LinkSubscriptionID: sub.ID,
		ClearLink:          true,
		Canceled:           true,
		EventAt:            eventAt,
	})
	return err
}

// handleInvoicePaymentFailed marks the mirror past_due. It never downgrades
// by itself; the grace period ends with the next subscription update or the
// expiry sweep.
func (d *Dispatcher) handleInvoicePaymentFailed(_ context.Context, raw json.RawMessage) error {
	var inv invoicePayload
	if err := json.Unmarshal(raw, &inv); err != nil {
		log.Warnf("billing: malformed invoice payload, skipping: %v", err)
		return nil
	}
	if inv.Subscription == "" {
		log.Warnf("billing: payment_failed invoice without subscription id, skipping")
		return nil
	}
	mirror, err := d.subs.GetByProviderID(inv.Subscription)
	if err != nil {
		log.Warnf("billing: payment_failed for unknown subscription %s, skipping", inv.Subscription)
		return nil
	}
	if mirror.Terminal() {
		log.Infof("billing: payment_failed for already canceled subscription %s, skipping", inv.Subscription)
		return nil
	}

	log.Infof("billing: subscription %s entered past_due", inv.Subscription)
	return d.subs.UpdateStatus(inv.Subscription, models.SubscriptionStatusPastDue)
}

// attributeSubscription resolves the nominal tier and owning user of a
// subscription event: the mirror row if known, otherwise adoptable through
// metadata plus the price mapping.
func (d *Dispatcher) attributeSubscription(sub subscriptionPayload) (entitlements.Tier, uint, bool) {
	if mirror, err := d.subs.GetByProviderID(sub.ID); err == nil && mirror != nil {
		tier := entitlements.ParseTier(mirror.Tier)
		if priceID := firstPriceID(sub); priceID != "" {
			if mapped, ok := entitlements.TierForPriceID(priceID); ok {
				tier = mapped
			}
		}
		return tier, mirror.UserID, true
	}

	userID, ok := userIDFromMetadata(sub.Metadata)
	if !ok {
		return entitlements.TierFree, 0, false
	}
	if raw, ok := sub.Metadata["tier"]; ok && raw != "" {
		return entitlements.ParseTier(raw), userID, true
	}
	if mapped, ok := entitlements.TierForPriceID(firstPriceID(sub)); ok {
		return mapped, userID, true
	}
	return entitlements.TierFree, 0, false
}

func upsertFromProvider(tier entitlements.Tier, sub *ProviderSubscription, rawJSON string) *SubscriptionUpsert {
	return &SubscriptionUpsert{
		ProviderSubscriptionID: sub.ID,
		Tier:                   tier,
		Status:                 normalizeStatus(sub.Status),
		ProviderPriceID:        sub.PriceID,
		CurrentPeriodStart:     sub.CurrentPeriodStart,
		CurrentPeriodEnd:       sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		CanceledAt:             sub.CanceledAt,
		EndedAt:                sub.EndedAt,
		TrialStart:             sub.TrialStart,
		TrialEnd:               sub.TrialEnd,
		RawPayloadJSON:         rawJSON,
	}
}

func upsertFromPayload(tier entitlements.Tier, status string, sub subscriptionPayload, rawJSON string) *SubscriptionUpsert {
	return &SubscriptionUpsert{
		ProviderSubscriptionID: sub.ID,
		Tier:                   tier,
		Status:                 status,
		ProviderPriceID:        firstPriceID(sub),
		CurrentPeriodStart:     epochToTime(sub.CurrentPeriodStart),
		CurrentPeriodEnd:       epochToTime(sub.CurrentPeriodEnd),
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		CanceledAt:             epochToTime(sub.CanceledAt),
		TrialStart:             epochToTime(sub.TrialStart),
		TrialEnd:               epochToTime(sub.TrialEnd),
		RawPayloadJSON:         rawJSON,
	}
}

// normalizeStatus maps provider statuses onto the four the mirror stores.
func normalizeStatus(status string) string {
	switch status {
	case models.SubscriptionStatusTrialing, models.SubscriptionStatusActive,
		models.SubscriptionStatusPastDue, models.SubscriptionStatusCanceled:
		return status
	case "incomplete_expired":
		return models.SubscriptionStatusCanceled
	default:
		// incomplete, unpaid, paused: not entitling, not terminal.
		return models.SubscriptionStatusPastDue
	}
}

func firstPriceID(sub subscriptionPayload) string {
	if len(sub.Items.Data) == 0 {
		return ""
	}
	return sub.Items.Data[0].Price.ID
}

func userIDFromMetadata(metadata map[string]string) (uint, bool) {
	raw, ok := metadata["userId"]
	if !ok || raw == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
