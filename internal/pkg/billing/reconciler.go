package billing

import (
	"context"
	"sync"
	"time"

	"github.com/Eziox-Development/eziox-web-sub001/app/models"
	"github.com/Eziox-Development/eziox-web-sub001/app/repository"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/entitlements"
	"github.com/gofiber/fiber/v2/log"
)

// Reconciler is the single write authority for a user's tier, expiry and
// subscription linkage. Webhook handlers and the admin override both call
// Reconcile; nothing else writes these fields.
type Reconciler struct {
	users   repository.UserRepository
	subs    repository.SubscriptionRepository
	effects *SideEffects

	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

// NewReconciler creates a reconciler over the given repositories and
// side-effect pipeline.
func NewReconciler(users repository.UserRepository, subs repository.SubscriptionRepository, effects *SideEffects) *Reconciler {
	return &Reconciler{
		users:   users,
		subs:    subs,
		effects: effects,
		locks:   make(map[uint]*sync.Mutex),
	}
}

// userLock returns the per-user mutex, creating it on first use. Webhook
// deliveries for the same user may arrive concurrently and out of order;
// serializing per user keeps an older duplicate from clobbering newer state.
func (r *Reconciler) userLock(userID uint) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[userID] = l
	}
	return l
}

// Reconcile applies a confirmed tier state to the user. Steps, each
// individually retryable: upsert the mirror row, write the user's tier
// fields, run the side-effect pipeline.
func (r *Reconciler) Reconcile(ctx context.Context, in ReconcileInput) (*ReconcileResult, error) {
	lock := r.userLock(in.UserID)
	lock.Lock()
	defer lock.Unlock()

	user, err := r.users.GetByID(in.UserID)
	if err != nil {
		return nil, ErrNotFound
	}

	cancelNewlyFlagged := in.Canceled
	if in.Subscription != nil {
		existing, err := r.subs.GetByProviderID(in.Subscription.ProviderSubscriptionID)
		if err == nil && existing != nil {
			// Monotonicity guard: ignore events older than the stored state.
			if !in.EventAt.IsZero() && existing.ProviderEventAt != nil && in.EventAt.Before(*existing.ProviderEventAt) {
				log.Infof("billing: ignoring stale reconciliation for subscription %s (event %s < stored %s)",
					in.Subscription.ProviderSubscriptionID, in.EventAt, *existing.ProviderEventAt)
				cur := entitlements.ParseTier(user.Tier)
				return &ReconcileResult{PreviousTier: cur, NewTier: cur, Stale: true}, nil
			}
			// A replayed cancellation is not news: the flag was already
			// set, or the row already reached its terminal state.
			if existing.Terminal() || (existing.CancelAtPeriodEnd && in.Subscription.CancelAtPeriodEnd) {
				cancelNewlyFlagged = false
			}
			// States refreshed from provider fetches carry no payload;
			// keep the one the last webhook stored.
			if in.Subscription.RawPayloadJSON == "" {
				in.Subscription.RawPayloadJSON = existing.RawPayloadJSON
			}
		}

		if err := r.subs.Upsert(mirrorRow(in)); err != nil {
			return nil, err
		}
	}

	previousTier := entitlements.ParseTier(user.Tier)
	previousExpiry := user.TierExpiresAt

	// The tier write only applies when this reconciliation concerns the
	// currently-linked subscription, or no subscription is linked yet.
	linked := user.LinkedSubscriptionID()
	if in.LinkSubscriptionID != "" && linked != "" && linked != in.LinkSubscriptionID {
		log.Warnf("billing: reconciliation for subscription %s skipped tier write, user %d is linked to %s",
			in.LinkSubscriptionID, in.UserID, linked)
		return &ReconcileResult{PreviousTier: previousTier, NewTier: previousTier}, nil
	}

	tierChanged := previousTier != in.NewTier
	expiryChanged := !timePtrEqual(previousExpiry, in.ExpiresAt)

	subscriptionID := user.BillingSubscriptionID
	if in.ClearLink {
		subscriptionID = nil
	} else if in.LinkSubscriptionID != "" {
		id := in.LinkSubscriptionID
		subscriptionID = &id
	}
	var customerID *string
	if in.CustomerID != "" {
		customerID = &in.CustomerID
	}

	if err := r.users.UpdateTier(in.UserID, string(in.NewTier), in.ExpiresAt, customerID, subscriptionID); err != nil {
		return nil, err
	}

	result := &ReconcileResult{
		PreviousTier: previousTier,
		NewTier:      in.NewTier,
		TierChanged:  tierChanged,
	}

	// No-op guard: a reconciliation that changes nothing user-visible still
	// did its mirror bookkeeping above, but must not emit a duplicate
	// notification or email. Period renewals move the expiry without being a
	// tier transition; only an admin extension of the same tier is news.
	if !tierChanged && !cancelNewlyFlagged && !(in.AdminGranted && expiryChanged) {
		return result, nil
	}

	r.effects.Apply(ctx, Transition{
		UserID:       in.UserID,
		PreviousTier: previousTier,
		NewTier:      in.NewTier,
		ExpiresAt:    in.ExpiresAt,
		AdminGranted: in.AdminGranted,
		Canceled:     in.Canceled,
		Expired:      in.Expired,
		Email:        user.Email,
		Username:     user.Username,
	})
	result.Notified = true
	return result, nil
}

// mirrorRow adapts the reconcile input to the stored mirror shape. The
// lifetime sentinel period end is applied here and only here.
func mirrorRow(in ReconcileInput) *models.Subscription {
	s := in.Subscription
	row := &models.Subscription{
		UserID:                 in.UserID,
		ProviderSubscriptionID: s.ProviderSubscriptionID,
		Tier:                   string(s.Tier),
		Status:                 s.Status,
		ProviderPriceID:        s.ProviderPriceID,
		CurrentPeriodStart:     s.CurrentPeriodStart,
		CurrentPeriodEnd:       s.CurrentPeriodEnd,
		CancelAtPeriodEnd:      s.CancelAtPeriodEnd,
		CanceledAt:             s.CanceledAt,
		EndedAt:                s.EndedAt,
		TrialStart:             s.TrialStart,
		TrialEnd:               s.TrialEnd,
		RawPayloadJSON:         s.RawPayloadJSON,
	}
	if s.Tier == entitlements.TierLifetime && row.CurrentPeriodEnd == nil {
		end := models.LifetimePeriodEnd
		row.CurrentPeriodEnd = &end
	}
	if !in.EventAt.IsZero() {
		at := in.EventAt
		row.ProviderEventAt = &at
	}
	return row
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
