package repository

import (
	"github.com/Eziox-Development/eziox-web-sub001/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// subscriptionRepository implements the SubscriptionRepository interface
type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// GetByProviderID retrieves a mirror row by the provider subscription id
func (r *subscriptionRepository) GetByProviderID(providerSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("provider_subscription_id = ?", providerSubscriptionID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Upsert inserts or updates the mirror row keyed by the provider
// subscription id. The natural key is never regenerated.
func (r *subscriptionRepository) Upsert(sub *models.Subscription) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider_subscription_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"tier",
			"status",
			"provider_price_id",
			"current_period_start",
			"current_period_end",
			"cancel_at_period_end",
			"canceled_at",
			"ended_at",
			"trial_start",
			"trial_end",
			"provider_event_at",
			"raw_payload_json",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("provider_subscription_id = ?", sub.ProviderSubscriptionID).
		First(sub).Error
}

// CurrentByUser returns the user's most recent non-canceled mirror row.
// At most one such row exists per user.
func (r *subscriptionRepository) CurrentByUser(userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.
		Where("user_id = ? AND status <> ?", userID, models.SubscriptionStatusCanceled).
		Order("updated_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// UpdateStatus writes only the status column of a mirror row
func (r *subscriptionRepository) UpdateStatus(providerSubscriptionID, status string) error {
	return r.db.Model(&models.Subscription{}).
		Where("provider_subscription_id = ?", providerSubscriptionID).
		Update("status", status).Error
}

// SetCancelAtPeriodEnd flips the local cancel-at-period-end flag
func (r *subscriptionRepository) SetCancelAtPeriodEnd(providerSubscriptionID string, cancel bool) error {
	return r.db.Model(&models.Subscription{}).
		Where("provider_subscription_id = ?", providerSubscriptionID).
		Update("cancel_at_period_end", cancel).Error
}
