package repository

import (
	"time"

	"github.com/Eziox-Development/eziox-web-sub001/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByUsername(username string) (*models.User, error)
	GetByActivationToken(token string) (*models.User, error)
	Update(user *models.User) error
	// UpdateTier writes the reconciler-owned entitlement columns in one
	// statement. No other code path may touch these fields.
	UpdateTier(userID uint, tier string, expiresAt *time.Time, customerID, subscriptionID *string) error
	SetBillingCustomerID(userID uint, customerID string) error
	ListByTier(tier string, limit, offset int) ([]models.User, error)
	CountByTier(tier string) (int64, error)
	ListTierExpiredBefore(t time.Time, limit int) ([]models.User, error)
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
}

// SubscriptionRepository defines operations on the local subscription mirror
type SubscriptionRepository interface {
	GetByProviderID(providerSubscriptionID string) (*models.Subscription, error)
	// Upsert inserts the row on first sight of the provider subscription id
	// and updates it in place afterwards.
	Upsert(sub *models.Subscription) error
	CurrentByUser(userID uint) (*models.Subscription, error)
	UpdateStatus(providerSubscriptionID, status string) error
	SetCancelAtPeriodEnd(providerSubscriptionID string, cancel bool) error
}

// BadgeRepository defines operations on profile badges
type BadgeRepository interface {
	// ReplaceTierBadges removes every tier badge the user holds and adds the
	// given one in the same write. An empty name only removes.
	ReplaceTierBadges(userID uint, tierBadges []string, name string) error
	ListByUser(userID uint) ([]models.Badge, error)
}

// NotificationRepository defines operations on user notifications
type NotificationRepository interface {
	Create(n *models.Notification) error
	ListByUser(userID uint, offset, limit int) ([]models.Notification, error)
	CountUnread(userID uint) (int64, error)
	MarkRead(userID, notificationID uint) error
}

// WebhookEventRepository stores provider webhook events for deduplication
type WebhookEventRepository interface {
	// CreateIfNotExists returns created=false when the provider event id was
	// already recorded, making replays detectable.
	CreateIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkProcessed(id uint, processingError string) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	User         UserRepository
	Subscription SubscriptionRepository
	Badge        BadgeRepository
	Notification NotificationRepository
	WebhookEvent WebhookEventRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		Subscription: NewSubscriptionRepository(db),
		Badge:        NewBadgeRepository(db),
		Notification: NewNotificationRepository(db),
		WebhookEvent: NewWebhookEventRepository(db),
	}
}
