package repository

import (
	"time"

	"github.com/Eziox-Development/eziox-web-sub001/app/models"
	"gorm.io/gorm"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail retrieves a user by their email address
func (r *userRepository) GetByEmail(email string) (*models.User, error) {
	var user models.User
	err := r.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByUsername retrieves a user by their profile handle
func (r *userRepository) GetByUsername(username string) (*models.User, error) {
	var user models.User
	err := r.db.Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByActivationToken retrieves a user by their activation token
func (r *userRepository) GetByActivationToken(token string) (*models.User, error) {
	var user models.User
	err := r.db.Where("activation_token = ?", token).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Update updates an existing user in the database
func (r *userRepository) Update(user *models.User) error {
	return r.db.Save(user).Error
}

// UpdateTier writes tier, expiry and billing linkage in a single statement.
func (r *userRepository) UpdateTier(userID uint, tier string, expiresAt *time.Time, customerID, subscriptionID *string) error {
	updates := map[string]interface{}{
		"tier":                    tier,
		"tier_expires_at":         expiresAt,
		"billing_subscription_id": subscriptionID,
	}
	if customerID != nil {
		updates["billing_customer_id"] = customerID
	}
	return r.db.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error
}

// SetBillingCustomerID persists the provider customer identity. Written at
// most once along the happy path; repeated writes with the same id are
// harmless.
func (r *userRepository) SetBillingCustomerID(userID uint, customerID string) error {
	return r.db.Model(&models.User{}).Where("id = ?", userID).
		Update("billing_customer_id", customerID).Error
}

// ListByTier returns a page of users on the given tier; empty tier lists all.
func (r *userRepository) ListByTier(tier string, limit, offset int) ([]models.User, error) {
	var users []models.User
	q := r.db.Order("id ASC").Limit(limit).Offset(offset)
	if tier != "" {
		q = q.Where("tier = ?", tier)
	}
	err := q.Find(&users).Error
	return users, err
}

// CountByTier counts users on the given tier; empty tier counts all.
func (r *userRepository) CountByTier(tier string) (int64, error) {
	var count int64
	q := r.db.Model(&models.User{})
	if tier != "" {
		q = q.Where("tier = ?", tier)
	}
	err := q.Count(&count).Error
	return count, err
}

// ListTierExpiredBefore returns paid users whose tier expiry has passed.
// Lifetime users carry a null expiry and are never returned.
func (r *userRepository) ListTierExpiredBefore(t time.Time, limit int) ([]models.User, error) {
	var users []models.User
	err := r.db.
		Where("tier <> ? AND tier_expires_at IS NOT NULL AND tier_expires_at < ?", "free", t).
		Order("tier_expires_at ASC").
		Limit(limit).
		Find(&users).Error
	return users, err
}

// List returns users with pagination
func (r *userRepository) List(offset, limit int) ([]models.User, error) {
	var users []models.User
	err := r.db.Offset(offset).Limit(limit).Find(&users).Error
	return users, err
}

// Count returns the total number of users
func (r *userRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.User{}).Count(&count).Error
	return count, err
}
