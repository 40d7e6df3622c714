package repository

import (
	"github.com/Eziox-Development/eziox-web-sub001/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// badgeRepository implements the BadgeRepository interface
type badgeRepository struct {
	db *gorm.DB
}

// NewBadgeRepository creates a new badge repository instance
func NewBadgeRepository(db *gorm.DB) BadgeRepository {
	return &badgeRepository{db: db}
}

// ReplaceTierBadges removes every badge in tierBadges the user holds and, if
// name is non-empty, adds name in the same transaction. Stale tier badges
// can therefore never survive a tier change.
func (r *badgeRepository) ReplaceTierBadges(userID uint, tierBadges []string, name string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("user_id = ? AND name IN ?", userID, tierBadges).
			Delete(&models.Badge{}).Error; err != nil {
			return err
		}
		if name == "" {
			return nil
		}
		badge := &models.Badge{UserID: userID, Name: name}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "name"}},
			DoNothing: true,
		}).Create(badge).Error
	})
}

// ListByUser returns every badge attached to a user
func (r *badgeRepository) ListByUser(userID uint) ([]models.Badge, error) {
	var badges []models.Badge
	err := r.db.Where("user_id = ?", userID).Order("name ASC").Find(&badges).Error
	return badges, err
}
