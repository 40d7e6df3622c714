package models

import (
	"time"

	"gorm.io/gorm"
)

// Notification kinds emitted on tier transitions.
const (
	NotificationTierUpgraded   = "upgraded"
	NotificationTierDowngraded = "downgraded"
	NotificationTierCanceled   = "canceled"
	NotificationTierExpired    = "tier_expired"
	NotificationTierGranted    = "tier_granted"
)

type Notification struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	UserID       uint           `gorm:"index" json:"user_id"`
	User         User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Kind         string         `gorm:"type:varchar(50);index" json:"kind" validate:"oneof=upgraded downgraded canceled tier_expired tier_granted system"`
	Content      string         `gorm:"type:text" json:"content"`
	Tier         string         `gorm:"type:varchar(20);default:''" json:"tier,omitempty"`
	PreviousTier string         `gorm:"type:varchar(20);default:''" json:"previous_tier,omitempty"`
	ExpiresAt    *time.Time     `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	AdminGranted bool           `gorm:"default:false" json:"admin_granted"`
	IsRead       bool           `gorm:"default:false" json:"is_read"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// MarkAsRead marks a notification as read.
func (n *Notification) MarkAsRead(db *gorm.DB) error {
	n.IsRead = true
	return db.Model(n).Update("is_read", true).Error
}
