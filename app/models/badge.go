package models

import "time"

// Badge is a single string identifier attached to a user's public profile.
// Tier badges are owned by the billing side-effect pipeline; other badges
// (staff, verified, ...) are assigned elsewhere and never touched by it.
type Badge struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:ux_badges_user_name,priority:1" json:"user_id"`
	Name      string    `gorm:"type:varchar(50);not null;uniqueIndex:ux_badges_user_name,priority:2" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
