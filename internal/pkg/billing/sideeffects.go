package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/Eziox-Development/eziox-web-sub001/app/models"
	"github.com/Eziox-Development/eziox-web-sub001/app/repository"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/entitlements"
	"github.com/gofiber/fiber/v2/log"
)

// Mailer sends transactional email. The SMTP implementation lives in
// internal/pkg/mail; tests substitute a fake.
type Mailer interface {
	SendMail(to, subject, body string) error
}

// Transition describes a reconciled tier change for the pipeline.
type Transition struct {
	UserID       uint
	PreviousTier entitlements.Tier
	NewTier      entitlements.Tier
	ExpiresAt    *time.Time
	AdminGranted bool
	Canceled     bool
	Expired      bool
	Email        string
	Username     string
}

// SideEffects runs after every reconciliation: badge assignment,
// notification emission and best-effort email, keyed off the new tier. It is
// never invoked independently of the reconciler.
type SideEffects struct {
	badges        repository.BadgeRepository
	notifications repository.NotificationRepository
	mailer        Mailer
}

// NewSideEffects creates the pipeline over its repositories and mailer.
func NewSideEffects(badges repository.BadgeRepository, notifications repository.NotificationRepository, mailer Mailer) *SideEffects {
	return &SideEffects{badges: badges, notifications: notifications, mailer: mailer}
}

// Apply runs the three steps. Badge and notification failures are logged and
// reported through logs only; the tier write already happened and must not
// be rolled back by a side effect. Email is fire-and-forget by contract.
func (s *SideEffects) Apply(_ context.Context, t Transition) {
	s.applyBadges(t)

	kind := classifyTransition(t)
	if err := s.notifications.Create(&models.Notification{
		UserID:       t.UserID,
		Kind:         kind,
		Content:      notificationContent(kind, t),
		Tier:         string(t.NewTier),
		PreviousTier: string(t.PreviousTier),
		ExpiresAt:    t.ExpiresAt,
		AdminGranted: t.AdminGranted,
	}); err != nil {
		log.Errorf("billing: notification for user %d failed: %v", t.UserID, err)
	}

	s.sendEmail(kind, t)
}

// applyBadges derives the badge set purely from the new tier: every tier
// badge is removed and the matching one added in the same write. Nothing
// ever accumulates.
func (s *SideEffects) applyBadges(t Transition) {
	name, _ := entitlements.BadgeForTier(t.NewTier)
	if err := s.badges.ReplaceTierBadges(t.UserID, entitlements.TierBadges, name); err != nil {
		log.Errorf("billing: badge update for user %d failed: %v", t.UserID, err)
	}
}

// classifyTransition picks the notification kind by comparing tier ranks.
func classifyTransition(t Transition) string {
	switch {
	case t.Expired:
		return models.NotificationTierExpired
	case t.NewTier.Rank() > t.PreviousTier.Rank():
		if t.AdminGranted {
			return models.NotificationTierGranted
		}
		return models.NotificationTierUpgraded
	case t.NewTier.Rank() < t.PreviousTier.Rank():
		if t.Canceled {
			return models.NotificationTierCanceled
		}
		return models.NotificationTierDowngraded
	case t.Canceled:
		return models.NotificationTierCanceled
	case t.AdminGranted:
		return models.NotificationTierGranted
	default:
		return models.NotificationTierUpgraded
	}
}

func notificationContent(kind string, t Transition) string {
	display := string(t.NewTier)
	if cfg, ok := entitlements.Registry()[t.NewTier]; ok {
		display = cfg.DisplayName
	}
	switch kind {
	case models.NotificationTierGranted:
		return fmt.Sprintf("You have been granted the %s tier.", display)
	case models.NotificationTierUpgraded:
		return fmt.Sprintf("Your profile was upgraded to %s.", display)
	case models.NotificationTierCanceled:
		return "Your subscription was canceled. Paid features stay active until the end of the billing period."
	case models.NotificationTierExpired:
		return "Your subscription expired and your profile was moved to the Free tier."
	default:
		return fmt.Sprintf("Your profile was moved to %s.", display)
	}
}

// sendEmail is best-effort: upgrades and cancellations get a mail, failures
// are logged and never propagate.
func (s *SideEffects) sendEmail(kind string, t Transition) {
	if s.mailer == nil || t.Email == "" {
		return
	}

	var subject, body string
	switch kind {
	case models.NotificationTierUpgraded, models.NotificationTierGranted:
		display := string(t.NewTier)
		if cfg, ok := entitlements.Registry()[t.NewTier]; ok {
			display = cfg.DisplayName
		}
		subject = fmt.Sprintf("Welcome to Eziox %s", display)
		body = fmt.Sprintf("<p>Hi %s,</p><p>your account is now on the <strong>%s</strong> tier. Enjoy!</p>", t.Username, display)
	case models.NotificationTierCanceled:
		subject = "Your Eziox subscription was canceled"
		body = fmt.Sprintf("<p>Hi %s,</p><p>your subscription was canceled. Paid features remain active until the end of the paid period.</p>", t.Username)
	default:
		return
	}

	if err := s.mailer.SendMail(t.Email, subject, body); err != nil {
		log.Errorf("billing: mail to user %d failed: %v", t.UserID, err)
	}
}
