package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Eziox-Development/eziox-web-sub001/app/repository"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/entitlements"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/usercontext"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/utils"
)

// HandleGetUserAccount returns the authenticated user's account: profile,
// tier, the feature limits that tier unlocks, and the held badges.
func HandleGetUserAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	factory := repository.GetGlobalFactory()
	user, err := factory.GetUserRepository().GetByID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User not found"})
	}

	tier := entitlements.ParseTier(user.Tier)
	cfg := entitlements.Registry()[tier]

	badges, err := factory.GetBadgeRepository().ListByUser(user.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load badges"})
	}
	badgeNames := make([]string, 0, len(badges))
	for _, b := range badges {
		badgeNames = append(badgeNames, b.Name)
	}

	avatarURL := user.AvatarURL
	if avatarURL == "" {
		avatarURL = utils.GetGravatarURL(user.Email, 200)
	}

	return c.JSON(fiber.Map{
		"id":              user.ID,
		"username":        user.Username,
		"display_name":    user.DisplayName,
		"email":           user.Email,
		"bio":             user.Bio,
		"avatar_url":      avatarURL,
		"is_admin":        user.IsAdmin(),
		"created_at":      user.CreatedAt.UTC().Format(time.RFC3339),
		"last_login_at":   formatTimePtr(user.LastLoginAt),
		"tier":            tier,
		"tier_expires_at": formatTimePtr(user.TierExpiresAt),
		"limits":          cfg.Limits,
		"badges":          badgeNames,
	})
}
