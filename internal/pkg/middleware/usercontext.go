package middleware

import (
	"github.com/Eziox-Development/eziox-web-sub001/app/models"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/database"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/entitlements"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/session"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
)

// UserContextMiddleware sets up the complete user context for every request.
// This centralizes user session handling and eliminates code duplication.
func UserContextMiddleware(c *fiber.Ctx) error {
	anonymous := usercontext.UserContext{IsLoggedIn: false, IsAdmin: false, Tier: string(entitlements.TierFree)}

	store := session.GetSessionStore()
	if store == nil {
		c.Locals("USER_CONTEXT", anonymous)
		return c.Next()
	}

	sess, err := store.Get(c)
	if err != nil {
		c.Locals("USER_CONTEXT", anonymous)
		return c.Next()
	}

	userID, ok := sess.Get(usercontext.KeyUserID).(uint)
	if !ok || userID == 0 {
		c.Locals("USER_CONTEXT", anonymous)
		return c.Next()
	}

	username, _ := sess.Get(usercontext.KeyUsername).(string)
	isAdmin, _ := sess.Get(usercontext.KeyIsAdmin).(bool)

	// Tier with session-first strategy; fall back to the user row.
	tier := session.GetSessionValue(c, usercontext.KeyUserTier)
	if tier == "" {
		tier = string(entitlements.TierFree)
		if db := database.GetDB(); db != nil {
			var user models.User
			if err := db.First(&user, userID).Error; err == nil {
				tier = string(entitlements.ParseTier(user.Tier))
				_ = session.SetSessionValue(c, usercontext.KeyUserTier, tier)
			}
		}
	}

	c.Locals("USER_CONTEXT", usercontext.UserContext{
		UserID:     userID,
		Username:   username,
		IsLoggedIn: true,
		IsAdmin:    isAdmin,
		Tier:       tier,
	})
	return c.Next()
}
