package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Eziox-Development/eziox-web-sub001/app/repository"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/usercontext"
)

// HandleListNotifications pages the authenticated user's notifications,
// newest first.
func HandleListNotifications(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	repo := repository.GetGlobalFactory().GetNotificationRepository()
	notifications, err := repo.ListByUser(userCtx.UserID, offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load notifications"})
	}

	items := make([]fiber.Map, 0, len(notifications))
	for _, n := range notifications {
		items = append(items, fiber.Map{
			"id":            n.ID,
			"kind":          n.Kind,
			"content":       n.Content,
			"tier":          n.Tier,
			"previous_tier": n.PreviousTier,
			"expires_at":    formatTimePtr(n.ExpiresAt),
			"is_read":       n.IsRead,
			"created_at":    n.CreatedAt.UTC(),
		})
	}
	return c.JSON(fiber.Map{"notifications": items})
}

// HandleUnreadNotificationCount returns the unread badge count.
func HandleUnreadNotificationCount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	count, err := repository.GetGlobalFactory().GetNotificationRepository().CountUnread(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to count notifications"})
	}
	return c.JSON(fiber.Map{"unread": count})
}

// HandleMarkNotificationRead marks one of the user's notifications read.
func HandleMarkNotificationRead(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	notificationID, err := userIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid notification id"})
	}

	repo := repository.GetGlobalFactory().GetNotificationRepository()
	if err := repo.MarkRead(userCtx.UserID, notificationID); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Notification not found"})
	}
	return c.JSON(fiber.Map{"id": notificationID, "is_read": true})
}
