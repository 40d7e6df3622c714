package controllers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/billing"
)

type setTierRequest struct {
	Tier      string `json:"tier"`
	ExpiresAt string `json:"expires_at"`
}

// HandleAdminSetUserTier grants or revokes a tier without touching the
// billing provider. Comped accounts, support fixes and takedowns all go
// through here; the reconciler treats it like any other confirmed state.
func HandleAdminSetUserTier(c *fiber.Ctx) error {
	userID, err := userIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid user id"})
	}

	var req setTierRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}
	if req.Tier == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "tier is required"})
	}

	var expiresAt *time.Time
	if req.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "expires_at must be RFC3339"})
		}
		expiresAt = &t
	}

	result, err := billing.GetService().SetUserTier(c.Context(), userID, req.Tier, expiresAt)
	if err != nil {
		return billingErrorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"user_id":       userID,
		"previous_tier": result.PreviousTier,
		"tier":          result.NewTier,
		"tier_changed":  result.TierChanged,
	})
}

type addCreditRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Description string `json:"description"`
}

// HandleAdminAddCredit posts a balance adjustment on the user's billing
// customer. Negative amounts credit the customer against future invoices.
func HandleAdminAddCredit(c *fiber.Ctx) error {
	userID, err := userIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid user id"})
	}

	var req addCreditRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	if err := billing.GetService().AddCustomerCredit(c.Context(), userID, req.AmountCents, req.Description); err != nil {
		return billingErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"user_id": userID, "amount_cents": req.AmountCents})
}

// HandleAdminGetBalance reads the user's provider-side balance in cents.
func HandleAdminGetBalance(c *fiber.Ctx) error {
	userID, err := userIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid user id"})
	}

	balance, err := billing.GetService().GetCustomerBalance(c.Context(), userID)
	if err != nil {
		return billingErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"user_id": userID, "balance_cents": balance})
}

// HandleAdminListUsersByTier pages the users holding a tier; without a tier
// query it pages all users.
func HandleAdminListUsersByTier(c *fiber.Ctx) error {
	tier := c.Query("tier")
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	users, total, err := billing.GetService().ListUsersByTier(tier, limit, offset)
	if err != nil {
		return billingErrorResponse(c, err)
	}

	items := make([]fiber.Map, 0, len(users))
	for _, u := range users {
		items = append(items, fiber.Map{
			"id":              u.ID,
			"username":        u.Username,
			"email":           u.Email,
			"tier":            u.Tier,
			"tier_expires_at": formatTimePtr(u.TierExpiresAt),
		})
	}
	return c.JSON(fiber.Map{"total": total, "users": items})
}

func userIDParam(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fiber.ErrBadRequest
	}
	return uint(id), nil
}
