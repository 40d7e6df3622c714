package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/billing"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/entitlements"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/env"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/session"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/usercontext"
)

// HandleGetTierConfig returns the public tier table: names, limits and
// whether billing is configured. No authentication required.
func HandleGetTierConfig(c *fiber.Ctx) error {
	return c.JSON(billing.GetService().GetTierConfig())
}

// HandleGetCurrentSubscription returns the authenticated user's tier, expiry
// and linked subscription state.
func HandleGetCurrentSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	current, err := billing.GetService().GetCurrentSubscription(userCtx.UserID)
	if err != nil {
		return billingErrorResponse(c, err)
	}
	return c.JSON(current)
}

type checkoutRequest struct {
	Tier       string `json:"tier"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

// HandleCreateCheckoutSession starts a hosted checkout for a paid tier and
// returns the redirect URL. The tier itself is only granted by the webhook
// confirming payment.
func HandleCreateCheckoutSession(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}
	if req.Tier == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "tier is required"})
	}

	base := publicBaseURL()
	successURL := req.SuccessURL
	if successURL == "" {
		successURL = base + "/account/billing?checkout=success"
	}
	cancelURL := req.CancelURL
	if cancelURL == "" {
		cancelURL = base + "/account/billing?checkout=canceled"
	}

	url, err := billing.GetService().CreateCheckoutSession(c.Context(), userCtx.UserID, req.Tier, successURL, cancelURL)
	if err != nil {
		return billingErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"url": url})
}

// HandleCreatePortalSession returns a redirect URL into the provider's
// self-service billing portal.
func HandleCreatePortalSession(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	url, err := billing.GetService().CreateBillingPortalSession(c.Context(), userCtx.UserID, publicBaseURL()+"/account/billing")
	if err != nil {
		if errors.Is(err, billing.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "No billing account exists for this user"})
		}
		return billingErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"url": url})
}

// HandleCancelSubscription flags the linked subscription to end at the
// period close. The tier stays active until then.
func HandleCancelSubscription(c *fiber.Ctx) error {
	return handleCancelState(c, true)
}

// HandleResumeSubscription clears a pending cancellation.
func HandleResumeSubscription(c *fiber.Ctx) error {
	return handleCancelState(c, false)
}

func handleCancelState(c *fiber.Ctx, cancel bool) error {
	userCtx := usercontext.GetUserContext(c)

	svc := billing.GetService()
	var (
		current *billing.CurrentSubscription
		err     error
	)
	if cancel {
		current, err = svc.CancelSubscription(c.Context(), userCtx.UserID)
	} else {
		current, err = svc.ResumeSubscription(c.Context(), userCtx.UserID)
	}
	if err != nil {
		if errors.Is(err, billing.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "No active subscription to modify"})
		}
		return billingErrorResponse(c, err)
	}

	refreshSessionTier(c, string(current.Tier))
	return c.JSON(current)
}

// HandleBillingWebhook is the provider callback. The raw body is required
// for signature verification; duplicates answer 200 so the provider stops
// redelivering, handler failures answer 5xx so it retries.
func HandleBillingWebhook(c *fiber.Ctx) error {
	payload := c.BodyRaw()
	signature := c.Get("Stripe-Signature")

	outcome, err := billing.GetService().ProcessWebhook(c.Context(), payload, signature)
	if err != nil {
		if errors.Is(err, billing.ErrValidation) {
			log.Warnf("[Webhook] Rejected delivery: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
		}
		log.Errorf("[Webhook] Handling failed for event %v: %v", outcomeID(outcome), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing_failed"})
	}

	return c.JSON(fiber.Map{"received": true, "duplicate": outcome.Duplicate})
}

func outcomeID(outcome *billing.WebhookOutcome) string {
	if outcome == nil {
		return "unknown"
	}
	return outcome.EventID
}

// billingErrorResponse maps the billing error taxonomy onto HTTP statuses.
func billingErrorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, billing.ErrNotConfigured):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "billing_unavailable", "message": "Billing is not configured"})
	case errors.Is(err, billing.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	case errors.Is(err, billing.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Operation not allowed for this account"})
	case errors.Is(err, billing.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Not found"})
	default:
		log.Errorf("[Billing] Unexpected error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Billing operation failed"})
	}
}

// refreshSessionTier keeps the cached session tier in sync after an
// operation that may have changed it. Best effort; the middleware falls back
// to the user row.
func refreshSessionTier(c *fiber.Ctx, tier string) {
	if tier == "" {
		tier = string(entitlements.TierFree)
	}
	if err := session.SetSessionValue(c, usercontext.KeyUserTier, tier); err != nil {
		log.Debugf("[Billing] Could not refresh session tier: %v", err)
	}
}

func publicBaseURL() string {
	return env.GetEnv("PUBLIC_DOMAIN", "http://localhost:3000")
}

// formatTimePtr renders an optional timestamp for JSON responses.
func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
