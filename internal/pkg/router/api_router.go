package router

import (
	"github.com/Eziox-Development/eziox-web-sub001/app/controllers"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	// Public tier table, served to the pricing page without a session.
	v1.Get("/billing/tiers", controllers.HandleGetTierConfig)

	// Authenticated user surface.
	user := v1.Group("/user", middleware.RequireAPISessionAuth)
	user.Get("/account", controllers.HandleGetUserAccount)
	user.Get("/billing/subscription", controllers.HandleGetCurrentSubscription)
	user.Post("/billing/checkout", controllers.HandleCreateCheckoutSession)
	user.Post("/billing/portal", controllers.HandleCreatePortalSession)
	user.Post("/billing/cancel", controllers.HandleCancelSubscription)
	user.Post("/billing/resume", controllers.HandleResumeSubscription)
	user.Get("/notifications", controllers.HandleListNotifications)
	user.Get("/notifications/unread-count", controllers.HandleUnreadNotificationCount)
	user.Post("/notifications/:id/read", controllers.HandleMarkNotificationRead)

	// Admin surface.
	admin := v1.Group("/admin", middleware.RequireAPIAdminAuth)
	admin.Get("/billing/users", controllers.HandleAdminListUsersByTier)
	admin.Put("/users/:id/tier", controllers.HandleAdminSetUserTier)
	admin.Post("/users/:id/credit", controllers.HandleAdminAddCredit)
	admin.Get("/users/:id/balance", controllers.HandleAdminGetBalance)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
