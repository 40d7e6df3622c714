package router

import (
	"github.com/Eziox-Development/eziox-web-sub001/app/controllers"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/constants"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/middleware"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/session"

	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	h.registerPublicRoutes(app)
}

// registerPublicRoutes wires everything reachable without a session: auth,
// account activation and the provider webhook. The webhook must never sit
// behind auth or a body-mutating middleware; signature verification needs
// the raw payload.
func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	app.Post(constants.RegisterRoute, controllers.HandleAuthRegister)
	app.Get(constants.ActivateRoute, controllers.HandleAuthActivate)
	app.Post(constants.LoginRoute, controllers.HandleAuthLogin)
	app.Post(constants.LogoutRoute, controllers.HandleAuthLogout)

	app.Post(constants.BillingWebhookRoute, controllers.HandleBillingWebhook)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
