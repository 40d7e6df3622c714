package constants

// Static route constants
const (
	RegisterRoute = "/register"
	ActivateRoute = "/activate"
	LoginRoute    = "/login"
	LogoutRoute   = "/logout"

	// Provider callback. Must stay outside auth middleware; signature
	// verification needs the unmodified raw body.
	BillingWebhookRoute = "/webhooks/billing"
)
