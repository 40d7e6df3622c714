package billing

import (
	"sync"

	"github.com/Eziox-Development/eziox-web-sub001/app/repository"
)

var (
	globalService *Service
	globalSweeper *Sweeper
	engineOnce    sync.Once
)

// Initialize wires the billing engine once: side-effect pipeline,
// reconciler, webhook dispatcher, service and expiry sweeper. Called from
// the application entrypoint after the repositories exist.
func Initialize(repos *repository.Repositories, provider Provider, mailer Mailer) {
	engineOnce.Do(func() {
		effects := NewSideEffects(repos.Badge, repos.Notification, mailer)
		reconciler := NewReconciler(repos.User, repos.Subscription, effects)
		dispatcher := NewDispatcher(repos.Subscription, reconciler, provider)
		globalService = NewService(repos, provider, reconciler, dispatcher)
		globalSweeper = NewSweeper(repos.User, reconciler)
	})
}

// GetService returns the global billing service.
func GetService() *Service {
	if globalService == nil {
		panic("Billing engine not initialized. Call Initialize first.")
	}
	return globalService
}

// GetSweeper returns the global expiry sweeper.
func GetSweeper() *Sweeper {
	if globalSweeper == nil {
		panic("Billing engine not initialized. Call Initialize first.")
	}
	return globalSweeper
}
