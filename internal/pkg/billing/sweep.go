package billing

import (
	"context"
	"sync"
	"time"

	"github.com/Eziox-Development/eziox-web-sub001/app/repository"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/entitlements"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
)

const sweepBatchSize = 200

// Sweeper is the safety net behind webhook delivery: it periodically
// downgrades users whose paid tier expired without the provider telling us.
// Lifetime grants carry no expiry and are never touched.
type Sweeper struct {
	users      repository.UserRepository
	reconciler *Reconciler
	interval   time.Duration

	ticker  *time.Ticker
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewSweeper creates a sweeper. The interval comes from
// BILLING_SWEEP_INTERVAL_MINUTES, defaulting to hourly.
func NewSweeper(users repository.UserRepository, reconciler *Reconciler) *Sweeper {
	interval := 60 * time.Minute
	if v := env.GetEnvAsInt("BILLING_SWEEP_INTERVAL_MINUTES", 60); v > 0 {
		interval = time.Duration(v) * time.Minute
	}
	return &Sweeper{
		users:      users,
		reconciler: reconciler,
		interval:   interval,
	}
}

// Start launches the background sweep loop. Safe to call more than once.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.stopCh = make(chan struct{})
	s.ticker = time.NewTicker(s.interval)
	s.running = true

	s.wg.Add(1)
	go s.worker()
	log.Infof("[Billing Sweeper] Started (interval: %s)", s.interval)
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.ticker.Stop()
	close(s.stopCh)
	s.running = false
	s.wg.Wait()
	log.Info("[Billing Sweeper] Stopped")
}

func (s *Sweeper) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			log.Info("[Billing Sweeper] Worker stopping")
			return
		case <-s.ticker.C:
			if n, err := s.SweepOnce(context.Background()); err != nil {
				log.Errorf("[Billing Sweeper] Sweep failed: %v", err)
			} else if n > 0 {
				log.Infof("[Billing Sweeper] Downgraded %d expired users", n)
			}
		}
	}
}

// SweepOnce downgrades every user whose tier expiry has passed and returns
// how many were downgraded. Each user goes through the reconciler, so the
// usual notifications and badge removal apply.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	expired, err := s.users.ListTierExpiredBefore(time.Now().UTC(), sweepBatchSize)
	if err != nil {
		return 0, err
	}

	downgraded := 0
	for _, user := range expired {
		if entitlements.ParseTier(user.Tier) == entitlements.TierFree {
			continue
		}
		result, err := s.reconciler.Reconcile(ctx, ReconcileInput{
			UserID:    user.ID,
			NewTier:   entitlements.TierFree,
			ExpiresAt: nil,
			ClearLink: true,
			Expired:   true,
			EventAt:   time.Now().UTC(),
		})
		if err != nil {
			log.Errorf("[Billing Sweeper] Could not downgrade user %d: %v", user.ID, err)
			continue
		}
		if result.TierChanged {
			downgraded++
		}
	}
	return downgraded, nil
}
