package billing

import (
	"context"
	"errors"
	"time"

	"github.com/Eziox-Development/eziox-web-sub001/app/models"
	"github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"
)

type fakeUserRepo struct {
	users   map[uint]*models.User
	tierErr error
}

func newFakeUserRepo(users ...*models.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[uint]*models.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) Create(user *models.User) error {
	if user.ID == 0 {
		user.ID = uint(len(r.users) + 1)
	}
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) GetByID(id uint) (*models.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) GetByEmail(email string) (*models.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUserRepo) GetByUsername(username string) (*models.User, error) {
	for _, u := range r.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUserRepo) GetByActivationToken(token string) (*models.User, error) {
	for _, u := range r.users {
		if u.ActivationToken == token {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUserRepo) Update(user *models.User) error {
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) UpdateTier(userID uint, tier string, expiresAt *time.Time, customerID, subscriptionID *string) error {
	if r.tierErr != nil {
		return r.tierErr
	}
	u, ok := r.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.Tier = tier
	u.TierExpiresAt = expiresAt
	if customerID != nil {
		u.BillingCustomerID = customerID
	}
	u.BillingSubscriptionID = subscriptionID
	return nil
}

func (r *fakeUserRepo) SetBillingCustomerID(userID uint, customerID string) error {
	u, ok := r.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.BillingCustomerID = &customerID
	return nil
}

func (r *fakeUserRepo) ListByTier(tier string, limit, offset int) ([]models.User, error) {
	var out []models.User
	for _, u := range r.users {
		if tier == "" || u.Tier == tier {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (r *fakeUserRepo) CountByTier(tier string) (int64, error) {
	var n int64
	for _, u := range r.users {
		if tier == "" || u.Tier == tier {
			n++
		}
	}
	return n, nil
}

func (r *fakeUserRepo) ListTierExpiredBefore(t time.Time, limit int) ([]models.User, error) {
	var out []models.User
	for _, u := range r.users {
		if u.TierExpiresAt != nil && u.TierExpiresAt.Before(t) {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (r *fakeUserRepo) List(offset, limit int) ([]models.User, error) {
	var out []models.User
	for _, u := range r.users {
		out = append(out, *u)
	}
	return out, nil
}

func (r *fakeUserRepo) Count() (int64, error) {
	return int64(len(r.users)), nil
}

type fakeSubRepo struct {
	subs map[string]*models.Subscription
}

func newFakeSubRepo(subs ...*models.Subscription) *fakeSubRepo {
	r := &fakeSubRepo{subs: make(map[string]*models.Subscription)}
	for _, s := range subs {
		r.subs[s.ProviderSubscriptionID] = s
	}
	return r
}

func (r *fakeSubRepo) GetByProviderID(id string) (*models.Subscription, error) {
	s, ok := r.subs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return s, nil
}

func (r *fakeSubRepo) Upsert(sub *models.Subscription) error {
	if existing, ok := r.subs[sub.ProviderSubscriptionID]; ok {
		sub.ID = existing.ID
	} else {
		sub.ID = uint(len(r.subs) + 1)
	}
	r.subs[sub.ProviderSubscriptionID] = sub
	return nil
}

func (r *fakeSubRepo) CurrentByUser(userID uint) (*models.Subscription, error) {
	for _, s := range r.subs {
		if s.UserID == userID && !s.Terminal() {
			return s, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeSubRepo) UpdateStatus(id, status string) error {
	s, ok := r.subs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	s.Status = status
	return nil
}

func (r *fakeSubRepo) SetCancelAtPeriodEnd(id string, cancel bool) error {
	s, ok := r.subs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	s.CancelAtPeriodEnd = cancel
	return nil
}

type badgeWrite struct {
	userID uint
	name   string
}

type fakeBadgeRepo struct {
	writes []badgeWrite
	held   map[uint][]string
}

func newFakeBadgeRepo() *fakeBadgeRepo {
	return &fakeBadgeRepo{held: make(map[uint][]string)}
}

func (r *fakeBadgeRepo) ReplaceTierBadges(userID uint, tierBadges []string, name string) error {
	r.writes = append(r.writes, badgeWrite{userID: userID, name: name})
	var kept []string
	for _, held := range r.held[userID] {
		managed := false
		for _, t := range tierBadges {
			if held == t {
				managed = true
				break
			}
		}
		if !managed {
			kept = append(kept, held)
		}
	}
	if name != "" {
		kept = append(kept, name)
	}
	r.held[userID] = kept
	return nil
}

func (r *fakeBadgeRepo) ListByUser(userID uint) ([]models.Badge, error) {
	var out []models.Badge
	for _, name := range r.held[userID] {
		out = append(out, models.Badge{UserID: userID, Name: name})
	}
	return out, nil
}

type fakeNotificationRepo struct {
	created []models.Notification
}

func (r *fakeNotificationRepo) Create(n *models.Notification) error {
	n.ID = uint(len(r.created) + 1)
	r.created = append(r.created, *n)
	return nil
}

func (r *fakeNotificationRepo) ListByUser(userID uint, offset, limit int) ([]models.Notification, error) {
	var out []models.Notification
	for _, n := range r.created {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *fakeNotificationRepo) CountUnread(userID uint) (int64, error) {
	var n int64
	for _, c := range r.created {
		if c.UserID == userID && !c.IsRead {
			n++
		}
	}
	return n, nil
}

func (r *fakeNotificationRepo) MarkRead(userID, notificationID uint) error {
	for i := range r.created {
		if r.created[i].UserID == userID && r.created[i].ID == notificationID {
			r.created[i].IsRead = true
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

type fakeEventRepo struct {
	events    map[string]*models.WebhookEvent
	processed map[uint]string
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{
		events:    make(map[string]*models.WebhookEvent),
		processed: make(map[uint]string),
	}
}

func (r *fakeEventRepo) CreateIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	if existing, ok := r.events[event.ProviderEventID]; ok {
		return false, existing, nil
	}
	event.ID = uint(len(r.events) + 1)
	r.events[event.ProviderEventID] = event
	return true, event, nil
}

func (r *fakeEventRepo) MarkProcessed(id uint, processingError string) error {
	r.processed[id] = processingError
	for _, event := range r.events {
		if event.ID == id {
			now := time.Now()
			event.ProcessedAt = &now
			event.ProcessingError = processingError
		}
	}
	return nil
}

type sentMail struct {
	to      string
	subject string
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (m *fakeMailer) SendMail(to, subject, body string) error {
	m.sent = append(m.sent, sentMail{to: to, subject: subject})
	return m.err
}

type fakeProvider struct {
	customers       map[string]*Customer
	subscriptions   map[string]*ProviderSubscription
	checkoutURL     string
	portalURL       string
	lastCheckout    CheckoutParams
	createdCustomer *Customer
	balances        map[string]int64
	verifyEvent     stripe.Event
	verifyErr       error
	cancelCalls     []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		customers:     make(map[string]*Customer),
		subscriptions: make(map[string]*ProviderSubscription),
		checkoutURL:   "https://pay.example/session",
		portalURL:     "https://pay.example/portal",
		balances:      make(map[string]int64),
	}
}

func (p *fakeProvider) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	for _, c := range p.customers {
		if c.Email == email {
			return c, nil
		}
	}
	return nil, nil
}

func (p *fakeProvider) CreateCustomer(ctx context.Context, email, name string) (*Customer, error) {
	c := &Customer{ID: "cus_" + email, Email: email}
	p.customers[c.ID] = c
	p.createdCustomer = c
	return c, nil
}

func (p *fakeProvider) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (string, error) {
	p.lastCheckout = params
	return p.checkoutURL, nil
}

func (p *fakeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	return p.portalURL, nil
}

func (p *fakeProvider) GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	s, ok := p.subscriptions[subscriptionID]
	if !ok {
		return nil, errors.New("no such subscription")
	}
	return s, nil
}

func (p *fakeProvider) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*ProviderSubscription, error) {
	p.cancelCalls = append(p.cancelCalls, subscriptionID)
	s, ok := p.subscriptions[subscriptionID]
	if !ok {
		return nil, errors.New("no such subscription")
	}
	s.CancelAtPeriodEnd = cancel
	return s, nil
}

func (p *fakeProvider) AddCustomerBalance(ctx context.Context, customerID string, amountCents int64, description string) error {
	p.balances[customerID] += amountCents
	return nil
}

func (p *fakeProvider) GetCustomerBalance(ctx context.Context, customerID string) (int64, error) {
	return p.balances[customerID], nil
}

func (p *fakeProvider) VerifyWebhook(payload []byte, signatureHeader string) (stripe.Event, error) {
	return p.verifyEvent, p.verifyErr
}

// testEngine bundles a fully wired engine over fakes.
type testEngine struct {
	users         *fakeUserRepo
	subs          *fakeSubRepo
	badges        *fakeBadgeRepo
	notifications *fakeNotificationRepo
	events        *fakeEventRepo
	mailer        *fakeMailer
	provider      *fakeProvider
	reconciler    *Reconciler
	dispatcher    *Dispatcher
	service       *Service
}

func newTestEngine(users ...*models.User) *testEngine {
	e := &testEngine{
		users:         newFakeUserRepo(users...),
		subs:          newFakeSubRepo(),
		badges:        newFakeBadgeRepo(),
		notifications: &fakeNotificationRepo{},
		events:        newFakeEventRepo(),
		mailer:        &fakeMailer{},
		provider:      newFakeProvider(),
	}
	effects := NewSideEffects(e.badges, e.notifications, e.mailer)
	e.reconciler = NewReconciler(e.users, e.subs, effects)
	e.dispatcher = NewDispatcher(e.subs, e.reconciler, e.provider)
	e.service = &Service{
		users:      e.users,
		subs:       e.subs,
		events:     e.events,
		provider:   e.provider,
		reconciler: e.reconciler,
		dispatcher: e.dispatcher,
	}
	return e
}
