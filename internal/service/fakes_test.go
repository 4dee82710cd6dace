package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"storefront/internal/models"
	"storefront/internal/payment"
	"storefront/internal/store"
)

type fakeCheckoutStore struct {
	mu sync.Mutex

	paymentMethods  map[int64]*models.PaymentMethod
	deliveryMethods map[int64]*models.DeliveryMethod
	basket          map[int64]models.BasketLine
	checkouts       map[int64]*models.Checkout
	transactions    map[int64]*models.Transaction
	processed       map[string]bool
	nextID          int64
}

func newFakeCheckoutStore() *fakeCheckoutStore {
	return &fakeCheckoutStore{
		paymentMethods: map[int64]*models.PaymentMethod{
			1: {ID: 1, Code: "card", IsActive: true, FeePercent: models.MustMoney("0")},
			2: {ID: 2, Code: "old", IsActive: false},
		},
		deliveryMethods: map[int64]*models.DeliveryMethod{
			1: {ID: 1, Code: "courier", IsActive: true, BasePrice: models.MustMoney("250.00"), PricePerKg: models.MustMoney("0")},
		},
		basket:       map[int64]models.BasketLine{},
		checkouts:    map[int64]*models.Checkout{},
		transactions: map[int64]*models.Transaction{},
		processed:    map[string]bool{},
		nextID:       100,
	}
}

func (f *fakeCheckoutStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeCheckoutStore) addLine(userID int64, price string, count int) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := line(1, price, count, 0)
	l.ID = f.id()
	l.UserID = userID
	f.basket[l.ID] = l
	return l.ID
}

func (f *fakeCheckoutStore) GetPaymentMethod(_ context.Context, id int64) (*models.PaymentMethod, error) {
	if m, ok := f.paymentMethods[id]; ok {
		return m, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeCheckoutStore) GetDeliveryMethod(_ context.Context, id int64) (*models.DeliveryMethod, error) {
	if m, ok := f.deliveryMethods[id]; ok {
		return m, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeCheckoutStore) GetCheckoutByIdempotencyKey(_ context.Context, userID int64, key string) (*models.Checkout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.checkouts {
		if c.UserID == userID && c.IdempotencyKey != nil && *c.IdempotencyKey == key {
			return f.withRelations(c), nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeCheckoutStore) CreateCheckoutFromBasket(_ context.Context, userID int64, ids []int64, build store.CheckoutBuilder) (*models.Checkout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var lines []models.BasketLine
	for _, id := range ids {
		if l, ok := f.basket[id]; ok && l.UserID == userID {
			lines = append(lines, l)
		}
	}
	c, err := build(lines)
	if err != nil {
		return nil, err
	}
	if c.IdempotencyKey != nil {
		for _, existing := range f.checkouts {
			if existing.UserID == userID && existing.IdempotencyKey != nil && *existing.IdempotencyKey == *c.IdempotencyKey {
				return nil, &store.ConstraintError{Err: store.ErrDuplicate, Table: "checkouts", Constraint: "checkouts_user_idempotency_key"}
			}
		}
	}
	c.ID = f.id()
	c.CreatedAt = time.Now()
	for _, l := range lines {
		delete(f.basket, l.ID)
	}
	stored := *c
	f.checkouts[c.ID] = &stored
	return c, nil
}

func (f *fakeCheckoutStore) RecordPaymentAttempt(_ context.Context, checkoutID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.checkouts[checkoutID]
	if !ok {
		return 0, store.ErrNotFound
	}
	c.PaymentAttempts++
	return c.PaymentAttempts, nil
}

func (f *fakeCheckoutStore) AttachTransaction(_ context.Context, checkoutID int64, t *models.Transaction, status models.CheckoutStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.checkouts[checkoutID]
	if !ok || c.Status != models.CheckoutStatusDraft {
		return store.ErrNotFound
	}
	t.ID = f.id()
	t.CheckoutID = checkoutID
	t.CreatedAt = time.Now()
	stored := *t
	f.transactions[t.ID] = &stored
	c.Status = status
	return nil
}

func (f *fakeCheckoutStore) TransitionCheckout(_ context.Context, id int64, from []models.CheckoutStatus, next models.CheckoutStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.checkouts[id]
	if !ok {
		return store.ErrNotFound
	}
	for _, s := range from {
		if c.Status == s {
			c.Status = next
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeCheckoutStore) GetCheckout(_ context.Context, id int64) (*models.Checkout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.checkouts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return f.withRelations(c), nil
}

func (f *fakeCheckoutStore) ListCheckouts(_ context.Context, userID *int64) ([]*models.Checkout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.Checkout{}
	for _, c := range f.checkouts {
		if userID == nil || c.UserID == *userID {
			out = append(out, f.withRelations(c))
		}
	}
	return out, nil
}

// withRelations copies c and attaches its transactions newest first.
func (f *fakeCheckoutStore) withRelations(c *models.Checkout) *models.Checkout {
	cp := *c
	cp.Transactions = []models.Transaction{}
	for _, t := range f.transactions {
		if t.CheckoutID == c.ID {
			cp.Transactions = append([]models.Transaction{*t}, cp.Transactions...)
		}
	}
	return &cp
}

func (f *fakeCheckoutStore) ApplyPaymentUpdate(_ context.Context, u store.PaymentUpdate) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.processed[u.EventID] {
		return false, nil
	}
	f.processed[u.EventID] = true
	if t, ok := f.transactions[u.TransactionID]; ok {
		t.Status = u.TransactionStatus
		t.Payload = u.Payload
	}
	if c, ok := f.checkouts[u.CheckoutID]; ok && c.Status.CanTransitionTo(u.CheckoutStatus) {
		c.Status = u.CheckoutStatus
	}
	return true, nil
}

func (f *fakeCheckoutStore) GetTransactionByExternalID(_ context.Context, externalID string) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.transactions {
		if t.ExternalID == externalID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeCheckoutStore) ListStaleDrafts(_ context.Context, cutoff time.Time, limit int) ([]*models.Checkout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.Checkout{}
	for _, c := range f.checkouts {
		if c.Status == models.CheckoutStatusDraft && c.CreatedAt.Before(cutoff) && len(out) < limit {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeCheckoutStore) ListPendingTransactions(_ context.Context, limit int) ([]models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Transaction{}
	for _, t := range f.transactions {
		c := f.checkouts[t.CheckoutID]
		if c.Status == models.CheckoutStatusPending && !payment.IsMockID(t.ExternalID) && len(out) < limit {
			out = append(out, *t)
		}
	}
	return out, nil
}

type fakeGateway struct {
	mock     bool
	err      error
	status   string
	created  []payment.PaymentRequest
	statuses map[string]string
}

func (g *fakeGateway) CreatePayment(_ context.Context, req payment.PaymentRequest) (*payment.Payment, error) {
	g.created = append(g.created, req)
	if g.err != nil {
		return nil, g.err
	}
	status := g.status
	if status == "" {
		status = payment.StatusPending
	}
	id := "pay-" + req.IdempotenceKey
	if g.statuses == nil {
		g.statuses = map[string]string{}
	}
	g.statuses[id] = status
	return &payment.Payment{
		ID:              id,
		Status:          status,
		ConfirmationURL: req.ReturnURL,
		Raw:             []byte(`{"id":"` + id + `"}`),
	}, nil
}

func (g *fakeGateway) GetPayment(_ context.Context, id string) (*payment.Payment, error) {
	if g.err != nil {
		return nil, g.err
	}
	status, ok := g.statuses[id]
	if !ok {
		return nil, errors.New("payment not found")
	}
	return &payment.Payment{ID: id, Status: status, Raw: []byte(`{"id":"` + id + `"}`)}, nil
}

func (g *fakeGateway) Mock() bool {
	return g.mock
}

type fakePublisher struct {
	mu      sync.Mutex
	id      string
	records map[string][]models.EventRecord
}

func newFakePublisher(id string) *fakePublisher {
	return &fakePublisher{id: id, records: map[string][]models.EventRecord{}}
}

func (p *fakePublisher) Publish(_ context.Context, kind string, record models.EventRecord) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[kind] = append(p.records[kind], record)
	return p.id
}
