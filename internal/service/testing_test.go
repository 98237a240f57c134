package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "encore/internal/errors"
	"encore/internal/external"
	"encore/internal/models"
)

// memState is an in-memory stand-in for the postgres layer, shared by the
// per-store views below. The views implement the same contracts the SQL
// repositories guarantee: status-guarded transitions, all-or-nothing order
// creation, and outbox appends atomic with the state change.
type memState struct {
	mu           sync.Mutex
	ledgers      map[models.TierKey]*models.StockLedger
	movements    map[models.TierKey][]models.StockMovement
	reservations map[string]*models.Reservation
	orders       map[string]*models.Order
	payments     map[string]*models.Payment
	outbox       []*models.OutboxMessage
}

func newMemState() *memState {
	return &memState{
		ledgers:      make(map[models.TierKey]*models.StockLedger),
		movements:    make(map[models.TierKey][]models.StockMovement),
		reservations: make(map[string]*models.Reservation),
		orders:       make(map[string]*models.Order),
		payments:     make(map[string]*models.Payment),
	}
}

func (m *memState) stock() *memStockStore          { return &memStockStore{m} }
func (m *memState) reservationStore() *memResStore { return &memResStore{m} }
func (m *memState) orderStore() *memOrderStore     { return &memOrderStore{m} }
func (m *memState) paymentStore() *memPaymentStore { return &memPaymentStore{m} }

// outboxSubjects returns the subjects of every enqueued message in order.
func (m *memState) outboxSubjects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	subjects := make([]string, len(m.outbox))
	for i, msg := range m.outbox {
		subjects[i] = msg.Subject
	}
	return subjects
}

func (m *memState) available(key models.TierKey) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ledger, ok := m.ledgers[key]; ok {
		return ledger.AvailableQty
	}
	return -1
}

func (m *memState) applyMovementLocked(key models.TierKey, movementType string, quantity int64) (*models.StockLedger, error) {
	ledger, ok := m.ledgers[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrStockNotFound, key)
	}

	if movementType == models.MovementOut {
		if ledger.AvailableQty < quantity {
			return nil, fmt.Errorf("%w: %s has %d, need %d",
				apperrors.ErrInsufficientStock, key, ledger.AvailableQty, quantity)
		}
		ledger.AvailableQty -= quantity
	} else {
		ledger.AvailableQty += quantity
	}

	m.movements[key] = append(m.movements[key], models.StockMovement{
		ID:        int64(len(m.movements[key]) + 1),
		EventID:   key.EventID,
		SessionID: key.SessionID,
		TierID:    key.TierID,
		Type:      movementType,
		Quantity:  quantity,
		CreatedAt: time.Now(),
	})

	copied := *ledger
	return &copied, nil
}

// memStockStore implements StockStore.
type memStockStore struct{ *memState }

func (m *memStockStore) CreateLedger(_ context.Context, key models.TierKey, initialQty int64) (*models.StockLedger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.ledgers[key]; exists {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrLedgerExists, key)
	}

	ledger := &models.StockLedger{
		EventID:   key.EventID,
		SessionID: key.SessionID,
		TierID:    key.TierID,
		CreatedAt: time.Now(),
	}
	m.ledgers[key] = ledger
	if initialQty > 0 {
		if _, err := m.applyMovementLocked(key, models.MovementIn, initialQty); err != nil {
			return nil, err
		}
	}

	copied := *ledger
	return &copied, nil
}

func (m *memStockStore) ApplyMovement(_ context.Context, key models.TierKey, movementType string, quantity int64) (*models.StockLedger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyMovementLocked(key, movementType, quantity)
}

func (m *memStockStore) GetByKey(_ context.Context, key models.TierKey) (*models.StockLedger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ledger, ok := m.ledgers[key]
	if !ok {
		return nil, nil
	}
	copied := *ledger
	return &copied, nil
}

func (m *memStockStore) ListByEvent(_ context.Context, eventID string) ([]models.StockLedger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []models.StockLedger
	for _, ledger := range m.ledgers {
		if ledger.EventID == eventID {
			result = append(result, *ledger)
		}
	}
	return result, nil
}

func (m *memStockStore) ListMovements(_ context.Context, key models.TierKey) ([]models.StockMovement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.StockMovement(nil), m.movements[key]...), nil
}

func (m *memStockStore) DeleteEventLedgers(_ context.Context, eventID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for key, ledger := range m.ledgers {
		if ledger.EventID == eventID {
			delete(m.ledgers, key)
			delete(m.movements, key)
			deleted++
		}
	}
	if deleted == 0 {
		return 0, fmt.Errorf("%w: event %s", apperrors.ErrStockNotFound, eventID)
	}
	return deleted, nil
}

// memResStore implements ReservationStore.
type memResStore struct{ *memState }

func (m *memResStore) Hold(_ context.Context, res *models.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.applyMovementLocked(res.Key(), models.MovementOut, res.Quantity); err != nil {
		return err
	}

	if res.ID == "" {
		res.ID = uuid.New().String()
	}
	res.Status = models.ReservationHeld
	res.CreatedAt = time.Now()
	copied := *res
	m.reservations[res.ID] = &copied
	return nil
}

func (m *memResStore) Confirm(_ context.Context, id string, msg *models.OutboxMessage) (*models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.reservations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrReservationNotFound, id)
	}

	switch res.Status {
	case models.ReservationConfirmed:
		return nil, fmt.Errorf("%w: %s", apperrors.ErrAlreadyConfirmed, id)
	case models.ReservationReleased:
		return nil, fmt.Errorf("%w: %s", apperrors.ErrAlreadyReleased, id)
	}

	now := time.Now()
	res.Status = models.ReservationConfirmed
	res.ConfirmedAt = &now
	if msg != nil {
		m.outbox = append(m.outbox, msg)
	}

	copied := *res
	return &copied, nil
}

func (m *memResStore) Release(_ context.Context, id string, msg *models.OutboxMessage) (*models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.reservations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrReservationNotFound, id)
	}

	switch res.Status {
	case models.ReservationConfirmed:
		return nil, fmt.Errorf("%w: %s", apperrors.ErrAlreadyConfirmed, id)
	case models.ReservationReleased:
		return nil, fmt.Errorf("%w: %s", apperrors.ErrAlreadyReleased, id)
	}

	if _, err := m.applyMovementLocked(res.Key(), models.MovementIn, res.Quantity); err != nil {
		return nil, err
	}

	res.Status = models.ReservationReleased
	if msg != nil {
		m.outbox = append(m.outbox, msg)
	}

	copied := *res
	return &copied, nil
}

func (m *memResStore) GetByID(_ context.Context, id string) (*models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.reservations[id]
	if !ok {
		return nil, nil
	}
	copied := *res
	return &copied, nil
}

func (m *memResStore) ListByOrder(_ context.Context, orderID string) ([]models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []models.Reservation
	for _, res := range m.reservations {
		if res.OrderID == orderID {
			result = append(result, *res)
		}
	}
	return result, nil
}

// memOrderStore implements OrderStore.
type memOrderStore struct{ *memState }

func (m *memOrderStore) Create(_ context.Context, order *models.Order, holds []*models.Reservation, msg *models.OutboxMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Validate every hold against current availability before touching
	// anything, matching the transactional all-or-nothing of the SQL layer.
	required := make(map[models.TierKey]int64)
	for _, hold := range holds {
		required[hold.Key()] += hold.Quantity
	}
	for key, quantity := range required {
		ledger, ok := m.ledgers[key]
		if !ok {
			return fmt.Errorf("%w: %s", apperrors.ErrStockNotFound, key)
		}
		if ledger.AvailableQty < quantity {
			return fmt.Errorf("%w: %s has %d, need %d",
				apperrors.ErrInsufficientStock, key, ledger.AvailableQty, quantity)
		}
	}

	order.Status = models.OrderCreated
	order.CreatedAt = time.Now()
	copied := *order
	m.orders[order.ID] = &copied

	for _, hold := range holds {
		if _, err := m.applyMovementLocked(hold.Key(), models.MovementOut, hold.Quantity); err != nil {
			return err
		}
		hold.Status = models.ReservationHeld
		hold.CreatedAt = time.Now()
		heldCopy := *hold
		m.reservations[hold.ID] = &heldCopy
	}

	if msg != nil {
		m.outbox = append(m.outbox, msg)
	}
	return nil
}

func (m *memOrderStore) GetByID(_ context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	copied := *order
	return &copied, nil
}

func (m *memOrderStore) ListByUser(_ context.Context, userID string) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []models.Order
	for _, order := range m.orders {
		if order.UserID == userID {
			result = append(result, *order)
		}
	}
	return result, nil
}

func (m *memOrderStore) MarkPaid(_ context.Context, id string, msg *models.OutboxMessage) (bool, error) {
	return m.guardedUpdate(id, []string{models.OrderCreated}, models.OrderPaymentSuccess, msg)
}

func (m *memOrderStore) MarkPaymentFailed(_ context.Context, id string, msg *models.OutboxMessage) (bool, error) {
	return m.guardedUpdate(id, []string{models.OrderCreated}, models.OrderPaymentFailed, msg)
}

func (m *memOrderStore) Cancel(_ context.Context, id string, force bool, msg *models.OutboxMessage) (bool, error) {
	from := []string{models.OrderCreated}
	if force {
		from = []string{models.OrderCreated, models.OrderPaymentSuccess, models.OrderPaymentFailed}
	}
	return m.guardedUpdate(id, from, models.OrderCanceled, msg)
}

func (m *memOrderStore) guardedUpdate(id string, from []string, to string, msg *models.OutboxMessage) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[id]
	if !ok {
		return false, nil
	}

	matched := false
	for _, status := range from {
		if order.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}

	order.Status = to
	now := time.Now()
	switch to {
	case models.OrderPaymentSuccess:
		order.PaidAt = &now
	case models.OrderCanceled:
		order.CanceledAt = &now
	}

	if msg != nil {
		m.outbox = append(m.outbox, msg)
	}
	return true, nil
}

func (m *memOrderStore) GetExpired(_ context.Context, before time.Time) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []models.Order
	for _, order := range m.orders {
		if order.Status == models.OrderCreated && order.CreatedAt.Before(before) {
			result = append(result, *order)
		}
	}
	return result, nil
}

// memPaymentStore implements PaymentStore and OutboxWriter.
type memPaymentStore struct{ *memState }

func (m *memPaymentStore) Create(_ context.Context, payment *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	payment.CreatedAt = time.Now()
	payment.UpdatedAt = payment.CreatedAt
	copied := *payment
	m.payments[payment.ID] = &copied
	return nil
}

func (m *memPaymentStore) GetByID(_ context.Context, id string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payment, ok := m.payments[id]
	if !ok {
		return nil, nil
	}
	copied := *payment
	return &copied, nil
}

func (m *memPaymentStore) GetByOrderID(_ context.Context, orderID string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, payment := range m.payments {
		if payment.OrderID == orderID {
			copied := *payment
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memPaymentStore) GetByProviderRef(_ context.Context, providerRef string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, payment := range m.payments {
		if payment.ProviderRef != nil && *payment.ProviderRef == providerRef {
			copied := *payment
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memPaymentStore) UpdateAmount(_ context.Context, id string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if payment, ok := m.payments[id]; ok {
		payment.Amount = amount
		payment.UpdatedAt = time.Now()
	}
	return nil
}

func (m *memPaymentStore) Transition(_ context.Context, id, from, to string, providerRef *string, msg *models.OutboxMessage) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	payment, ok := m.payments[id]
	if !ok || payment.Status != from {
		return false, nil
	}

	payment.Status = to
	if providerRef != nil {
		payment.ProviderRef = providerRef
	}
	payment.UpdatedAt = time.Now()

	if msg != nil {
		m.outbox = append(m.outbox, msg)
	}
	return true, nil
}

func (m *memPaymentStore) Enqueue(_ context.Context, msg *models.OutboxMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outbox = append(m.outbox, msg)
	return nil
}

// fakeCatalog resolves tiers and sessions from fixed maps.
type fakeCatalog struct {
	tiers    map[string]external.TierResponse
	sessions map[string]external.SessionResponse
}

func (f *fakeCatalog) ResolveTier(tierID string) (*external.TierResponse, error) {
	tier, ok := f.tiers[tierID]
	if !ok {
		return nil, fmt.Errorf("%w: tier %s", apperrors.ErrProductNotFound, tierID)
	}
	return &tier, nil
}

func (f *fakeCatalog) ResolveSession(sessionID string) (*external.SessionResponse, error) {
	session, ok := f.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", apperrors.ErrProductNotFound, sessionID)
	}
	return &session, nil
}

// fakeProvider records calls and can be told to refuse or fail.
type fakeProvider struct {
	mu          sync.Mutex
	refuse      bool
	transient   bool
	createCalls int
	captures    []string
	cancels     []string
	refunds     []string
}

func (f *fakeProvider) CreatePaymentOrder(payment *models.Payment) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.transient {
		return "", fmt.Errorf("%w: connection reset", apperrors.ErrExternalService)
	}
	if f.refuse {
		return "", fmt.Errorf("%w: card declined", apperrors.ErrPaymentRefused)
	}
	return "prov-" + payment.OrderID, nil
}

func (f *fakeProvider) CapturePayment(providerRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captures = append(f.captures, providerRef)
	return nil
}

func (f *fakeProvider) CancelPayment(providerRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, providerRef)
	return nil
}

func (f *fakeProvider) RefundPayment(providerRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunds = append(f.refunds, providerRef)
	return nil
}
