package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "encore/internal/errors"
	"encore/internal/external"
	"encore/internal/models"
)

func testCatalog() *fakeCatalog {
	return &fakeCatalog{
		tiers: map[string]external.TierResponse{
			"tier-a": {ID: "tier-a", SessionID: "ses-1", Price: 2500},
			"tier-b": {ID: "tier-b", SessionID: "ses-1", Price: 5000},
		},
		sessions: map[string]external.SessionResponse{
			"ses-1": {ID: "ses-1", EventID: "evt-1"},
		},
	}
}

func newOrderFixture(t *testing.T) (*memState, *OrderService) {
	t.Helper()
	state := newMemState()
	seedLedger(t, state, models.TierKey{EventID: "evt-1", SessionID: "ses-1", TierID: "tier-a"}, 10)
	seedLedger(t, state, models.TierKey{EventID: "evt-1", SessionID: "ses-1", TierID: "tier-b"}, 4)
	return state, NewOrderService(state.orderStore(), testCatalog())
}

func TestCreateOrderFreezesPrices(t *testing.T) {
	state, svc := newOrderFixture(t)
	ctx := context.Background()

	order, err := svc.Create(ctx, &models.CreateOrderRequest{
		UserID: "user-1",
		Lines: []models.OrderLine{
			{TierID: "tier-a", Quantity: 2},
			{TierID: "tier-b", Quantity: 1},
		},
	})
	require.NoError(t, err)

	// 2*2500 + 1*5000, from the catalog, not the client.
	assert.Equal(t, int64(10000), order.Total)
	require.Len(t, order.Items, 2)
	assert.Equal(t, int64(2500), order.Items[0].UnitPrice)
	assert.Equal(t, "evt-1", order.Items[0].EventID)
	assert.Equal(t, "ses-1", order.Items[0].SessionID)

	// Holds landed with the creation.
	assert.Equal(t, int64(8), state.available(models.TierKey{EventID: "evt-1", SessionID: "ses-1", TierID: "tier-a"}))
	assert.Equal(t, int64(3), state.available(models.TierKey{EventID: "evt-1", SessionID: "ses-1", TierID: "tier-b"}))

	assert.Equal(t, []string{models.EventOrderCreated}, state.outboxSubjects())
}

func TestCreateOrderValidation(t *testing.T) {
	_, svc := newOrderFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, &models.CreateOrderRequest{UserID: "", Lines: []models.OrderLine{{TierID: "tier-a", Quantity: 1}}})
	assert.ErrorIs(t, err, apperrors.ErrInvalidOrder)

	_, err = svc.Create(ctx, &models.CreateOrderRequest{UserID: "user-1"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidOrder)

	_, err = svc.Create(ctx, &models.CreateOrderRequest{
		UserID: "user-1",
		Lines:  []models.OrderLine{{TierID: "tier-a", Quantity: 0}},
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidOrder)
}

func TestCreateOrderUnknownTier(t *testing.T) {
	state, svc := newOrderFixture(t)

	_, err := svc.Create(context.Background(), &models.CreateOrderRequest{
		UserID: "user-1",
		Lines:  []models.OrderLine{{TierID: "tier-z", Quantity: 1}},
	})
	assert.ErrorIs(t, err, apperrors.ErrProductNotFound)
	assert.Empty(t, state.outboxSubjects())
}

func TestCreateOrderInsufficientStockRollsBack(t *testing.T) {
	state, svc := newOrderFixture(t)

	// tier-b only has 4; the whole order must fail, including the
	// first line's hold.
	_, err := svc.Create(context.Background(), &models.CreateOrderRequest{
		UserID: "user-1",
		Lines: []models.OrderLine{
			{TierID: "tier-a", Quantity: 2},
			{TierID: "tier-b", Quantity: 5},
		},
	})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)

	assert.Equal(t, int64(10), state.available(models.TierKey{EventID: "evt-1", SessionID: "ses-1", TierID: "tier-a"}))
	assert.Equal(t, int64(4), state.available(models.TierKey{EventID: "evt-1", SessionID: "ses-1", TierID: "tier-b"}))
	assert.Empty(t, state.outboxSubjects())

	orders, listErr := svc.ListByUser(context.Background(), "user-1")
	require.NoError(t, listErr)
	assert.Empty(t, orders)
}

func TestMarkAsPaidIdempotent(t *testing.T) {
	state, svc := newOrderFixture(t)
	ctx := context.Background()

	order, err := svc.Create(ctx, &models.CreateOrderRequest{
		UserID: "user-1",
		Lines:  []models.OrderLine{{TierID: "tier-a", Quantity: 1}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.MarkAsPaid(ctx, order.ID))

	got, err := svc.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaymentSuccess, got.Status)
	require.NotNil(t, got.PaidAt)

	// A duplicate capture event is rejected and emits nothing.
	err = svc.MarkAsPaid(ctx, order.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidOrder)
	assert.Equal(t, []string{models.EventOrderCreated, models.EventOrderPaid}, state.outboxSubjects())
}

func TestMarkAsPaymentFailed(t *testing.T) {
	state, svc := newOrderFixture(t)
	ctx := context.Background()

	order, err := svc.Create(ctx, &models.CreateOrderRequest{
		UserID: "user-1",
		Lines:  []models.OrderLine{{TierID: "tier-a", Quantity: 1}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.MarkAsPaymentFailed(ctx, order.ID, "card declined"))

	got, err := svc.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaymentFailed, got.Status)

	// Failing after failing matches no row.
	err = svc.MarkAsPaymentFailed(ctx, order.ID, "again")
	assert.ErrorIs(t, err, apperrors.ErrInvalidOrder)
	assert.Equal(t, []string{models.EventOrderCreated, models.EventOrderPaymentFailed}, state.outboxSubjects())
}

func TestCancelOrder(t *testing.T) {
	state, svc := newOrderFixture(t)
	ctx := context.Background()

	order, err := svc.Create(ctx, &models.CreateOrderRequest{
		UserID: "user-1",
		Lines:  []models.OrderLine{{TierID: "tier-a", Quantity: 1}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, order.ID, false))

	got, err := svc.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCanceled, got.Status)
	require.NotNil(t, got.CanceledAt)

	err = svc.Cancel(ctx, order.ID, false)
	assert.ErrorIs(t, err, apperrors.ErrInvalidOrder)

	assert.Equal(t, []string{models.EventOrderCreated, models.EventOrderCanceled}, state.outboxSubjects())
}

func TestForceCancelPaidOrder(t *testing.T) {
	_, svc := newOrderFixture(t)
	ctx := context.Background()

	order, err := svc.Create(ctx, &models.CreateOrderRequest{
		UserID: "user-1",
		Lines:  []models.OrderLine{{TierID: "tier-a", Quantity: 1}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.MarkAsPaid(ctx, order.ID))

	// A paid order only cancels with force.
	err = svc.Cancel(ctx, order.ID, false)
	assert.ErrorIs(t, err, apperrors.ErrInvalidOrder)

	require.NoError(t, svc.Cancel(ctx, order.ID, true))

	got, err := svc.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCanceled, got.Status)
}

func TestCancelExpired(t *testing.T) {
	state, svc := newOrderFixture(t)
	ctx := context.Background()

	stale, err := svc.Create(ctx, &models.CreateOrderRequest{
		UserID: "user-1",
		Lines:  []models.OrderLine{{TierID: "tier-a", Quantity: 1}},
	})
	require.NoError(t, err)

	paid, err := svc.Create(ctx, &models.CreateOrderRequest{
		UserID: "user-1",
		Lines:  []models.OrderLine{{TierID: "tier-a", Quantity: 1}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.MarkAsPaid(ctx, paid.ID))

	// Backdate both orders past the TTL.
	state.mu.Lock()
	for _, order := range state.orders {
		order.CreatedAt = time.Now().Add(-time.Hour)
	}
	state.mu.Unlock()

	canceled, err := svc.CancelExpired(ctx, time.Now().Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, canceled)

	got, err := svc.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCanceled, got.Status)

	got, err = svc.GetByID(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaymentSuccess, got.Status)
}

func TestGetOrderNotFound(t *testing.T) {
	_, svc := newOrderFixture(t)

	_, err := svc.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrOrderNotFound)
}
