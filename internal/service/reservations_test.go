package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "encore/internal/errors"
	"encore/internal/models"
)

func seedLedger(t *testing.T, state *memState, key models.TierKey, qty int64) {
	t.Helper()
	_, err := state.stock().CreateLedger(context.Background(), key, qty)
	require.NoError(t, err)
}

func TestHoldDecrementsStock(t *testing.T) {
	state := newMemState()
	svc := NewReservationService(state.reservationStore())
	ctx := context.Background()
	key := testTierKey()
	seedLedger(t, state, key, 10)

	res, err := svc.Hold(ctx, "order-1", "user-1", key, 3)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationHeld, res.Status)
	assert.Equal(t, int64(7), state.available(key))
}

func TestHoldRejectsBadQuantity(t *testing.T) {
	state := newMemState()
	svc := NewReservationService(state.reservationStore())
	key := testTierKey()
	seedLedger(t, state, key, 10)

	_, err := svc.Hold(context.Background(), "order-1", "user-1", key, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidReservation)
	assert.Equal(t, int64(10), state.available(key))
}

func TestHoldInsufficientStock(t *testing.T) {
	state := newMemState()
	svc := NewReservationService(state.reservationStore())
	key := testTierKey()
	seedLedger(t, state, key, 2)

	_, err := svc.Hold(context.Background(), "order-1", "user-1", key, 3)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)
	assert.Equal(t, int64(2), state.available(key))
}

func TestConfirmEmitsTicketEvent(t *testing.T) {
	state := newMemState()
	svc := NewReservationService(state.reservationStore())
	ctx := context.Background()
	key := testTierKey()
	seedLedger(t, state, key, 5)

	held, err := svc.Hold(ctx, "order-1", "user-1", key, 2)
	require.NoError(t, err)

	confirmed, err := svc.Confirm(ctx, held.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedAt)

	// Confirming does not return quantity: the OUT was applied at hold time.
	assert.Equal(t, int64(3), state.available(key))
	assert.Equal(t, []string{models.EventReservationConfirmed}, state.outboxSubjects())
}

func TestConfirmTwice(t *testing.T) {
	state := newMemState()
	svc := NewReservationService(state.reservationStore())
	ctx := context.Background()
	key := testTierKey()
	seedLedger(t, state, key, 5)

	held, err := svc.Hold(ctx, "order-1", "user-1", key, 2)
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, held.ID)
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, held.ID)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyConfirmed)

	// No duplicate event from the second attempt.
	assert.Len(t, state.outboxSubjects(), 1)
}

func TestReleaseCompensatesHold(t *testing.T) {
	state := newMemState()
	svc := NewReservationService(state.reservationStore())
	ctx := context.Background()
	key := testTierKey()
	seedLedger(t, state, key, 5)

	held, err := svc.Hold(ctx, "order-1", "user-1", key, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), state.available(key))

	released, err := svc.Release(ctx, held.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationReleased, released.Status)
	assert.Equal(t, int64(5), state.available(key))
}

func TestReleaseAfterConfirm(t *testing.T) {
	state := newMemState()
	svc := NewReservationService(state.reservationStore())
	ctx := context.Background()
	key := testTierKey()
	seedLedger(t, state, key, 5)

	held, err := svc.Hold(ctx, "order-1", "user-1", key, 2)
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, held.ID)
	require.NoError(t, err)

	_, err = svc.Release(ctx, held.ID)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyConfirmed)

	// A confirmed sale never returns quantity.
	assert.Equal(t, int64(3), state.available(key))
}

func TestConfirmUnknownReservation(t *testing.T) {
	state := newMemState()
	svc := NewReservationService(state.reservationStore())

	_, err := svc.Confirm(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrReservationNotFound)
}

func TestConfirmAllForOrder(t *testing.T) {
	state := newMemState()
	svc := NewReservationService(state.reservationStore())
	ctx := context.Background()
	key := testTierKey()
	seedLedger(t, state, key, 10)

	first, err := svc.Hold(ctx, "order-1", "user-1", key, 2)
	require.NoError(t, err)
	_, err = svc.Hold(ctx, "order-1", "user-1", key, 3)
	require.NoError(t, err)

	// One reservation already released; the bulk confirm must skip it.
	_, err = svc.Release(ctx, first.ID)
	require.NoError(t, err)

	require.NoError(t, svc.ConfirmAllForOrder(ctx, "order-1"))

	reservations, err := svc.ListByOrder(ctx, "order-1")
	require.NoError(t, err)
	statuses := map[string]int{}
	for _, res := range reservations {
		statuses[res.Status]++
	}
	assert.Equal(t, 1, statuses[models.ReservationConfirmed])
	assert.Equal(t, 1, statuses[models.ReservationReleased])

	// Redelivery: running the bulk confirm again changes nothing.
	require.NoError(t, svc.ConfirmAllForOrder(ctx, "order-1"))
	assert.Len(t, state.outboxSubjects(), 1)
}

func TestReleaseAllForOrderIdempotent(t *testing.T) {
	state := newMemState()
	svc := NewReservationService(state.reservationStore())
	ctx := context.Background()
	key := testTierKey()
	seedLedger(t, state, key, 10)

	_, err := svc.Hold(ctx, "order-1", "user-1", key, 2)
	require.NoError(t, err)
	_, err = svc.Hold(ctx, "order-1", "user-1", key, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(5), state.available(key))

	require.NoError(t, svc.ReleaseAllForOrder(ctx, "order-1"))
	assert.Equal(t, int64(10), state.available(key))

	// A redelivered release message must not double-credit the ledger.
	require.NoError(t, svc.ReleaseAllForOrder(ctx, "order-1"))
	assert.Equal(t, int64(10), state.available(key))
}
