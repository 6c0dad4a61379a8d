package order_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/boutique-checkout/internal/domain/order"
)

func (f *fixture) place(t *testing.T, cart order.Cart) *order.Order {
	t.Helper()
	o, err := f.svc.CreateOrder(context.Background(), f.request(cart))
	require.NoError(t, err)
	return o
}

func TestChangeStatus_ShipConsumesReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.place(t, order.Cart{"v-wax": 3})

	_, err := f.svc.ChangeStatus(ctx, order.StatusChange{Number: o.Number, Status: order.StatusProcessing, Actor: "admin"})
	require.NoError(t, err)
	updated, err := f.svc.ChangeStatus(ctx, order.StatusChange{Number: o.Number, Status: order.StatusShipped, Comment: "Remis au coursier", Actor: "admin"})
	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, updated.Status)

	v, _ := f.store.Variant("v-wax")
	assert.Equal(t, 97, v.Stock.Quantity)
	assert.Zero(t, v.Stock.Reserved)

	history, err := f.svc.History(ctx, o.Number)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, order.StatusProcessing, history[1].Status)
	assert.Equal(t, "Marked as processing", history[1].Comment)
	assert.Equal(t, "Remis au coursier", history[2].Comment)
	assert.Equal(t, "admin", history[2].CreatedBy)
}

func TestChangeStatus_CancelReleasesReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.place(t, order.Cart{"v-wax": 3})

	updated, err := f.svc.ChangeStatus(ctx, order.StatusChange{Number: o.Number, Status: order.StatusCancelled, Actor: "admin"})
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, updated.Status)

	v, _ := f.store.Variant("v-wax")
	assert.Equal(t, 100, v.Stock.Quantity)
	assert.Zero(t, v.Stock.Reserved)
}

func TestChangeStatus_RejectsInvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		path []order.Status
		to   order.Status
	}{
		{name: "pending to delivered", to: order.StatusDelivered},
		{name: "pending to refunded", to: order.StatusRefunded},
		{name: "shipped to cancelled", path: []order.Status{order.StatusProcessing, order.StatusShipped}, to: order.StatusCancelled},
		{name: "cancelled is terminal", path: []order.Status{order.StatusCancelled}, to: order.StatusProcessing},
		{name: "delivered is terminal", path: []order.Status{order.StatusProcessing, order.StatusShipped, order.StatusDelivered}, to: order.StatusRefunded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			o := f.place(t, order.Cart{"v-wax": 1})
			for _, st := range tt.path {
				_, err := f.svc.ChangeStatus(ctx, order.StatusChange{Number: o.Number, Status: st})
				require.NoError(t, err)
			}

			_, err := f.svc.ChangeStatus(ctx, order.StatusChange{Number: o.Number, Status: tt.to})
			require.ErrorIs(t, err, order.ErrInvalidTransition)
			var terr *order.TransitionError
			require.ErrorAs(t, err, &terr)
			assert.Equal(t, tt.to, terr.To)

			history, err := f.svc.History(ctx, o.Number)
			require.NoError(t, err)
			assert.Len(t, history, len(tt.path)+1)
		})
	}
}

func TestChangeStatus_UnknownOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ChangeStatus(context.Background(), order.StatusChange{Number: "ORD-20250615-9999", Status: order.StatusProcessing})
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestMarkPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.place(t, order.Cart{"v-wax": 1})

	paid, err := f.svc.MarkPaid(ctx, o.Number)
	require.NoError(t, err)
	assert.True(t, paid.Paid)
	require.NotNil(t, paid.PaidAt)
	assert.True(t, paid.PaidAt.Equal(fixedNow))

	again, err := f.svc.MarkPaid(ctx, o.Number)
	require.NoError(t, err)
	assert.True(t, again.PaidAt.Equal(fixedNow))

	cancelled := f.place(t, order.Cart{"v-wax": 1})
	_, err = f.svc.ChangeStatus(ctx, order.StatusChange{Number: cancelled.Number, Status: order.StatusCancelled})
	require.NoError(t, err)
	_, err = f.svc.MarkPaid(ctx, cancelled.Number)
	require.ErrorIs(t, err, order.ErrOrderCancelled)
}

func TestGet_ChecksOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.place(t, order.Cart{"v-wax": 2})

	got, err := f.svc.Get(ctx, "cust-1", o.Number)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
	require.Len(t, got.Items, 1)

	_, err = f.svc.Get(ctx, "cust-2", o.Number)
	require.ErrorIs(t, err, order.ErrNotFound)

	orders, err := f.svc.List(ctx, "cust-1", 0)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, o.Number, orders[0].Number)

	orders, err = f.svc.List(ctx, "cust-2", 10)
	require.NoError(t, err)
	assert.Empty(t, orders)
}
