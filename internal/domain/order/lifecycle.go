package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var defaultComments = map[Status]string{
	StatusProcessing: "Marked as processing",
	StatusShipped:    "Marked as shipped",
	StatusDelivered:  "Marked as delivered",
	StatusCancelled:  "Order cancelled",
}

// ChangeStatus moves an order to a new status. The status column is updated
// first and the history entry is appended as a separate write in the same
// transaction. Cancelling releases the stock reservation; shipping turns it
// into a stock deduction.
func (s *Service) ChangeStatus(ctx context.Context, ch StatusChange) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.ChangeStatus", trace.WithAttributes(
		attribute.String("order.number", ch.Number),
		attribute.String("order.status", string(ch.Status)),
	))
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	var updated *Order
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, ch.Number)
		if err != nil {
			return err
		}
		if !o.Status.CanTransitionTo(ch.Status) {
			return &TransitionError{From: o.Status, To: ch.Status}
		}

		for _, it := range o.Items {
			switch ch.Status {
			case StatusCancelled:
				err = tx.ReleaseStock(ctx, it.VariantID, it.Quantity)
			case StatusShipped:
				err = tx.ConsumeStock(ctx, it.VariantID, it.Quantity)
			}
			if err != nil {
				return errors.Wrapf(err, "stock movement for %s", it.VariantID)
			}
		}

		now := s.now()
		if err := tx.SetStatus(ctx, o.ID, ch.Status, now); err != nil {
			return errors.Wrap(err, "set status")
		}
		o.Status = ch.Status
		o.UpdatedAt = now

		comment := ch.Comment
		if comment == "" {
			comment = defaultComments[ch.Status]
		}
		if err := tx.AppendStatus(ctx, StatusEntry{
			ID:        uuid.New(),
			OrderID:   o.ID,
			Status:    ch.Status,
			Comment:   comment,
			CreatedBy: ch.Actor,
			CreatedAt: now,
		}); err != nil {
			return errors.Wrap(err, "append status")
		}
		updated = o
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidTransition) {
			return nil, err
		}
		return nil, errors.Wrap(err, "change status")
	}

	zctx.From(ctx).Info("Order status changed",
		zap.String("order_number", updated.Number),
		zap.String("status", string(updated.Status)),
		zap.String("actor", ch.Actor),
	)
	return updated, nil
}

// MarkPaid records payment of an order. Paying an already paid order is a
// no-op.
func (s *Service) MarkPaid(ctx context.Context, number string) (*Order, error) {
	var updated *Order
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, number)
		if err != nil {
			return err
		}
		updated = o
		if o.Paid {
			return nil
		}
		if o.Status == StatusCancelled {
			return ErrOrderCancelled
		}
		now := s.now()
		if err := tx.MarkPaid(ctx, o.ID, now); err != nil {
			return errors.Wrap(err, "mark paid")
		}
		o.Paid = true
		o.PaidAt = &now
		o.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrOrderCancelled) {
			return nil, err
		}
		return nil, errors.Wrap(err, "mark paid")
	}
	return updated, nil
}

// Get returns an order owned by customerID.
func (s *Service) Get(ctx context.Context, customerID, number string) (*Order, error) {
	o, err := s.Lookup(ctx, number)
	if err != nil {
		return nil, err
	}
	if o.CustomerID != customerID {
		return nil, ErrNotFound
	}
	return o, nil
}

// Lookup returns any order by number.
func (s *Service) Lookup(ctx context.Context, number string) (*Order, error) {
	o, err := s.orders.GetByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

// List returns the most recent orders of a customer.
func (s *Service) List(ctx context.Context, customerID string, limit int) ([]Order, error) {
	switch {
	case limit <= 0:
		limit = 20
	case limit > 100:
		limit = 100
	}
	orders, err := s.orders.ListByCustomer(ctx, customerID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// History returns the status history of an order, oldest first.
func (s *Service) History(ctx context.Context, number string) ([]StatusEntry, error) {
	o, err := s.Lookup(ctx, number)
	if err != nil {
		return nil, err
	}
	entries, err := s.orders.History(ctx, o.ID)
	if err != nil {
		return nil, errors.Wrap(err, "get history")
	}
	return entries, nil
}
