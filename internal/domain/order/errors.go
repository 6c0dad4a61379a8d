package order

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

var (
	// ErrEmptyCart is returned when checkout is attempted with no items.
	ErrEmptyCart = errors.New("your cart is empty")
	// ErrInvalidCart is returned when at least one cart line cannot be fulfilled.
	ErrInvalidCart = errors.New("some items in your cart cannot be ordered")
	// ErrInvalidAddress is returned when the address is missing or not owned by the customer.
	ErrInvalidAddress = errors.New("invalid shipping address")
	// ErrNegativeTax is returned for a negative tax amount.
	ErrNegativeTax = errors.New("tax amount cannot be negative")
	// ErrNotFound is returned when an order does not exist or is not visible to the caller.
	ErrNotFound = errors.New("order not found")
	// ErrInvalidTransition is matched by every TransitionError.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrOrderCancelled is returned when paying a cancelled order.
	ErrOrderCancelled = errors.New("order is cancelled")
	// ErrCreateFailed is matched by infrastructure failures while placing an
	// order. Its message is safe to show to customers.
	ErrCreateFailed = errors.New("an error occurred while creating your order, please try again")
)

// ValidationError is a checkout rejection the customer can fix. Lines holds
// one message per problematic cart line.
type ValidationError struct {
	Message string
	Lines   []string
	Err     error
}

func (e *ValidationError) Error() string {
	if len(e.Lines) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Lines, "; ")
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(err error) *ValidationError {
	return &ValidationError{Message: err.Error(), Err: err}
}

// TransitionError reports a status change the state machine forbids.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot change order status from %s to %s", e.From, e.To)
}

// Is makes TransitionError match ErrInvalidTransition.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// createFailure keeps the cause of an infrastructure failure for logs while
// matching ErrCreateFailed.
type createFailure struct {
	cause error
}

func (e *createFailure) Error() string {
	return "create order: " + e.cause.Error()
}

func (e *createFailure) Unwrap() error {
	return e.cause
}

func (e *createFailure) Is(target error) bool {
	return target == ErrCreateFailed
}
