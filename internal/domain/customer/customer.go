// Package customer holds customer profiles, their purchase statistics and
// their address book.
package customer

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a customer profile does not exist.
	ErrNotFound = errors.New("customer not found")
	// ErrAddressNotFound is returned when an address does not exist or
	// belongs to another customer.
	ErrAddressNotFound = errors.New("address not found")
)

// Customer is a shopper profile with lifetime order statistics.
type Customer struct {
	ID          string
	Username    string
	Email       string
	Phone       string
	TotalOrders int
	TotalSpent  decimal.Decimal
}

// Address is a delivery address owned by one customer.
type Address struct {
	ID         string
	CustomerID string
	FullName   string
	Phone      string
	Line1      string
	Line2      string
	City       string
	Region     string
	PostalCode string
	Country    string
}

// Repository manages customer profiles.
type Repository interface {
	Get(ctx context.Context, id string) (*Customer, error)
	// GetOrCreate returns the profile with c.ID, inserting c when it does
	// not exist yet. The boolean is true when a row was created.
	GetOrCreate(ctx context.Context, c Customer) (*Customer, bool, error)
}

// AddressBook looks up addresses scoped to their owner.
type AddressBook interface {
	GetAddress(ctx context.Context, customerID, addressID string) (*Address, error)
}
