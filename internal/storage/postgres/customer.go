package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/boutique-checkout/internal/domain/customer"
)

const (
	getCustomerSQL = `SELECT id, username, email, phone, total_orders, total_spent
		FROM customers WHERE id = $1`

	insertCustomerSQL = `INSERT INTO customers (id, username, email, phone)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
		RETURNING id, username, email, phone, total_orders, total_spent`

	getAddressSQL = `SELECT id, customer_id, full_name, phone, line1, line2, city, region, postal_code, country
		FROM addresses WHERE id = $1 AND customer_id = $2`
)

var (
	_ customer.Repository  = (*CustomerRepository)(nil)
	_ customer.AddressBook = (*CustomerRepository)(nil)
)

// CustomerRepository implements customer.Repository and customer.AddressBook
// backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// Get returns a customer by id.
func (r *CustomerRepository) Get(ctx context.Context, id string) (*customer.Customer, error) {
	rows, err := r.pool.Query(ctx, getCustomerSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting customer %q: %w", id, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCustomer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer %q: %w", id, err)
	}
	return &c, nil
}

// GetOrCreate inserts c unless a customer with the same id exists. The
// boolean reports whether a row was created.
func (r *CustomerRepository) GetOrCreate(ctx context.Context, c customer.Customer) (*customer.Customer, bool, error) {
	rows, err := r.pool.Query(ctx, insertCustomerSQL, c.ID, c.Username, c.Email, c.Phone)
	if err != nil {
		return nil, false, fmt.Errorf("creating customer %q: %w", c.ID, err)
	}
	created, err := pgx.CollectExactlyOneRow(rows, scanCustomer)
	switch {
	case err == nil:
		return &created, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		existing, err := r.Get(ctx, c.ID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	default:
		return nil, false, fmt.Errorf("creating customer %q: %w", c.ID, err)
	}
}

// GetAddress returns an address only when it belongs to customerID.
func (r *CustomerRepository) GetAddress(ctx context.Context, customerID, addressID string) (*customer.Address, error) {
	var a customer.Address
	err := r.pool.QueryRow(ctx, getAddressSQL, addressID, customerID).Scan(
		&a.ID, &a.CustomerID, &a.FullName, &a.Phone, &a.Line1, &a.Line2,
		&a.City, &a.Region, &a.PostalCode, &a.Country,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrAddressNotFound
		}
		return nil, fmt.Errorf("getting address %q: %w", addressID, err)
	}
	return &a, nil
}

func scanCustomer(row pgx.CollectableRow) (customer.Customer, error) {
	var c customer.Customer
	err := row.Scan(&c.ID, &c.Username, &c.Email, &c.Phone, &c.TotalOrders, &c.TotalSpent)
	return c, err
}
