package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/coupon-restrictions/internal/domain/customer"
)

const (
	findAccountSQL = `SELECT id, email, roles, paying FROM accounts
		WHERE LOWER(email) = LOWER($1)`

	findOrdersSQL = `SELECT id FROM orders
		WHERE LOWER(billing_email) = LOWER($1) AND status = ANY($2)
		ORDER BY created_at DESC
		LIMIT $3`

	findRedeemedOrdersSQL = `SELECT id, billing_email, customer_ip,
			ship_line1, ship_line2, ship_city, ship_postcode, total
		FROM orders
		WHERE UPPER($1) = ANY(SELECT UPPER(c) FROM unnest(coupon_codes) AS c)
			AND status = ANY($2)
		ORDER BY created_at`
)

var _ customer.Store = (*CustomerRepository)(nil)

// CustomerRepository reads the host-store views of accounts and orders the
// predicates and the ledger backfill consult. Validation never writes here.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository using the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// FindAccountByEmail looks up an account case-insensitively by email.
// Returns customer.ErrNoAccount when none exists.
func (r *CustomerRepository) FindAccountByEmail(ctx context.Context, email string) (*customer.Account, error) {
	var acc customer.Account
	err := r.pool.QueryRow(ctx, findAccountSQL, email).
		Scan(&acc.ID, &acc.Email, &acc.Roles, &acc.Paying)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNoAccount
		}
		return nil, errors.Wrapf(err, "find account %q", email)
	}
	return &acc, nil
}

// FindOrders returns up to limit order IDs matching the billing email and
// one of the given statuses, newest first.
func (r *CustomerRepository) FindOrders(ctx context.Context, statuses []string, billingEmail string, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx, findOrdersSQL, billingEmail, statuses, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "find orders for %q", billingEmail)
	}

	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var id string
		err := row.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "find orders for %q", billingEmail)
	}
	return ids, nil
}

// RedeemedOrder is a historical order that redeemed a coupon, with the
// identity fields the ledger backfill records.
type RedeemedOrder struct {
	OrderID      string
	BillingEmail string
	IP           string
	ShipLine1    string
	ShipLine2    string
	ShipCity     string
	ShipPostcode string
	Total        decimal.Decimal
}

// FindOrdersWithCoupon returns every paying order that redeemed the given
// coupon code, oldest first. Used by the ledger backfill when enhanced
// restrictions are enabled on a coupon after the fact.
func (r *CustomerRepository) FindOrdersWithCoupon(ctx context.Context, couponCode string) ([]RedeemedOrder, error) {
	rows, err := r.pool.Query(ctx, findRedeemedOrdersSQL, couponCode, customer.PayingStatuses)
	if err != nil {
		return nil, errors.Wrapf(err, "find orders with coupon %q", couponCode)
	}

	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (RedeemedOrder, error) {
		var o RedeemedOrder
		err := row.Scan(&o.OrderID, &o.BillingEmail, &o.IP,
			&o.ShipLine1, &o.ShipLine2, &o.ShipCity, &o.ShipPostcode, &o.Total)
		return o, err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "find orders with coupon %q", couponCode)
	}
	return orders, nil
}
