package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/coupon-restrictions/internal/domain/ledger"
)

const (
	insertUsageSQL = `INSERT INTO coupon_usages (order_id, coupon_code, email, ip, shipping_address)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id, coupon_code) DO NOTHING`

	countByEmailSQL = `SELECT COUNT(*) FROM coupon_usages
		WHERE coupon_code = $1 AND email = $2 AND email <> ''`

	countByAddressSQL = `SELECT COUNT(*) FROM coupon_usages
		WHERE coupon_code = $1 AND shipping_address = $2 AND shipping_address <> ''`

	countByIPSQL = `SELECT COUNT(*) FROM coupon_usages
		WHERE coupon_code = $1 AND ip = $2 AND ip <> ''`
)

var _ ledger.Store = (*LedgerRepository)(nil)

// LedgerRepository persists usage records in the append-only coupon_usages
// table. The unique (order_id, coupon_code) index enforces the
// one-record-per-order-per-coupon invariant; a replayed payment hook
// becomes a no-op insert.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository returns a LedgerRepository using the given pool.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// Insert appends one usage record.
func (r *LedgerRepository) Insert(ctx context.Context, rec ledger.Record) error {
	_, err := r.pool.Exec(ctx, insertUsageSQL,
		rec.OrderID, rec.CouponCode, rec.Email, rec.IP, rec.ShippingAddress)
	if err != nil {
		return errors.Wrapf(err, "insert usage for order %q", rec.OrderID)
	}
	return nil
}

// CountByEmail counts usages of the coupon by a scrubbed email.
func (r *LedgerRepository) CountByEmail(ctx context.Context, couponCode, scrubbedEmail string) (int, error) {
	return r.count(ctx, countByEmailSQL, couponCode, scrubbedEmail)
}

// CountByAddress counts usages of the coupon shipped to a normalized address.
func (r *LedgerRepository) CountByAddress(ctx context.Context, couponCode, normalizedAddress string) (int, error) {
	return r.count(ctx, countByAddressSQL, couponCode, normalizedAddress)
}

// CountByIP counts usages of the coupon from a client IP.
func (r *LedgerRepository) CountByIP(ctx context.Context, couponCode, ip string) (int, error) {
	return r.count(ctx, countByIPSQL, couponCode, ip)
}

func (r *LedgerRepository) count(ctx context.Context, sql, couponCode, key string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, sql, couponCode, key).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "count usages for %q", couponCode)
	}
	return n, nil
}
