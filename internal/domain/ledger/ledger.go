// Package ledger tracks past coupon redemptions for the usage-cap
// restrictions. Rows are append-only: one record per completed order per
// coupon, written at payment-success time and never mutated.
//
// Cap checks are plain count queries with no locking around the later
// write, so two checkouts racing for the last allowed slot of the same
// coupon and key can both pass. Going one over the limit under concurrent
// checkouts is an accepted limitation.
package ledger

import (
	"context"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/coupon-restrictions/internal/domain/restriction"
)

// Record is one redemption row, stored with identity fields already
// canonicalized.
type Record struct {
	OrderID         string
	CouponCode      string
	Email           string
	IP              string
	ShippingAddress string
}

// ShippingAddress holds the raw shipping fields a redemption is recorded
// under before normalization.
type ShippingAddress struct {
	Line1    string
	Line2    string
	City     string
	Postcode string
}

// Normalize collapses the address into its ledger lookup key.
func (a ShippingAddress) Normalize() string {
	return restriction.NormalizeAddress(a.Line1, a.Line2, a.City, a.Postcode)
}

// Store persists and counts redemption records.
type Store interface {
	Insert(ctx context.Context, rec Record) error
	CountByEmail(ctx context.Context, couponCode, scrubbedEmail string) (int, error)
	CountByAddress(ctx context.Context, couponCode, normalizedAddress string) (int, error)
	CountByIP(ctx context.Context, couponCode, ip string) (int, error)
}

// CodeMapper remaps a coupon code onto the canonical code redemptions are
// pooled under, before every store and lookup. It lets a family of variant
// codes share one usage pool. The default is the identity mapping.
type CodeMapper func(code string) string

// Option configures a Ledger.
type Option func(*Ledger)

// WithCodeMapper installs a coupon-code remapping strategy.
func WithCodeMapper(m CodeMapper) Option {
	return func(l *Ledger) {
		if m != nil {
			l.mapCode = m
		}
	}
}

// Ledger canonicalizes identity data and delegates to a Store.
type Ledger struct {
	store   Store
	mapCode CodeMapper
}

// New creates a Ledger over the given store.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:   store,
		mapCode: func(code string) string { return code },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// canonical maps the code and folds it to its case-insensitive identity.
// Coupon codes identify the same coupon regardless of casing, so every
// store and lookup pools under the uppercased form.
func (l *Ledger) canonical(code string) string {
	return strings.ToUpper(strings.TrimSpace(l.mapCode(code)))
}

// Record writes one redemption row for the order and coupon. The caller
// must invoke it at most once per order at payment-success time; the store
// enforces the one-row-per-order-per-coupon invariant, and a duplicate
// write is a no-op.
func (l *Ledger) Record(ctx context.Context, orderID, couponCode, email, ip string, addr ShippingAddress) error {
	rec := Record{
		OrderID:         orderID,
		CouponCode:      l.canonical(couponCode),
		Email:           restriction.ScrubEmail(email),
		IP:              ip,
		ShippingAddress: addr.Normalize(),
	}
	if err := l.store.Insert(ctx, rec); err != nil {
		return errors.Wrap(err, "insert usage record")
	}
	return nil
}

// CountByEmail counts redemptions of the coupon by the scrubbed form of email.
func (l *Ledger) CountByEmail(ctx context.Context, couponCode, email string) (int, error) {
	return l.store.CountByEmail(ctx, l.canonical(couponCode), restriction.ScrubEmail(email))
}

// CountByAddress counts redemptions of the coupon shipped to the address.
func (l *Ledger) CountByAddress(ctx context.Context, couponCode string, addr ShippingAddress) (int, error) {
	return l.store.CountByAddress(ctx, l.canonical(couponCode), addr.Normalize())
}

// CountByIP counts redemptions of the coupon from the client IP.
func (l *Ledger) CountByIP(ctx context.Context, couponCode, ip string) (int, error) {
	return l.store.CountByIP(ctx, l.canonical(couponCode), ip)
}
