// Package customer abstracts the host store's view of accounts and orders
// for the restriction predicates.
package customer

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
)

// ErrNoAccount is returned by Store.FindAccountByEmail when no account
// exists for the email.
var ErrNoAccount = errors.New("no account for email")

// PayingStatuses are the order statuses that count as a paying order for
// the returning-customer check.
var PayingStatuses = []string{"completed", "processing"}

// Account is the slice of a customer account the predicates need.
type Account struct {
	ID     string
	Email  string
	Roles  []string
	Paying bool
}

// Store provides account and order lookups.
type Store interface {
	// FindAccountByEmail looks up an account by email, case-insensitively.
	// Returns ErrNoAccount when none exists.
	FindAccountByEmail(ctx context.Context, email string) (*Account, error)

	// FindOrders returns up to limit order IDs whose billing email matches
	// and whose status is one of statuses.
	FindOrders(ctx context.Context, statuses []string, billingEmail string, limit int) ([]string, error)
}

// History answers the returning-customer question shared by the
// customer-type predicates.
type History struct {
	store Store

	// guestOrders widens the check to guest orders matched by billing
	// email. Off by default: that lookup scans the order store and is
	// expensive at scale, so it is an explicit opt-in.
	guestOrders bool
}

// NewHistory creates a History over the given store. includeGuestOrders
// enables the guest-order scan; keep it false unless the store can afford
// an order lookup per validation.
func NewHistory(store Store, includeGuestOrders bool) *History {
	return &History{store: store, guestOrders: includeGuestOrders}
}

// IsReturning reports whether the email belongs to a returning customer:
// an account with at least one paying order, or (when the guest-order scan
// is enabled) at least one completed or processing guest order with a
// matching billing email.
func (h *History) IsReturning(ctx context.Context, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	acc, err := h.store.FindAccountByEmail(ctx, email)
	switch {
	case err == nil:
		if acc.Paying {
			return true, nil
		}
	case !errors.Is(err, ErrNoAccount):
		return false, errors.Wrap(err, "find account")
	}

	if !h.guestOrders {
		return false, nil
	}

	ids, err := h.store.FindOrders(ctx, PayingStatuses, email, 1)
	if err != nil {
		return false, errors.Wrap(err, "find guest orders")
	}
	return len(ids) > 0, nil
}
