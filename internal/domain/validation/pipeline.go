// Package validation composes the restriction predicates into the two
// validation passes the checkout host triggers: a best-effort cart pass
// against session data, and an authoritative checkout pass against posted
// form data.
package validation

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/coupon-restrictions/internal/domain/customer"
	"github.com/xenking/coupon-restrictions/internal/domain/ledger"
	"github.com/xenking/coupon-restrictions/internal/domain/restriction"
)

// ConfigStore loads a coupon's restriction configuration. A coupon without
// configuration yields a zero Config, not an error.
type ConfigStore interface {
	Get(ctx context.Context, couponCode string) (restriction.Config, error)
}

// Accounts looks up the account behind an email for the role predicate.
type Accounts interface {
	FindAccountByEmail(ctx context.Context, email string) (*customer.Account, error)
}

// History answers the returning-customer question.
type History interface {
	IsReturning(ctx context.Context, email string) (bool, error)
}

// Usage counts past redemptions for the usage-cap predicates.
type Usage interface {
	CountByEmail(ctx context.Context, couponCode, email string) (int, error)
	CountByAddress(ctx context.Context, couponCode string, addr ledger.ShippingAddress) (int, error)
	CountByIP(ctx context.Context, couponCode, ip string) (int, error)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithReportAll makes the enhanced usage checks report every failing cap
// independently instead of stopping at the first with a combined message.
func WithReportAll() Option {
	return func(p *Pipeline) { p.reportAll = true }
}

// Pipeline evaluates the applicable restriction predicates for each applied
// coupon and produces a per-coupon Decision. Coupons are independent: a
// rejection never halts evaluation of the remaining codes.
type Pipeline struct {
	configs  ConfigStore
	accounts Accounts
	history  History
	usage    Usage

	// reportAll switches the enhanced-usage group from short-circuit with
	// one combined message to one message per failing cap.
	reportAll bool
}

// New creates a Pipeline with its collaborators.
func New(configs ConfigStore, accounts Accounts, history History, usage Usage, opts ...Option) *Pipeline {
	p := &Pipeline{
		configs:  configs,
		accounts: accounts,
		history:  history,
		usage:    usage,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Validate runs the pass for the given phase. A store failure aborts the
// whole pass with an error: the pipeline cannot decide safely, and the
// caller keeps prior coupon validity unchanged.
func (p *Pipeline) Validate(ctx context.Context, phase Phase, in Input) ([]Decision, error) {
	if phase == PhaseCheckout {
		return p.ValidateCheckout(ctx, in)
	}
	return p.ValidateCart(ctx, in)
}

// ValidateCart is the pre-checkout pass, run when a coupon is applied to
// the cart. With no session identity at all it accepts everything and
// defers to the checkout pass. Usage caps are not checked here.
func (p *Pipeline) ValidateCart(ctx context.Context, in Input) ([]Decision, error) {
	decisions := make([]Decision, 0, len(in.Codes))
	for _, code := range in.Codes {
		cfg, err := p.configs.Get(ctx, code)
		if err != nil {
			return nil, errors.Wrapf(err, "load restrictions for %q", code)
		}

		d := Decision{Code: code, Valid: true}
		if !cfg.Restricted() || in.empty() {
			decisions = append(decisions, d)
			continue
		}

		if err := p.checkIdentity(ctx, cfg, in, &d); err != nil {
			return nil, err
		}
		p.checkLocation(cfg, in, &d)

		decisions = append(decisions, d)
	}
	return decisions, nil
}

// ValidateCheckout is the authoritative post-checkout pass, run against the
// posted form data. Codes the host's own generic coupon check already
// rejected are skipped.
func (p *Pipeline) ValidateCheckout(ctx context.Context, in Input) ([]Decision, error) {
	decisions := make([]Decision, 0, len(in.Codes))
	for _, code := range in.Codes {
		if in.skip(code) {
			continue
		}

		cfg, err := p.configs.Get(ctx, code)
		if err != nil {
			return nil, errors.Wrapf(err, "load restrictions for %q", code)
		}

		d := Decision{Code: code, Valid: true}
		if !cfg.Restricted() {
			decisions = append(decisions, d)
			continue
		}

		if err := p.checkIdentity(ctx, cfg, in, &d); err != nil {
			return nil, err
		}
		p.checkLocation(cfg, in, &d)
		if err := p.checkUsageCaps(ctx, cfg, code, in, &d); err != nil {
			return nil, err
		}

		decisions = append(decisions, d)
	}
	return decisions, nil
}

// checkIdentity evaluates the email-dependent predicates: customer type and
// role. A missing or malformed email skips them entirely; it never rejects.
func (p *Pipeline) checkIdentity(ctx context.Context, cfg restriction.Config, in Input, d *Decision) error {
	if !restriction.ValidEmail(in.Email) {
		return nil
	}

	if cfg.CustomerType.Set {
		returning, err := p.history.IsReturning(ctx, in.Email)
		if err != nil {
			return errors.Wrapf(err, "customer history for %q", d.Code)
		}
		if !restriction.NewCustomerOK(cfg, returning) {
			d.reject(ReasonNewCustomersOnly)
		}
		if !restriction.ExistingCustomerOK(cfg, returning) {
			d.reject(ReasonExistingCustomersOnly)
		}
	}

	if cfg.Roles.Set {
		roles, err := p.accountRoles(ctx, in.Email)
		if err != nil {
			return errors.Wrapf(err, "account lookup for %q", d.Code)
		}
		if !restriction.RoleOK(cfg, roles) {
			d.reject(ReasonRoleNotAllowed)
		}
	}

	return nil
}

func (p *Pipeline) accountRoles(ctx context.Context, email string) ([]string, error) {
	acc, err := p.accounts.FindAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, customer.ErrNoAccount) {
			return nil, nil
		}
		return nil, err
	}
	return acc.Roles, nil
}

// checkLocation evaluates country, state, and postcode against the address
// block the configuration selects. Each missing field passes its own
// sub-check; only a present, non-matching value rejects.
func (p *Pipeline) checkLocation(cfg restriction.Config, in Input, d *Decision) {
	if !cfg.LocationEnabled {
		return
	}

	addr := in.Shipping
	if cfg.AddressSourceOrDefault() == restriction.AddressBilling {
		addr = in.Billing
	}

	if addr.Country != "" && !restriction.CountryOK(cfg, addr.Country) {
		d.reject(ReasonCountryNotAllowed)
	}
	if addr.State != "" && !restriction.StateOK(cfg, addr.State) {
		d.reject(ReasonStateNotAllowed)
	}
	if addr.Postcode != "" && !restriction.PostcodeOK(cfg, addr.Postcode) {
		d.reject(ReasonPostcodeNotAllowed)
	}
}

// checkUsageCaps evaluates the enhanced usage restrictions in their fixed
// order: similar email, then shipping address, then IP. By default the
// group short-circuits at the first exceeded cap and emits one combined
// message; with WithReportAll every exceeded cap reports separately.
func (p *Pipeline) checkUsageCaps(ctx context.Context, cfg restriction.Config, code string, in Input, d *Decision) error {
	if !cfg.HasEnhancedUsage() {
		return nil
	}

	type capCheck struct {
		reason Reason
		active bool
		count  func() (int, error)
		limit  int
	}

	shipping := ledger.ShippingAddress{
		Line1:    in.Shipping.Line1,
		Line2:    in.Shipping.Line2,
		City:     in.Shipping.City,
		Postcode: in.Shipping.Postcode,
	}

	checks := []capCheck{
		{
			reason: ReasonUsageLimitEmail,
			active: cfg.PreventSimilarEmails && cfg.UsageLimitPerUser > 0 && restriction.ValidEmail(in.Email),
			count:  func() (int, error) { return p.usage.CountByEmail(ctx, code, in.Email) },
			limit:  cfg.UsageLimitPerUser,
		},
		{
			reason: ReasonUsageLimitAddress,
			active: cfg.UsageLimitPerAddress > 0 && shipping.Normalize() != "",
			count:  func() (int, error) { return p.usage.CountByAddress(ctx, code, shipping) },
			limit:  cfg.UsageLimitPerAddress,
		},
		{
			reason: ReasonUsageLimitIP,
			active: cfg.UsageLimitPerIP > 0 && in.IP != "",
			count:  func() (int, error) { return p.usage.CountByIP(ctx, code, in.IP) },
			limit:  cfg.UsageLimitPerIP,
		},
	}

	for _, c := range checks {
		if !c.active {
			continue
		}
		count, err := c.count()
		if err != nil {
			return errors.Wrapf(err, "usage count for %q", code)
		}
		if restriction.UsageCapOK(count, c.limit) {
			continue
		}
		if p.reportAll {
			d.reject(c.reason)
			continue
		}
		d.reject(ReasonUsageLimit)
		return nil
	}
	return nil
}
