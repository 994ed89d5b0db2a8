package restriction

// CustomerType selects which customers a coupon is limited to.
type CustomerType string

const (
	// CustomerNew limits the coupon to emails with no prior paying order.
	CustomerNew CustomerType = "new"
	// CustomerExisting limits the coupon to returning customers.
	CustomerExisting CustomerType = "existing"
)

// AddressSource selects which address block location restrictions are
// checked against.
type AddressSource string

const (
	AddressShipping AddressSource = "shipping"
	AddressBilling  AddressSource = "billing"
)

// RoleGuest is the synthetic role matched when no account exists for the
// customer's email.
const RoleGuest = "guest"

// Config describes the restrictions attached to a single coupon. Every
// field is optional; an unset field means "no restriction of this kind",
// which is distinct from a restriction configured with an empty set.
//
// Config is written only by the admin surface and is read-only during
// validation.
type Config struct {
	// CustomerType limits redemption to new or existing customers.
	CustomerType Opt[CustomerType]

	// Roles limits redemption to accounts holding at least one of the
	// listed roles. RoleGuest matches customers without an account.
	Roles Opt[[]string]

	// LocationEnabled turns the country/state/postcode checks on. The
	// individual location restrictions are ignored while it is false.
	LocationEnabled bool

	// Source selects the address block (shipping or billing) the location
	// checks read. Defaults to shipping when empty.
	Source AddressSource

	// Countries and States hold allowed codes, compared case-insensitively.
	Countries Opt[[]string]
	States    Opt[[]string]

	// Postcodes holds allowed postcodes; an entry may contain a single '*'
	// wildcard matching any run of characters.
	Postcodes Opt[[]string]

	// PreventSimilarEmails enables the similar-email usage cap: redemptions
	// are counted per scrubbed email, capped at UsageLimitPerUser.
	PreventSimilarEmails bool

	// UsageLimitPerUser caps redemptions per scrubbed email when
	// PreventSimilarEmails is set. Zero means unlimited.
	UsageLimitPerUser int

	// UsageLimitPerAddress caps redemptions per normalized shipping
	// address. Zero means unlimited.
	UsageLimitPerAddress int

	// UsageLimitPerIP caps redemptions per client IP. Zero means unlimited.
	UsageLimitPerIP int
}

// AddressSourceOrDefault returns the configured address source, defaulting
// to shipping.
func (c Config) AddressSourceOrDefault() AddressSource {
	if c.Source == AddressBilling {
		return AddressBilling
	}
	return AddressShipping
}

// HasEnhancedUsage reports whether any usage-cap restriction is configured,
// which is what requires the usage ledger at all.
func (c Config) HasEnhancedUsage() bool {
	if c.PreventSimilarEmails && c.UsageLimitPerUser > 0 {
		return true
	}
	return c.UsageLimitPerAddress > 0 || c.UsageLimitPerIP > 0
}

// Restricted reports whether the coupon carries any restriction this
// pipeline evaluates. Unrestricted coupons are accepted without further
// lookups.
func (c Config) Restricted() bool {
	return c.CustomerType.Set ||
		c.Roles.Set ||
		c.LocationEnabled ||
		c.HasEnhancedUsage()
}
