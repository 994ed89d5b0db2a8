package validation

import "fmt"

// Phase identifies which validation pass produced a decision.
type Phase string

const (
	// PhaseCart runs when a coupon is applied to the cart, against session
	// identity data. It is best-effort: missing data defers to checkout.
	PhaseCart Phase = "cart"
	// PhaseCheckout runs on checkout submission against posted form data
	// and is authoritative.
	PhaseCheckout Phase = "checkout"
)

// Reason identifies which restriction rejected a coupon.
type Reason string

const (
	ReasonNewCustomersOnly      Reason = "new_customers_only"
	ReasonExistingCustomersOnly Reason = "existing_customers_only"
	ReasonRoleNotAllowed        Reason = "role_not_allowed"
	ReasonCountryNotAllowed     Reason = "country_not_allowed"
	ReasonStateNotAllowed       Reason = "state_not_allowed"
	ReasonPostcodeNotAllowed    Reason = "postcode_not_allowed"
	ReasonUsageLimitEmail       Reason = "usage_limit_similar_email"
	ReasonUsageLimitAddress     Reason = "usage_limit_shipping_address"
	ReasonUsageLimitIP          Reason = "usage_limit_ip"
	// ReasonUsageLimit is the combined reason emitted when the enhanced
	// usage checks short-circuit at their first failure.
	ReasonUsageLimit Reason = "usage_limit"
)

// Message renders the customer-facing text for a rejection of code.
func (r Reason) Message(code string) string {
	switch r {
	case ReasonNewCustomersOnly:
		return fmt.Sprintf("Coupon %q is only valid for new customers.", code)
	case ReasonExistingCustomersOnly:
		return fmt.Sprintf("Coupon %q is only valid for existing customers.", code)
	case ReasonRoleNotAllowed:
		return fmt.Sprintf("Coupon %q is not valid for your account type.", code)
	case ReasonCountryNotAllowed:
		return fmt.Sprintf("Coupon %q is not valid in your country.", code)
	case ReasonStateNotAllowed:
		return fmt.Sprintf("Coupon %q is not valid in your state.", code)
	case ReasonPostcodeNotAllowed:
		return fmt.Sprintf("Coupon %q is not valid for your postcode.", code)
	case ReasonUsageLimitEmail:
		return fmt.Sprintf("Coupon %q usage limit has been reached for this email address.", code)
	case ReasonUsageLimitAddress:
		return fmt.Sprintf("Coupon %q usage limit has been reached for this shipping address.", code)
	case ReasonUsageLimitIP:
		return fmt.Sprintf("Coupon %q usage limit has been reached for your network address.", code)
	default:
		return fmt.Sprintf("Coupon %q usage limit has been reached.", code)
	}
}

// Decision is the terminal outcome for one applied coupon: accepted, or
// rejected with the reasons and customer-facing messages.
type Decision struct {
	Code     string
	Valid    bool
	Reasons  []Reason
	Messages []string
}

func (d *Decision) reject(r Reason) {
	d.Valid = false
	d.Reasons = append(d.Reasons, r)
	d.Messages = append(d.Messages, r.Message(d.Code))
}

// AddressFields is one address block as posted or held in session. Empty
// fields are treated as missing: their sub-checks pass.
type AddressFields struct {
	Line1    string
	Line2    string
	City     string
	State    string
	Postcode string
	Country  string
}

func (a AddressFields) empty() bool {
	return a == AddressFields{}
}

// Input is the per-request validation context: the applied coupon codes
// plus whatever identity data the phase supplies.
type Input struct {
	Codes []string

	// AlreadyInvalid lists codes the host's generic coupon check (expiry,
	// minimum spend) has rejected already; this pipeline skips them.
	AlreadyInvalid []string

	Email    string
	IP       string
	Billing  AddressFields
	Shipping AddressFields
}

func (in Input) empty() bool {
	return in.Email == "" && in.IP == "" && in.Billing.empty() && in.Shipping.empty()
}

func (in Input) skip(code string) bool {
	for _, c := range in.AlreadyInvalid {
		if c == code {
			return true
		}
	}
	return false
}

// Cart is the host-side coupon set the decisions are applied to.
type Cart interface {
	RemoveCoupon(code string)
	AddError(msg string)
	MarkTotalsDirty()
}

// Apply pushes rejections onto the host cart: rejected coupons are removed,
// their messages surfaced, and totals marked for recomputation. Accepted
// coupons are left untouched.
func Apply(decisions []Decision, cart Cart) {
	dirty := false
	for _, d := range decisions {
		if d.Valid {
			continue
		}
		dirty = true
		cart.RemoveCoupon(d.Code)
		for _, msg := range d.Messages {
			cart.AddError(msg)
		}
	}
	if dirty {
		cart.MarkTotalsDirty()
	}
}
