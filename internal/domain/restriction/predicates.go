package restriction

import "strings"

// Predicates are pure checks of one restriction against one observed value.
// Each returns true when the restriction is satisfied or not configured,
// and false when violated. An empty configured set behaves like an absent
// one: it never rejects.

// NewCustomerOK checks the new-customer restriction against whether the
// email belongs to a returning customer.
func NewCustomerOK(cfg Config, returning bool) bool {
	t, ok := cfg.CustomerType.Get()
	return !ok || t != CustomerNew || !returning
}

// ExistingCustomerOK checks the existing-customer restriction.
func ExistingCustomerOK(cfg Config, returning bool) bool {
	t, ok := cfg.CustomerType.Get()
	return !ok || t != CustomerExisting || returning
}

// RoleOK checks the role restriction against the account's roles. An empty
// roles slice means the customer has no account; such guests pass only when
// RoleGuest is in the restricted set. Otherwise the restriction is
// satisfied when the account holds at least one allowed role.
func RoleOK(cfg Config, roles []string) bool {
	allowed, ok := cfg.Roles.Get()
	if !ok || len(allowed) == 0 {
		return true
	}
	if len(roles) == 0 {
		roles = []string{RoleGuest}
	}
	for _, have := range roles {
		for _, want := range allowed {
			if strings.EqualFold(have, want) {
				return true
			}
		}
	}
	return false
}

// CountryOK checks the country restriction; codes compare case-insensitively.
func CountryOK(cfg Config, country string) bool {
	return memberFold(cfg.Countries, country)
}

// StateOK checks the state restriction; codes compare case-insensitively.
func StateOK(cfg Config, state string) bool {
	return memberFold(cfg.States, state)
}

// PostcodeOK checks the postcode restriction. A candidate passes when it
// matches the exact-entry list, or any entry carrying a '*' wildcard.
func PostcodeOK(cfg Config, postcode string) bool {
	entries, ok := cfg.Postcodes.Get()
	if !ok || len(entries) == 0 {
		return true
	}
	candidate := strings.ToUpper(strings.TrimSpace(postcode))
	for _, entry := range entries {
		entry = strings.ToUpper(strings.TrimSpace(entry))
		if entry == "" {
			continue
		}
		if star := strings.IndexByte(entry, '*'); star >= 0 {
			if wildcardMatch(entry, star, candidate) {
				return true
			}
			continue
		}
		if entry == candidate {
			return true
		}
	}
	return false
}

// UsageCapOK checks a usage-cap restriction against an observed redemption
// count. A zero limit means unlimited.
func UsageCapOK(count, limit int) bool {
	return limit == 0 || count < limit
}

func memberFold(restriction Opt[[]string], value string) bool {
	allowed, ok := restriction.Get()
	if !ok || len(allowed) == 0 {
		return true
	}
	value = strings.TrimSpace(value)
	for _, v := range allowed {
		if strings.EqualFold(strings.TrimSpace(v), value) {
			return true
		}
	}
	return false
}

// wildcardMatch matches candidate against a pattern whose single '*' sits
// at index star, treating the star as "any run of characters".
func wildcardMatch(pattern string, star int, candidate string) bool {
	prefix, suffix := pattern[:star], pattern[star+1:]
	return len(candidate) >= len(prefix)+len(suffix) &&
		strings.HasPrefix(candidate, prefix) &&
		strings.HasSuffix(candidate, suffix)
}
