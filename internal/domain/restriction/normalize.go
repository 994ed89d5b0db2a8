package restriction

import (
	"net/mail"
	"strings"
)

// ScrubEmail canonicalizes an email address into the dedup key used by the
// similar-email usage cap. The local part is lowercased and trimmed,
// plus-aliases are stripped, and Gmail dot-aliases collapse to one key.
//
// The input must already be a syntactically valid address (see ValidEmail);
// anything without an '@' is returned lowercased as-is.
func ScrubEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))

	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	local, domain := email[:at], email[at+1:]

	if plus := strings.Index(local, "+"); plus >= 0 {
		local = local[:plus]
	}
	if domain == "gmail.com" {
		local = strings.ReplaceAll(local, ".", "")
	}

	return local + "@" + domain
}

// NormalizeAddress collapses an address into an equality key: the trimmed
// fields concatenated, everything but ASCII letters and digits removed,
// uppercased. Two differently punctuated spellings of one address normalize
// identically; two distinct real addresses could in theory collide, which
// is an accepted trade-off for a dedup key.
func NormalizeAddress(line1, line2, city, postcode string) string {
	var b strings.Builder
	for _, part := range []string{line1, line2, city, postcode} {
		for _, r := range strings.TrimSpace(part) {
			switch {
			case r >= 'a' && r <= 'z':
				b.WriteRune(r - ('a' - 'A'))
			case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

// ValidEmail reports whether s parses as a bare RFC 5322 address.
// The pipeline skips email-dependent predicates for invalid input rather
// than rejecting the coupon.
func ValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
