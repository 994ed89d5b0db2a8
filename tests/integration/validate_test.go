//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestValidateUnrestrictedCoupon(t *testing.T) {
	resp := doPost(t, "/api/coupons/validate", validateRequest{
		Phase: "checkout",
		Codes: []string{"PLAIN10"},
		Email: "anyone@example.com",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body := decodeJSON[validateResponse](t, resp)
	if len(body.Decisions) != 1 {
		t.Fatalf("expected 1 decision, got %d", len(body.Decisions))
	}
	if d := body.Decisions[0]; !d.Valid || d.Code != "PLAIN10" {
		t.Fatalf("unrestricted coupon rejected: %+v", d)
	}
}

func TestValidateBadPhase(t *testing.T) {
	resp := doPost(t, "/api/coupons/validate", validateRequest{
		Phase: "payment",
		Codes: []string{"X"},
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	body := decodeJSON[errorResponse](t, resp)
	if body.Message == "" {
		t.Fatal("expected error message")
	}
}

func TestCountryRestriction(t *testing.T) {
	putRestriction(t, "USONLY", restrictionBody{
		LocationEnabled: true,
		Countries:       []string{"US"},
	})

	resp := doPost(t, "/api/coupons/validate", validateRequest{
		Phase:    "checkout",
		Codes:    []string{"USONLY"},
		Email:    "buyer@example.com",
		Shipping: &addressBody{Country: "CA"},
	})
	defer resp.Body.Close()

	body := decodeJSON[validateResponse](t, resp)
	d := body.Decisions[0]
	if d.Valid {
		t.Fatal("expected rejection for non-matching country")
	}
	if len(d.Reasons) != 1 || d.Reasons[0] != "country_not_allowed" {
		t.Fatalf("unexpected reasons: %v", d.Reasons)
	}

	resp2 := doPost(t, "/api/coupons/validate", validateRequest{
		Phase:    "checkout",
		Codes:    []string{"USONLY"},
		Email:    "buyer@example.com",
		Shipping: &addressBody{Country: "us"},
	})
	defer resp2.Body.Close()

	body2 := decodeJSON[validateResponse](t, resp2)
	if !body2.Decisions[0].Valid {
		t.Fatalf("country match is case-insensitive: %+v", body2.Decisions[0])
	}
}

func TestNewCustomerRestriction(t *testing.T) {
	newType := "new"
	putRestriction(t, "WELCOME5", restrictionBody{CustomerType: &newType})

	// No account on file: accepted.
	resp := doPost(t, "/api/coupons/validate", validateRequest{
		Phase: "checkout",
		Codes: []string{"WELCOME5"},
		Email: "fresh@example.com",
	})
	defer resp.Body.Close()
	if d := decodeJSON[validateResponse](t, resp).Decisions[0]; !d.Valid {
		t.Fatalf("first-time buyer rejected: %+v", d)
	}

	// Paying account appears: rejected from then on.
	execSQL(t, `INSERT INTO accounts (id, email, roles, paying)
		VALUES ('acc-int-1', 'fresh@example.com', '{customer}', TRUE)
		ON CONFLICT (id) DO NOTHING`)
	t.Cleanup(func() { execSQL(t, `DELETE FROM accounts WHERE id = 'acc-int-1'`) })

	resp2 := doPost(t, "/api/coupons/validate", validateRequest{
		Phase: "checkout",
		Codes: []string{"WELCOME5"},
		Email: "fresh@example.com",
	})
	defer resp2.Body.Close()
	d := decodeJSON[validateResponse](t, resp2).Decisions[0]
	if d.Valid {
		t.Fatal("expected rejection for returning customer")
	}
	if len(d.Reasons) != 1 || d.Reasons[0] != "new_customers_only" {
		t.Fatalf("unexpected reasons: %v", d.Reasons)
	}
}

func TestRedemptionFeedsUsageCap(t *testing.T) {
	putRestriction(t, "ONEPERUSER", restrictionBody{
		PreventSimilar:    true,
		UsageLimitPerUser: 1,
	})

	// First checkout passes: no usage yet.
	resp := doPost(t, "/api/coupons/validate", validateRequest{
		Phase: "checkout",
		Codes: []string{"ONEPERUSER"},
		Email: "repeat.buyer@gmail.com",
	})
	defer resp.Body.Close()
	if d := decodeJSON[validateResponse](t, resp).Decisions[0]; !d.Valid {
		t.Fatalf("first use rejected: %+v", d)
	}

	// Payment success records the redemption.
	rresp := doPost(t, "/api/redemptions", redemptionRequest{
		OrderID:     "order-int-1",
		CouponCodes: []string{"ONEPERUSER"},
		Email:       "repeat.buyer@gmail.com",
	})
	defer rresp.Body.Close()
	if rresp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rresp.StatusCode)
	}
	if rec := decodeJSON[redemptionResponse](t, rresp); rec.Recorded != 1 {
		t.Fatalf("expected 1 recorded, got %d", rec.Recorded)
	}

	// A plus-alias of the same inbox hits the cap.
	resp2 := doPost(t, "/api/coupons/validate", validateRequest{
		Phase: "checkout",
		Codes: []string{"ONEPERUSER"},
		Email: "repeatbuyer+again@gmail.com",
	})
	defer resp2.Body.Close()
	d := decodeJSON[validateResponse](t, resp2).Decisions[0]
	if d.Valid {
		t.Fatal("expected rejection for email alias over the cap")
	}
	if len(d.Reasons) != 1 || d.Reasons[0] != "usage_limit" {
		t.Fatalf("unexpected reasons: %v", d.Reasons)
	}

	// Replaying the payment hook is a no-op.
	rresp2 := doPost(t, "/api/redemptions", redemptionRequest{
		OrderID:     "order-int-1",
		CouponCodes: []string{"ONEPERUSER"},
		Email:       "repeat.buyer@gmail.com",
	})
	defer rresp2.Body.Close()
	if rresp2.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 on replay, got %d", rresp2.StatusCode)
	}
}

func TestRestrictionRoundTrip(t *testing.T) {
	existing := "existing"
	putRestriction(t, "LOYAL15", restrictionBody{
		CustomerType:    &existing,
		LocationEnabled: true,
		AddressSource:   "billing",
		Postcodes:       []string{"787*"},
	})

	resp := doGet(t, "/api/coupons/LOYAL15/restrictions")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body := decodeJSON[restrictionBody](t, resp)
	if body.CustomerType == nil || *body.CustomerType != "existing" {
		t.Fatalf("customer_type not round-tripped: %+v", body)
	}
	if body.AddressSource != "billing" || len(body.Postcodes) != 1 {
		t.Fatalf("location config not round-tripped: %+v", body)
	}
	if body.Roles != nil {
		t.Fatalf("roles should stay absent, got %v", body.Roles)
	}
}

func TestCartPhaseDefersWithoutIdentity(t *testing.T) {
	newType := "new"
	putRestriction(t, "CARTDEFER", restrictionBody{CustomerType: &newType})

	resp := doPost(t, "/api/coupons/validate", validateRequest{
		Phase: "cart",
		Codes: []string{"CARTDEFER"},
	})
	defer resp.Body.Close()

	if d := decodeJSON[validateResponse](t, resp).Decisions[0]; !d.Valid {
		t.Fatalf("cart pass without identity must defer, got %+v", d)
	}
}
