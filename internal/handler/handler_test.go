package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/coupon-restrictions/internal/domain/customer"
	"github.com/xenking/coupon-restrictions/internal/domain/ledger"
	"github.com/xenking/coupon-restrictions/internal/domain/restriction"
	"github.com/xenking/coupon-restrictions/internal/domain/validation"
)

// --- In-memory collaborators ---

type memRestrictions struct {
	cfgs map[string]restriction.Config
}

func (m *memRestrictions) Get(_ context.Context, code string) (restriction.Config, error) {
	return m.cfgs[strings.ToUpper(code)], nil
}

func (m *memRestrictions) Put(_ context.Context, code string, cfg restriction.Config) error {
	m.cfgs[strings.ToUpper(code)] = cfg
	return nil
}

func (m *memRestrictions) Delete(_ context.Context, code string) error {
	delete(m.cfgs, strings.ToUpper(code))
	return nil
}

type memCustomers struct {
	accounts map[string]*customer.Account
}

func (m *memCustomers) FindAccountByEmail(_ context.Context, email string) (*customer.Account, error) {
	acc, ok := m.accounts[strings.ToLower(email)]
	if !ok {
		return nil, customer.ErrNoAccount
	}
	return acc, nil
}

func (m *memCustomers) FindOrders(_ context.Context, _ []string, _ string, _ int) ([]string, error) {
	return nil, nil
}

type memLedgerStore struct {
	records   []ledger.Record
	insertErr error
}

func (m *memLedgerStore) Insert(_ context.Context, rec ledger.Record) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	for _, r := range m.records {
		if r.OrderID == rec.OrderID && r.CouponCode == rec.CouponCode {
			return nil
		}
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *memLedgerStore) count(match func(ledger.Record) bool) (int, error) {
	n := 0
	for _, r := range m.records {
		if match(r) {
			n++
		}
	}
	return n, nil
}

func (m *memLedgerStore) CountByEmail(_ context.Context, code, email string) (int, error) {
	return m.count(func(r ledger.Record) bool { return r.CouponCode == code && r.Email == email })
}

func (m *memLedgerStore) CountByAddress(_ context.Context, code, addr string) (int, error) {
	return m.count(func(r ledger.Record) bool { return r.CouponCode == code && r.ShippingAddress == addr })
}

func (m *memLedgerStore) CountByIP(_ context.Context, code, ip string) (int, error) {
	return m.count(func(r ledger.Record) bool { return r.CouponCode == code && r.IP == ip })
}

// --- Test fixture ---

type fixture struct {
	mux          *http.ServeMux
	restrictions *memRestrictions
	customers    *memCustomers
	store        *memLedgerStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	restrictions := &memRestrictions{cfgs: map[string]restriction.Config{}}
	customers := &memCustomers{accounts: map[string]*customer.Account{}}
	store := &memLedgerStore{}

	usageLedger := ledger.New(store)
	pipeline := validation.New(
		restrictions,
		customers,
		customer.NewHistory(customers, false),
		usageLedger,
	)

	h, err := NewHandler(HandlerConfig{}, pipeline, usageLedger, restrictions)
	require.NoError(t, err)

	mux := http.NewServeMux()
	h.Routes(mux)
	return &fixture{mux: mux, restrictions: restrictions, customers: customers, store: store}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

type decisionJSON struct {
	Code     string   `json:"code"`
	Valid    bool     `json:"valid"`
	Reasons  []string `json:"reasons"`
	Messages []string `json:"messages"`
}

type validateResponse struct {
	Decisions []decisionJSON `json:"decisions"`
}

func decodeDecisions(t *testing.T, rec *httptest.ResponseRecorder) []decisionJSON {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp validateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Decisions
}

func checkoutBody(codes ...string) map[string]any {
	return map[string]any{
		"phase": "checkout",
		"codes": codes,
		"email": "buyer@example.com",
		"ip":    "203.0.113.9",
		"billing": map[string]string{
			"line1": "1 Billing Way", "city": "Austin", "state": "TX",
			"postcode": "78701", "country": "US",
		},
		"shipping": map[string]string{
			"line1": "123 Main St", "line2": "Apt 1", "city": "Test City",
			"state": "TX", "postcode": "78703", "country": "US",
		},
	}
}

// --- Tests ---

func TestValidate_BadRequests(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/coupons/validate", map[string]any{
		"phase": "later", "codes": []string{"A"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/coupons/validate", map[string]any{
		"phase": "checkout",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/coupons/validate", strings.NewReader("{not json"))
	rec = httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidate_CountryRestriction(t *testing.T) {
	f := newFixture(t)
	f.restrictions.cfgs["USONLY"] = restriction.Config{
		LocationEnabled: true,
		Source:          restriction.AddressBilling,
		Countries:       restriction.NewOpt([]string{"US"}),
	}

	decisions := decodeDecisions(t, f.do(t, http.MethodPost, "/api/coupons/validate", checkoutBody("USONLY")))
	require.Len(t, decisions, 1)
	assert.True(t, decisions[0].Valid)

	body := checkoutBody("USONLY")
	body["billing"].(map[string]string)["country"] = "CA"
	decisions = decodeDecisions(t, f.do(t, http.MethodPost, "/api/coupons/validate", body))
	require.Len(t, decisions, 1)
	assert.False(t, decisions[0].Valid)
	assert.Equal(t, []string{"country_not_allowed"}, decisions[0].Reasons)
	require.Len(t, decisions[0].Messages, 1)
	assert.Contains(t, decisions[0].Messages[0], "USONLY")
}

func TestValidate_NewCustomerLifecycle(t *testing.T) {
	f := newFixture(t)
	f.restrictions.cfgs["WELCOME"] = restriction.Config{
		CustomerType: restriction.NewOpt(restriction.CustomerNew),
	}

	decisions := decodeDecisions(t, f.do(t, http.MethodPost, "/api/coupons/validate", checkoutBody("WELCOME")))
	assert.True(t, decisions[0].Valid, "no purchase history yet")

	// Once the email has a paying order behind it, the coupon is refused.
	f.customers.accounts["buyer@example.com"] = &customer.Account{
		ID: "a1", Email: "buyer@example.com", Paying: true,
	}
	decisions = decodeDecisions(t, f.do(t, http.MethodPost, "/api/coupons/validate", checkoutBody("WELCOME")))
	assert.False(t, decisions[0].Valid)
	assert.Equal(t, []string{"new_customers_only"}, decisions[0].Reasons)
}

func TestRedemption_FeedsUsageCap(t *testing.T) {
	f := newFixture(t)
	f.restrictions.cfgs["ONCE"] = restriction.Config{
		PreventSimilarEmails: true,
		UsageLimitPerUser:    1,
	}

	redemption := map[string]any{
		"order_id":     "o1",
		"coupon_codes": []string{"ONCE"},
		"email":        "buyer+promo@example.com",
		"ip":           "203.0.113.9",
		"shipping": map[string]string{
			"line1": "123 Main St", "line2": "Apt 1", "city": "Test City", "postcode": "12345",
		},
	}
	rec := f.do(t, http.MethodPost, "/api/redemptions", redemption)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, f.store.records, 1)
	assert.Equal(t, "buyer@example.com", f.store.records[0].Email, "email scrubbed before storage")

	// Replay of the same payment hook is a no-op.
	rec = f.do(t, http.MethodPost, "/api/redemptions", redemption)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, f.store.records, 1)

	// The plus-alias counts against the same pool: second use is refused.
	decisions := decodeDecisions(t, f.do(t, http.MethodPost, "/api/coupons/validate", checkoutBody("ONCE")))
	assert.False(t, decisions[0].Valid)
	assert.Equal(t, []string{"usage_limit"}, decisions[0].Reasons)
}

func TestRedemption_InsertFailureNeverFailsOrder(t *testing.T) {
	f := newFixture(t)
	f.restrictions.cfgs["ONCE"] = restriction.Config{
		PreventSimilarEmails: true,
		UsageLimitPerUser:    1,
	}
	f.store.insertErr = errors.New("connection refused")

	rec := f.do(t, http.MethodPost, "/api/redemptions", map[string]any{
		"order_id":     "o1",
		"coupon_codes": []string{"ONCE"},
		"email":        "buyer@example.com",
	})

	// The payment hook is fire-and-forget: a ledger outage is logged, the
	// order proceeds.
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp struct {
		Recorded int `json:"recorded"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Zero(t, resp.Recorded)
	assert.Empty(t, f.store.records)
}

func TestRedemption_SkipsUnrestrictedCoupons(t *testing.T) {
	f := newFixture(t)
	f.restrictions.cfgs["PLAIN"] = restriction.Config{LocationEnabled: true}

	rec := f.do(t, http.MethodPost, "/api/redemptions", map[string]any{
		"order_id":     "o1",
		"coupon_codes": []string{"PLAIN", "UNKNOWN"},
		"email":        "buyer@example.com",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, f.store.records, "only enhanced-restricted coupons get ledger rows")
}

func TestRestrictions_RoundTrip(t *testing.T) {
	f := newFixture(t)

	doc := map[string]any{
		"customer_type": "new",
		"countries":     []string{"US"},
		"postcodes":     []string{"00000", "787*"},
	}
	rec := f.do(t, http.MethodPut, "/api/coupons/SAVE10/restrictions", doc)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/coupons/save10/restrictions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "new", got["customer_type"])
	assert.NotContains(t, got, "roles", "unconfigured keys stay absent")
	assert.NotContains(t, got, "states")

	rec = f.do(t, http.MethodDelete, "/api/coupons/SAVE10/restrictions", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/coupons/SAVE10/restrictions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got = map[string]any{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.NotContains(t, got, "customer_type")
}

func TestRestrictions_Invalid(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/api/coupons/X/restrictions", map[string]any{
		"customer_type": "vip",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/coupons/X/restrictions", map[string]any{
		"usage_limit_per_ip": -1,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/coupons/X/restrictions", map[string]any{
		"address_source": "warehouse",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
