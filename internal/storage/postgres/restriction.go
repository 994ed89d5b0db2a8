package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/coupon-restrictions/internal/domain/restriction"
	"github.com/xenking/coupon-restrictions/internal/domain/validation"
)

const (
	getRestrictionsSQL = `SELECT meta FROM coupon_restrictions
		WHERE UPPER(coupon_code) = UPPER($1)`

	putRestrictionsSQL = `INSERT INTO coupon_restrictions (coupon_code, meta, updated_at)
		VALUES (UPPER($1), $2, NOW())
		ON CONFLICT (coupon_code) DO UPDATE SET meta = EXCLUDED.meta, updated_at = NOW()`

	deleteRestrictionsSQL = `DELETE FROM coupon_restrictions WHERE UPPER(coupon_code) = UPPER($1)`
)

var _ validation.ConfigStore = (*RestrictionRepository)(nil)

// RestrictionRepository stores per-coupon restriction configuration as one
// JSONB document per coupon code. A key missing from the document means
// that restriction is not configured, which keeps the absent/empty
// distinction across storage round-trips.
type RestrictionRepository struct {
	pool *pgxpool.Pool
}

// NewRestrictionRepository returns a RestrictionRepository using the given pool.
func NewRestrictionRepository(pool *pgxpool.Pool) *RestrictionRepository {
	return &RestrictionRepository{pool: pool}
}

// metaDoc is the stored shape of a restriction.Config. Pointer fields
// marshal to absent keys when nil.
//
// The admin API carries a look-alike document; the two are deliberately
// not shared. This one is the persisted JSONB schema and must stay stable
// across releases, independent of wire changes.
type metaDoc struct {
	CustomerType         *string   `json:"customer_type,omitempty"`
	Roles                *[]string `json:"roles,omitempty"`
	LocationEnabled      bool      `json:"location_enabled,omitempty"`
	AddressSource        string    `json:"address_source,omitempty"`
	Countries            *[]string `json:"countries,omitempty"`
	States               *[]string `json:"states,omitempty"`
	Postcodes            *[]string `json:"postcodes,omitempty"`
	PreventSimilarEmails bool      `json:"prevent_similar_emails,omitempty"`
	UsageLimitPerUser    int       `json:"usage_limit_per_user,omitempty"`
	UsageLimitPerAddress int       `json:"usage_limit_per_shipping_address,omitempty"`
	UsageLimitPerIP      int       `json:"usage_limit_per_ip,omitempty"`
}

func (d metaDoc) config() restriction.Config {
	cfg := restriction.Config{
		LocationEnabled:      d.LocationEnabled,
		Source:               restriction.AddressSource(d.AddressSource),
		PreventSimilarEmails: d.PreventSimilarEmails,
		UsageLimitPerUser:    d.UsageLimitPerUser,
		UsageLimitPerAddress: d.UsageLimitPerAddress,
		UsageLimitPerIP:      d.UsageLimitPerIP,
	}
	if d.CustomerType != nil {
		cfg.CustomerType = restriction.NewOpt(restriction.CustomerType(*d.CustomerType))
	}
	if d.Roles != nil {
		cfg.Roles = restriction.NewOpt(*d.Roles)
	}
	if d.Countries != nil {
		cfg.Countries = restriction.NewOpt(*d.Countries)
	}
	if d.States != nil {
		cfg.States = restriction.NewOpt(*d.States)
	}
	if d.Postcodes != nil {
		cfg.Postcodes = restriction.NewOpt(*d.Postcodes)
	}
	return cfg
}

func newMetaDoc(cfg restriction.Config) metaDoc {
	doc := metaDoc{
		LocationEnabled:      cfg.LocationEnabled,
		AddressSource:        string(cfg.Source),
		PreventSimilarEmails: cfg.PreventSimilarEmails,
		UsageLimitPerUser:    cfg.UsageLimitPerUser,
		UsageLimitPerAddress: cfg.UsageLimitPerAddress,
		UsageLimitPerIP:      cfg.UsageLimitPerIP,
	}
	if t, ok := cfg.CustomerType.Get(); ok {
		s := string(t)
		doc.CustomerType = &s
	}
	if v, ok := cfg.Roles.Get(); ok {
		doc.Roles = &v
	}
	if v, ok := cfg.Countries.Get(); ok {
		doc.Countries = &v
	}
	if v, ok := cfg.States.Get(); ok {
		doc.States = &v
	}
	if v, ok := cfg.Postcodes.Get(); ok {
		doc.Postcodes = &v
	}
	return doc
}

// Get loads the restriction configuration for a coupon code. A coupon with
// no stored document is unrestricted, not an error.
func (r *RestrictionRepository) Get(ctx context.Context, couponCode string) (restriction.Config, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, getRestrictionsSQL, couponCode).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return restriction.Config{}, nil
		}
		return restriction.Config{}, errors.Wrapf(err, "get restrictions for %q", couponCode)
	}

	var doc metaDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return restriction.Config{}, errors.Wrapf(err, "decode restrictions for %q", couponCode)
	}
	return doc.config(), nil
}

// Put stores the full restriction configuration for a coupon code,
// replacing any previous document.
func (r *RestrictionRepository) Put(ctx context.Context, couponCode string, cfg restriction.Config) error {
	raw, err := json.Marshal(newMetaDoc(cfg))
	if err != nil {
		return errors.Wrapf(err, "encode restrictions for %q", couponCode)
	}
	if _, err := r.pool.Exec(ctx, putRestrictionsSQL, couponCode, raw); err != nil {
		return errors.Wrapf(err, "put restrictions for %q", couponCode)
	}
	return nil
}

// Delete removes a coupon's restriction configuration, returning it to
// unrestricted.
func (r *RestrictionRepository) Delete(ctx context.Context, couponCode string) error {
	if _, err := r.pool.Exec(ctx, deleteRestrictionsSQL, couponCode); err != nil {
		return errors.Wrapf(err, "delete restrictions for %q", couponCode)
	}
	return nil
}
