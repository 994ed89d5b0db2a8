package handler

import (
	"encoding/json"
	"net/http"

	"github.com/xenking/coupon-restrictions/internal/domain/restriction"
)

// restrictionDoc is the wire shape of a coupon's restriction configuration.
// Pointer fields distinguish "not configured" from "configured but empty";
// absent keys stay absent across a GET/PUT round-trip.
//
// It mirrors the storage layer's persisted document but is kept separate:
// the admin API shape can change without migrating stored JSONB, and the
// stored shape can never be widened by an unvalidated request field.
type restrictionDoc struct {
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

func docFromConfig(cfg restriction.Config) restrictionDoc {
	doc := restrictionDoc{
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

func (d restrictionDoc) config() (restriction.Config, bool) {
	cfg := restriction.Config{
		LocationEnabled:      d.LocationEnabled,
		Source:               restriction.AddressSource(d.AddressSource),
		PreventSimilarEmails: d.PreventSimilarEmails,
		UsageLimitPerUser:    d.UsageLimitPerUser,
		UsageLimitPerAddress: d.UsageLimitPerAddress,
		UsageLimitPerIP:      d.UsageLimitPerIP,
	}
	if d.CustomerType != nil {
		t := restriction.CustomerType(*d.CustomerType)
		if t != restriction.CustomerNew && t != restriction.CustomerExisting {
			return cfg, false
		}
		cfg.CustomerType = restriction.NewOpt(t)
	}
	switch cfg.Source {
	case "", restriction.AddressShipping, restriction.AddressBilling:
	default:
		return cfg, false
	}
	if d.UsageLimitPerUser < 0 || d.UsageLimitPerAddress < 0 || d.UsageLimitPerIP < 0 {
		return cfg, false
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
	return cfg, true
}

// GetRestrictions returns the restriction configuration for a coupon code.
// An unconfigured coupon yields an empty document.
func (h *Handler) GetRestrictions(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.restrictions.Get(r.Context(), r.PathValue("code"))
	if err != nil {
		storeUnavailable(w, r, err)
		return
	}
	data, err := json.Marshal(docFromConfig(cfg))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode restrictions")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// PutRestrictions replaces the restriction configuration for a coupon code.
func (h *Handler) PutRestrictions(w http.ResponseWriter, r *http.Request) {
	var doc restrictionDoc
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	cfg, ok := doc.config()
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "invalid restriction configuration")
		return
	}
	if err := h.restrictions.Put(r.Context(), r.PathValue("code"), cfg); err != nil {
		storeUnavailable(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteRestrictions removes a coupon's restriction configuration.
func (h *Handler) DeleteRestrictions(w http.ResponseWriter, r *http.Request) {
	if err := h.restrictions.Delete(r.Context(), r.PathValue("code")); err != nil {
		storeUnavailable(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
