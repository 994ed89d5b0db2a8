package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/jx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/coupon-restrictions/internal/domain/validation"
)

type addressJSON struct {
	Line1    string `json:"line1"`
	Line2    string `json:"line2"`
	City     string `json:"city"`
	State    string `json:"state"`
	Postcode string `json:"postcode"`
	Country  string `json:"country"`
}

func (a addressJSON) fields() validation.AddressFields {
	return validation.AddressFields{
		Line1:    a.Line1,
		Line2:    a.Line2,
		City:     a.City,
		State:    a.State,
		Postcode: a.Postcode,
		Country:  a.Country,
	}
}

type validateRequest struct {
	Phase          string      `json:"phase"`
	Codes          []string    `json:"codes"`
	AlreadyInvalid []string    `json:"already_invalid"`
	Email          string      `json:"email"`
	IP             string      `json:"ip"`
	Billing        addressJSON `json:"billing"`
	Shipping       addressJSON `json:"shipping"`
}

// Validate runs one validation pass over the applied coupon codes and
// returns a per-coupon decision. The phase selects the cart (session data,
// best-effort) or checkout (posted form, authoritative) pass.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	var phase validation.Phase
	switch req.Phase {
	case string(validation.PhaseCart):
		phase = validation.PhaseCart
	case string(validation.PhaseCheckout):
		phase = validation.PhaseCheckout
	default:
		writeError(w, http.StatusBadRequest, `phase must be "cart" or "checkout"`)
		return
	}

	if len(req.Codes) == 0 {
		writeError(w, http.StatusBadRequest, "codes required")
		return
	}

	ctx, span := h.tracer.Start(r.Context(), "validate")
	defer span.End()

	in := validation.Input{
		Codes:          req.Codes,
		AlreadyInvalid: req.AlreadyInvalid,
		Email:          req.Email,
		IP:             req.IP,
		Billing:        req.Billing.fields(),
		Shipping:       req.Shipping.fields(),
	}

	decisions, err := h.pipeline.Validate(ctx, phase, in)
	if err != nil {
		storeUnavailable(w, r, err)
		return
	}

	for _, d := range decisions {
		for _, reason := range d.Reasons {
			h.rejections.Add(ctx, 1, metric.WithAttributes(
				attribute.String("phase", string(phase)),
				attribute.String("reason", string(reason)),
			))
		}
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("decisions")
	e.ArrStart()
	for _, d := range decisions {
		encodeDecision(&e, d)
	}
	e.ArrEnd()
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

func encodeDecision(e *jx.Encoder, d validation.Decision) {
	e.ObjStart()
	e.FieldStart("code")
	e.StrEscape(d.Code)
	e.FieldStart("valid")
	e.Bool(d.Valid)
	if len(d.Reasons) > 0 {
		e.FieldStart("reasons")
		e.ArrStart()
		for _, r := range d.Reasons {
			e.StrEscape(string(r))
		}
		e.ArrEnd()
		e.FieldStart("messages")
		e.ArrStart()
		for _, m := range d.Messages {
			e.StrEscape(m)
		}
		e.ArrEnd()
	}
	e.ObjEnd()
}
