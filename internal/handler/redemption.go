package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/coupon-restrictions/internal/domain/ledger"
)

type redemptionRequest struct {
	OrderID     string      `json:"order_id"`
	CouponCodes []string    `json:"coupon_codes"`
	Email       string      `json:"email"`
	IP          string      `json:"ip"`
	Shipping    addressJSON `json:"shipping"`
}

// RecordRedemption is the payment-success hook: it appends one usage record
// per coupon that carries an enhanced usage restriction. The write is
// fire-and-forget from the order's perspective; a failed insert is logged
// and must never fail the order, so the endpoint answers 202 regardless.
func (h *Handler) RecordRedemption(w http.ResponseWriter, r *http.Request) {
	var req redemptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.OrderID == "" || len(req.CouponCodes) == 0 {
		writeError(w, http.StatusBadRequest, "order_id and coupon_codes required")
		return
	}

	ctx := r.Context()
	lg := zctx.From(ctx)
	addr := ledger.ShippingAddress{
		Line1:    req.Shipping.Line1,
		Line2:    req.Shipping.Line2,
		City:     req.Shipping.City,
		Postcode: req.Shipping.Postcode,
	}

	recorded := 0
	for _, code := range req.CouponCodes {
		cfg, err := h.restrictions.Get(ctx, code)
		if err != nil {
			lg.Error("load restrictions for redemption",
				zap.String("order_id", req.OrderID),
				zap.String("coupon", code),
				zap.Error(err))
			continue
		}
		// Only enhanced-restricted coupons need ledger rows.
		if !cfg.HasEnhancedUsage() {
			continue
		}

		if err := h.ledger.Record(ctx, req.OrderID, code, req.Email, req.IP, addr); err != nil {
			lg.Error("record redemption",
				zap.String("order_id", req.OrderID),
				zap.String("coupon", code),
				zap.Error(err))
			continue
		}
		recorded++
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("recorded")
	e.Int(recorded)
	e.ObjEnd()
	writeJSON(w, http.StatusAccepted, &e)
}
