// Package handler exposes the validation pipeline, the payment-success
// redemption hook, and the restriction admin surface over HTTP.
package handler

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/coupon-restrictions/internal/domain/ledger"
	"github.com/xenking/coupon-restrictions/internal/domain/restriction"
	"github.com/xenking/coupon-restrictions/internal/domain/validation"
)

// RestrictionStore is the admin-facing view of the restriction
// configuration store. The validation pipeline itself only reads.
type RestrictionStore interface {
	Get(ctx context.Context, couponCode string) (restriction.Config, error)
	Put(ctx context.Context, couponCode string, cfg restriction.Config) error
	Delete(ctx context.Context, couponCode string) error
}

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// TracerProvider and MeterProvider instrument the validation endpoint.
	// Nil values fall back to no-op providers.
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Handler routes HTTP requests to the validation pipeline, the usage
// ledger, and the restriction store.
type Handler struct {
	pipeline     *validation.Pipeline
	ledger       *ledger.Ledger
	restrictions RestrictionStore

	tracer     trace.Tracer
	rejections metric.Int64Counter
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg HandlerConfig,
	pipeline *validation.Pipeline,
	usageLedger *ledger.Ledger,
	restrictions RestrictionStore,
) (*Handler, error) {
	tp := cfg.TracerProvider
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}
	mp := cfg.MeterProvider
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}

	rejections, err := mp.Meter("couponrules").Int64Counter("coupon_rejections_total",
		metric.WithDescription("Coupons rejected by the restriction pipeline"))
	if err != nil {
		return nil, err
	}

	return &Handler{
		pipeline:     pipeline,
		ledger:       usageLedger,
		restrictions: restrictions,
		tracer:       tp.Tracer("couponrules"),
		rejections:   rejections,
	}, nil
}

// Routes registers all API endpoints on the mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/coupons/validate", h.Validate)
	mux.HandleFunc("POST /api/redemptions", h.RecordRedemption)
	mux.HandleFunc("GET /api/coupons/{code}/restrictions", h.GetRestrictions)
	mux.HandleFunc("PUT /api/coupons/{code}/restrictions", h.PutRestrictions)
	mux.HandleFunc("DELETE /api/coupons/{code}/restrictions", h.DeleteRestrictions)
}
