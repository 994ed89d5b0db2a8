package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// writeJSON writes the encoder's buffer as an application/json response.
func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError writes the {code, message} error shape shared by all endpoints.
func writeError(w http.ResponseWriter, status int, msg string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.StrEscape(msg)
	e.ObjEnd()
	writeJSON(w, status, &e)
}

// storeUnavailable maps a backing-store failure to 503. The pipeline cannot
// decide safely without its stores, so the caller keeps prior coupon
// validity unchanged.
func storeUnavailable(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("store unavailable", zap.Error(err))
	writeError(w, http.StatusServiceUnavailable, "validation temporarily unavailable")
}
