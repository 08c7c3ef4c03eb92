package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-shipment-booking/internal/pricing"
	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return shipments.Invalid("", "invalid json")
	}
	return nil
}

var sentinels = []struct {
	err    error
	status int
	code   string
}{
	{shipments.ErrQuoteExpired, http.StatusGone, "quote_expired"},
	{shipments.ErrQuoteConsumed, http.StatusConflict, "quote_consumed"},
	{shipments.ErrQuoteNotFound, http.StatusNotFound, "quote_not_found"},
	{shipments.ErrNotFound, http.StatusNotFound, "not_found"},
	{pricing.ErrUnknownProfile, http.StatusNotFound, "unknown_profile"},
	{shipments.ErrSignatureInvalid, http.StatusUnauthorized, "signature_invalid"},
	{shipments.ErrMockFallbackDisabled, http.StatusServiceUnavailable, "provider_not_configured"},
	{shipments.ErrProviderUnavailable, http.StatusServiceUnavailable, "provider_unavailable"},
	{shipments.ErrConfirmInProgress, http.StatusConflict, "confirm_in_progress"},
	{shipments.ErrPaymentPending, http.StatusPaymentRequired, "payment_pending"},
	{shipments.ErrPaymentNotSettled, http.StatusUnprocessableEntity, "payment_not_settled"},
	{shipments.ErrBookingFailed, http.StatusUnprocessableEntity, "booking_failed"},
	{shipments.ErrCheckoutFailed, http.StatusConflict, "checkout_failed"},
	{shipments.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{shipments.ErrAlreadyExists, http.StatusConflict, "already_exists"},
}

// writeError maps domain errors to a stable code. Provider text never reaches
// the client, only the sentinel message.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	var ve *shipments.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_error", Message: ve.Message, Field: ve.Field})
		return
	}
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			writeJSON(w, s.status, errorBody{Error: s.code, Message: s.err.Error()})
			return
		}
	}
	var pe *shipments.ProviderError
	if errors.As(err, &pe) {
		code := pe.Code
		if code == "" {
			code = "provider_rejected"
		}
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: code, Message: pe.Service + " rejected the request"})
		return
	}
	if log != nil {
		log.Error("unhandled error", zap.Error(err))
	}
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal error"})
}
