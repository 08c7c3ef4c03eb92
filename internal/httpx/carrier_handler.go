package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-shipment-booking/internal/carrier"
	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
)

type CarrierLookup interface {
	Get(code string) (carrier.Adapter, error)
	Default() (carrier.Adapter, error)
}

// CarrierHandler exposes the read-only carrier operations. ?carrier= picks the
// carrier, otherwise the first registered one answers.
type CarrierHandler struct {
	Carriers CarrierLookup
	Log      *zap.Logger
}

type AvailabilityReq struct {
	Origin      shipments.ShippingAddress `json:"origin"`
	Destination shipments.ShippingAddress `json:"destination"`
	ShipDate    string                    `json:"shipDate,omitempty"` // YYYY-MM-DD
}

func (h *CarrierHandler) Register(r chi.Router) {
	r.Post("/addresses/validate", h.validateAddress)
	r.Get("/postal-codes/validate", h.validatePostalCode)
	r.Post("/shipments/availability", h.availability)
}

func (h *CarrierHandler) adapter(r *http.Request) (carrier.Adapter, error) {
	if code := r.URL.Query().Get("carrier"); code != "" {
		return h.Carriers.Get(code)
	}
	return h.Carriers.Default()
}

func (h *CarrierHandler) validateAddress(w http.ResponseWriter, r *http.Request) {
	var addr shipments.ShippingAddress
	if err := decodeJSON(r, &addr); err != nil {
		writeError(w, h.Log, err)
		return
	}
	a, err := h.adapter(r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	res, err := a.ValidateAddress(r.Context(), addr)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *CarrierHandler) validatePostalCode(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	postal, country := q.Get("postalCode"), q.Get("countryCode")
	if postal == "" {
		writeError(w, h.Log, shipments.Invalid("postalCode", "required"))
		return
	}
	if len(country) != 2 {
		writeError(w, h.Log, shipments.Invalid("countryCode", "must be ISO 3166-1 alpha-2"))
		return
	}
	a, err := h.adapter(r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	res, err := a.ValidatePostalCode(r.Context(), postal, country, q.Get("state"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *CarrierHandler) availability(w http.ResponseWriter, r *http.Request) {
	var req AvailabilityReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	if err := req.Origin.Validate("origin"); err != nil {
		writeError(w, h.Log, err)
		return
	}
	if err := req.Destination.Validate("destination"); err != nil {
		writeError(w, h.Log, err)
		return
	}
	shipDate := time.Now().UTC()
	if req.ShipDate != "" {
		d, err := time.Parse(time.DateOnly, req.ShipDate)
		if err != nil {
			writeError(w, h.Log, shipments.Invalid("shipDate", "must be YYYY-MM-DD"))
			return
		}
		shipDate = d
	}
	a, err := h.adapter(r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	res, err := a.CheckServiceAvailability(r.Context(), req.Origin, req.Destination, shipDate)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": res})
}
