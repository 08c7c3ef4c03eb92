package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-shipment-booking/internal/carrier"
	"github.com/ariefcatur/go-shipment-booking/internal/checkout"
	"github.com/ariefcatur/go-shipment-booking/internal/redisx"
	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
)

type Rater interface {
	GetRates(ctx context.Context, req shipments.ShipmentRequest) ([]shipments.RateQuoteOption, time.Time, error)
}

type Checkout interface {
	Checkout(ctx context.Context, quoteID string) (*checkout.CheckoutResult, error)
	InitiatePayment(ctx context.Context, shipmentID string) (*shipments.CheckoutSession, error)
	Confirm(ctx context.Context, shipmentID, paymentID string) (*checkout.Result, error)
}

type Tracker interface {
	Track(ctx context.Context, shipmentID, source string) (*carrier.TrackingResult, error)
	Cancel(ctx context.Context, shipmentID string) (*shipments.Shipment, error)
}

type ShipmentReader interface {
	GetShipment(ctx context.Context, id string) (*shipments.Shipment, error)
	GetSession(ctx context.Context, shipmentID string) (*shipments.CheckoutSession, error)
	ListStatusHistory(ctx context.Context, shipmentID string) ([]shipments.StatusEvent, error)
}

type ShipmentsHandler struct {
	Rates    Rater
	Checkout Checkout
	Tracker  Tracker
	Store    ShipmentReader
	// Redis opsional; nil = tanpa cache (mode memory)
	Redis *redis.Client
	Log   *zap.Logger
}

type RatesResp struct {
	Quotes    []shipments.RateQuoteOption `json:"quotes"`
	ExpiresAt time.Time                   `json:"expiresAt"`
}

type CheckoutReq struct {
	QuoteID string `json:"quoteId"`
}

type CheckoutResp struct {
	ShipmentID      string                   `json:"shipmentId"`
	TrackingNumber  string                   `json:"trackingNumber"`
	Status          shipments.CheckoutStatus `json:"status"`
	PaymentID       string                   `json:"paymentId,omitempty"`
	TransactionURL  string                   `json:"transactionUrl,omitempty"`
	ClientSecret    string                   `json:"clientSecret,omitempty"`
	Amount          float64                  `json:"amount"`
	AmountMinor     int64                    `json:"amountMinor"`
	Currency        string                   `json:"currency"`
	PaymentDeferred bool                     `json:"paymentDeferred,omitempty"`
}

type ConfirmReq struct {
	ShipmentID      string `json:"shipmentId"`
	PaymentIntentID string `json:"paymentIntentId,omitempty"`
}

type ShipmentView struct {
	Shipment      *shipments.Shipment      `json:"shipment"`
	CheckoutState shipments.CheckoutStatus `json:"checkoutStatus"`
	PaymentID     string                   `json:"paymentId,omitempty"`
	FailureReason string                   `json:"failureReason,omitempty"`
	History       []shipments.StatusEvent  `json:"history"`
}

func (h *ShipmentsHandler) Register(r chi.Router) {
	r.Post("/shipments/rates", h.getRates)
	r.Post("/shipments/checkout", h.checkout)
	r.Post("/shipments/confirm", h.confirm)
	r.Get("/shipments/{id}", h.getShipment)
	r.Post("/shipments/{id}/payment", h.initiatePayment)
	r.Get("/shipments/{id}/payment/callback", h.paymentCallback)
	r.Get("/shipments/{id}/tracking", h.tracking)
	r.Get("/shipments/{id}/label", h.label)
	r.Post("/shipments/{id}/cancel", h.cancel)
}

func (h *ShipmentsHandler) getRates(w http.ResponseWriter, r *http.Request) {
	var req shipments.ShipmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	quotes, exp, err := h.Rates.GetRates(r.Context(), req)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, RatesResp{Quotes: quotes, ExpiresAt: exp})
}

func (h *ShipmentsHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	if strings.TrimSpace(req.QuoteID) == "" {
		writeError(w, h.Log, shipments.Invalid("quoteId", "required"))
		return
	}
	res, err := h.Checkout.Checkout(r.Context(), req.QuoteID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	code := http.StatusCreated
	if res.PaymentDeferred {
		code = http.StatusAccepted
	}
	writeJSON(w, code, CheckoutResp{
		ShipmentID:      res.Shipment.ID,
		TrackingNumber:  res.Shipment.TrackingNumber,
		Status:          res.Session.Status,
		PaymentID:       res.Session.PaymentID,
		TransactionURL:  res.Session.TransactionURL,
		ClientSecret:    res.Session.ClientSecret,
		Amount:          res.Shipment.FinalPrice,
		AmountMinor:     res.Session.AmountMinor,
		Currency:        res.Session.Currency,
		PaymentDeferred: res.PaymentDeferred,
	})
}

func (h *ShipmentsHandler) initiatePayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := h.Checkout.InitiatePayment(r.Context(), id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.invalidate(r.Context(), id)
	writeJSON(w, http.StatusOK, sess)
}

// CallbackResp answers the buyer coming back from a hosted payment page.
type CallbackResp struct {
	ShipmentID string                   `json:"shipmentId"`
	Status     shipments.CheckoutStatus `json:"status"`
	Pending    bool                     `json:"pending,omitempty"`
	Booking    *checkout.Result         `json:"booking,omitempty"`
}

// paymentCallback is where hosted payment pages send the buyer back. Query
// parameters from the redirect are ignored; the payment is verified with the
// provider through Confirm.
func (h *ShipmentsHandler) paymentCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	res, err := h.Checkout.Confirm(ctx, id, "")
	switch {
	case err == nil:
		if !res.Replayed {
			h.invalidate(ctx, id)
		}
		writeJSON(w, http.StatusOK, CallbackResp{ShipmentID: id, Status: shipments.StatusConfirmed, Booking: res})
		return
	case errors.Is(err, shipments.ErrPaymentPending), errors.Is(err, shipments.ErrConfirmInProgress):
		// webhook yang akan menyelesaikan
		writeJSON(w, http.StatusAccepted, CallbackResp{ShipmentID: id, Status: shipments.StatusAwaitingPayment, Pending: true})
		return
	}
	writeError(w, h.Log, err)
}

func (h *ShipmentsHandler) confirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	res, err := h.Checkout.Confirm(r.Context(), req.ShipmentID, req.PaymentIntentID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if !res.Replayed {
		h.invalidate(r.Context(), req.ShipmentID)
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ShipmentsHandler) getShipment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) coba cache
	key := fmt.Sprintf(redisx.KeyShipmentCache, id)
	if h.Redis != nil {
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	// 2) fallback DB
	sh, err := h.Store.GetShipment(ctx, id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	view := ShipmentView{Shipment: sh}
	if sess, err := h.Store.GetSession(ctx, id); err == nil {
		view.CheckoutState = sess.Status
		view.PaymentID = sess.PaymentID
		view.FailureReason = sess.FailureReason
	}
	if view.History, err = h.Store.ListStatusHistory(ctx, id); err != nil {
		writeError(w, h.Log, err)
		return
	}
	b, err := json.Marshal(view)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if h.Redis != nil {
		_ = h.Redis.Set(ctx, key, b, redisx.TTLShipmentCache).Err()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (h *ShipmentsHandler) tracking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tr, err := h.Tracker.Track(r.Context(), id, "tracking")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.invalidate(r.Context(), id)
	writeJSON(w, http.StatusOK, tr)
}

func (h *ShipmentsHandler) label(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sh, err := h.Store.GetShipment(r.Context(), id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if len(sh.LabelData) > 0 {
		w.Header().Set("Content-Type", labelContentType(sh.LabelData))
		w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s.label"`, sh.TrackingNumber))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(sh.LabelData)
		return
	}
	// label disimpan di carrier, bukan di kita
	if sh.LabelURL != "" && !strings.HasSuffix(sh.LabelURL, "/shipments/"+id+"/label") {
		http.Redirect(w, r, sh.LabelURL, http.StatusFound)
		return
	}
	writeError(w, h.Log, fmt.Errorf("label for %s: %w", id, shipments.ErrNotFound))
}

func labelContentType(b []byte) string {
	switch {
	case strings.HasPrefix(string(b[:min(len(b), 5)]), "%PDF-"):
		return "application/pdf"
	case strings.HasPrefix(string(b[:min(len(b), 3)]), "^XA"):
		return "application/zpl"
	}
	return http.DetectContentType(b)
}

func (h *ShipmentsHandler) cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sh, err := h.Tracker.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.invalidate(r.Context(), id)
	writeJSON(w, http.StatusOK, sh)
}

func (h *ShipmentsHandler) invalidate(ctx context.Context, id string) {
	(&redisx.ShipmentCache{R: h.Redis}).Invalidate(ctx, id)
}
