package httpx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
	"github.com/ariefcatur/go-shipment-booking/internal/webhook"
)

const maxWebhookBody = 1 << 20

type Reconciler interface {
	Source(name string) (webhook.Source, bool)
	Receive(ctx context.Context, source, signature string, body []byte) (*webhook.Receipt, error)
	ListFailed(ctx context.Context, limit int) ([]shipments.WebhookEvent, error)
}

type WebhooksHandler struct {
	Reconciler Reconciler
	Log        *zap.Logger
}

func (h *WebhooksHandler) Register(r chi.Router) {
	r.Post("/webhooks/{source}", h.receive)
	r.Get("/webhooks/failed", h.listFailed)
}

func (h *WebhooksHandler) receive(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "source")
	src, ok := h.Reconciler.Source(name)
	if !ok {
		writeError(w, h.Log, shipments.ErrNotFound)
		return
	}
	// body mentah dibaca utuh; signature dihitung atas byte persis ini
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, h.Log, shipments.Invalid("body", "unreadable or too large"))
		return
	}
	rc, err := h.Reconciler.Receive(r.Context(), name, r.Header.Get(src.Header), body)
	if err != nil {
		if !errors.Is(err, shipments.ErrSignatureInvalid) && !shipments.IsValidation(err) && h.Log != nil {
			h.Log.Error("webhook not recorded", zap.String("source", name), zap.Error(err))
		}
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusAccepted, rc)
}

func (h *WebhooksHandler) listFailed(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, h.Log, shipments.Invalid("limit", "must be between 1 and 1000"))
			return
		}
		limit = n
	}
	evs, err := h.Reconciler.ListFailed(r.Context(), limit)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if evs == nil {
		evs = []shipments.WebhookEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evs})
}
