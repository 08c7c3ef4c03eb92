package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-shipment-booking/internal/pricing"
)

type RuleStore interface {
	Rule(ctx context.Context, profile string) (pricing.PricingRule, error)
	Save(ctx context.Context, rule pricing.PricingRule) error
}

type PricingHandler struct {
	Rules RuleStore
	Log   *zap.Logger
}

func (h *PricingHandler) Register(r chi.Router) {
	r.Get("/pricing/rules/{profile}", h.get)
	r.Put("/pricing/rules/{profile}", h.put)
}

func (h *PricingHandler) get(w http.ResponseWriter, r *http.Request) {
	rule, err := h.Rules.Rule(r.Context(), strings.ToLower(chi.URLParam(r, "profile")))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// put replaces the whole rule. Quotes already issued keep their margin.
func (h *PricingHandler) put(w http.ResponseWriter, r *http.Request) {
	var rule pricing.PricingRule
	if err := decodeJSON(r, &rule); err != nil {
		writeError(w, h.Log, err)
		return
	}
	rule.Profile = chi.URLParam(r, "profile")
	if err := h.Rules.Save(r.Context(), rule); err != nil {
		writeError(w, h.Log, err)
		return
	}
	saved, err := h.Rules.Rule(r.Context(), strings.ToLower(rule.Profile))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if h.Log != nil {
		h.Log.Info("pricing rule updated", zap.String("profile", saved.Profile), zap.Int("tiers", len(saved.Tiers)))
	}
	writeJSON(w, http.StatusOK, saved)
}
