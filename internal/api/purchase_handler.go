package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/uticket/backend/internal/domain"
	"github.com/uticket/backend/pkg/response"
	"go.uber.org/zap"
)

type PurchaseHandler struct {
	purchases *domain.PurchaseService
	logger    *zap.Logger
}

func NewPurchaseHandler(purchases *domain.PurchaseService, logger *zap.Logger) *PurchaseHandler {
	return &PurchaseHandler{purchases: purchases, logger: logger}
}

// Initiate notifies the seller and returns the checkout URL.
func (h *PurchaseHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	intent, err := h.purchases.InitiatePurchase(r.Context(), userID, chi.URLParam(r, "listingID"))
	if err != nil {
		writeError(w, h.logger, "initiate purchase", err)
		return
	}
	response.OK(w, intent)
}
