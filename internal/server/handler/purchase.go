package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/megalucky/internal/domain"
)

// PurchaseHandler serves recorded purchase history.
type PurchaseHandler struct {
	purchases domain.PurchaseStore
	logger    *slog.Logger
}

// NewPurchaseHandler creates a PurchaseHandler.
func NewPurchaseHandler(purchases domain.PurchaseStore, logger *slog.Logger) *PurchaseHandler {
	return &PurchaseHandler{
		purchases: purchases,
		logger:    logger.With(slog.String("handler", "purchases")),
	}
}

type listPurchasesResponse struct {
	Purchases []domain.PurchaseResult `json:"purchases"`
}

// ListPurchases returns a wallet's purchases, newest first.
// GET /api/purchases?wallet=0x...&limit=50&offset=0
func (h *PurchaseHandler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	wallet := strings.TrimSpace(r.URL.Query().Get("wallet"))
	if !common.IsHexAddress(wallet) {
		writeError(w, http.StatusBadRequest, "wallet query parameter must be a hex address")
		return
	}

	purchases, err := h.purchases.ListByWallet(r.Context(), common.HexToAddress(wallet).Hex(), parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, "list purchases", err)
		return
	}
	if purchases == nil {
		purchases = []domain.PurchaseResult{}
	}
	writeJSON(w, http.StatusOK, listPurchasesResponse{Purchases: purchases})
}

// GetPurchase returns one purchase by id.
// GET /api/purchases/{id}
func (h *PurchaseHandler) GetPurchase(w http.ResponseWriter, r *http.Request) {
	p, err := h.purchases.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, h.logger, "get purchase", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
