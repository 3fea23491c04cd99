package handlers

import (
	"net/http"

	"github.com/linkup/backend/internal/logging"
)

// CreditHandler exposes post credit balances and top-ups.
type CreditHandler struct {
	Ledger CreditLedger
}

// Balance handles GET /credits/{userId}. A pending daily reset is applied first.
func (h CreditHandler) Balance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.Ledger == nil {
		logging.FromContext(ctx).Error("credit ledger unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "credit services unavailable")
		return
	}
	if _, ok := actingUser(w, r); !ok {
		return
	}

	balance, err := h.Ledger.Balance(ctx, r.PathValue("userId"))
	if err != nil {
		respondFailure(ctx, w, err, "unable to load credits")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]int{"credits": balance})
}

// Purchase handles POST /credits, adding purchased credits to the caller's balance.
func (h CreditHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.Ledger == nil {
		logging.FromContext(ctx).Error("credit ledger unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "credit services unavailable")
		return
	}
	caller, ok := actingUser(w, r)
	if !ok {
		return
	}

	var req purchaseCreditsRequest
	if msg, ok := bindJSON(r, &req); !ok {
		respondError(ctx, w, http.StatusBadRequest, msg)
		return
	}

	balance, err := h.Ledger.AddPurchased(ctx, caller.ID, req.CreditAmount)
	if err != nil {
		respondFailure(ctx, w, err, "unable to add credits")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]int{"newCreditBalance": balance})
}

type purchaseCreditsRequest struct {
	CreditAmount int `json:"creditAmount" validate:"required,gt=0"`
}
