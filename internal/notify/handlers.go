package notify

import (
	"net/http"
	"strconv"

	"github.com/aistrategyllc/checkout-api/internal/common"
)

// LedgerHandler exposes the manual fulfillment ledger to operators.
type LedgerHandler struct {
	Ledger *LedgerSender
}

type ledgerResp struct {
	Data []Notice `json:"data"`
}

// Recent lists the newest ledger records. The optional limit query caps the result.
func (h *LedgerHandler) Recent(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Ledger == nil || h.Ledger.Redis == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "Ledger unavailable", "REDIS_URL is not configured")
		return
	}
	limit := int64(50)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 || parsed > 500 {
			common.JSONError(w, http.StatusBadRequest, "Invalid limit", "")
			return
		}
		limit = parsed
	}
	records, err := h.Ledger.Recent(r.Context(), limit)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "Ledger read failed", "")
		return
	}
	if records == nil {
		records = []Notice{}
	}
	common.JSON(w, http.StatusOK, ledgerResp{Data: records})
}
