package payment

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/aistrategyllc/checkout-api/internal/common"
	"github.com/aistrategyllc/checkout-api/internal/obs"
)

const (
	checkoutFailedMessage = "Failed to create checkout session"
	maxCheckoutBody       = 16 << 10
)

// Handler exposes the checkout initiation endpoint.
type Handler struct {
	Initiator *Initiator
	Validator *validator.Validate
	Logger    *zerolog.Logger
}

type checkoutReq struct {
	Product string `json:"product" validate:"omitempty,max=32,alphanum"`
	Email   string `json:"email" validate:"omitempty,email,max=254"`
}

type checkoutResp struct {
	URL string `json:"url"`
}

// Checkout creates a hosted checkout session. The body is optional; an empty
// body or product selects the default product.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Initiator == nil {
		common.JSONError(w, http.StatusInternalServerError, checkoutFailedMessage, "checkout handler unavailable")
		return
	}
	req, err := decodeCheckoutReq(r)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "Invalid request body", "")
		return
	}
	if req.Product == "" {
		req.Product = strings.TrimSpace(r.URL.Query().Get("product"))
	}
	validate := h.Validator
	if validate == nil {
		validate = validator.New()
	}
	if err := validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	session, err := h.Initiator.Initiate(r.Context(), Intent{
		ProductKey:    req.Product,
		CustomerEmail: req.Email,
	})
	if err != nil {
		if errors.Is(err, ErrUnknownProduct) {
			common.JSONError(w, http.StatusBadRequest, "Unknown product", req.Product)
			return
		}
		detail := ""
		var checkoutErr *CheckoutError
		if errors.As(err, &checkoutErr) {
			detail = checkoutErr.Detail
		}
		logger := obs.LoggerOrNop(h.Logger)
		logger.Debug().Err(err).Msg("checkout_failed")
		common.JSONError(w, http.StatusInternalServerError, checkoutFailedMessage, detail)
		return
	}
	common.JSON(w, http.StatusOK, checkoutResp{URL: session.URL})
}

func decodeCheckoutReq(r *http.Request) (checkoutReq, error) {
	var req checkoutReq
	if r.Body == nil {
		return req, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxCheckoutBody))
	if err != nil {
		return req, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, err
	}
	req.Product = strings.ToLower(strings.TrimSpace(req.Product))
	req.Email = strings.TrimSpace(req.Email)
	return req, nil
}
