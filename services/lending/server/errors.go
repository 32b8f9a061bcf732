package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"astrolend/native/lending"
	"astrolend/native/oracle"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// httpStatus maps engine sentinels onto HTTP status codes. Unknown errors
// surface as 500 without leaking internals.
func httpStatus(err error) (int, string) {
	switch {
	case errors.Is(err, lending.ErrInvalidBank),
		errors.Is(err, lending.ErrInvalidAccount):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, lending.ErrInvalidAmount),
		errors.Is(err, lending.ErrInvalidConfig):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, lending.ErrGroupMismatch):
		return http.StatusForbidden, "group_mismatch"
	case errors.Is(err, lending.ErrHealthCheckFailed):
		return http.StatusUnprocessableEntity, "health_check_failed"
	case errors.Is(err, lending.ErrAccountHealthy):
		return http.StatusConflict, "account_healthy"
	case errors.Is(err, lending.ErrBalanceConflict),
		errors.Is(err, lending.ErrNoDebtToRepay),
		errors.Is(err, lending.ErrBadDebtNotEligible):
		return http.StatusConflict, "balance_conflict"
	case errors.Is(err, lending.ErrBalanceSlotsFull):
		return http.StatusConflict, "balance_slots_full"
	case errors.Is(err, lending.ErrCapExceeded),
		errors.Is(err, lending.ErrInsufficientLiquidity),
		errors.Is(err, lending.ErrInsufficientBalance),
		errors.Is(err, lending.ErrInsufficientCollateral):
		return http.StatusUnprocessableEntity, "insufficient_funds"
	case errors.Is(err, lending.ErrBankPaused),
		errors.Is(err, lending.ErrBankReduceOnly),
		errors.Is(err, lending.ErrBankWipedOut):
		return http.StatusServiceUnavailable, "bank_unavailable"
	case errors.Is(err, oracle.ErrStalePrice),
		errors.Is(err, oracle.ErrUnknownFeed),
		errors.Is(err, oracle.ErrInvalidQuote):
		return http.StatusBadGateway, "oracle_unavailable"
	case errors.Is(err, lending.ErrMathOverflow):
		return http.StatusUnprocessableEntity, "overflow"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := httpStatus(err)
	body := errorBody{Error: err.Error(), Code: code}
	if status == http.StatusInternalServerError {
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
