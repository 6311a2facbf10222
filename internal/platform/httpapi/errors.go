// Package httpapi holds the JSON response helpers and the error-to-status
// mapping shared by the order and catalog handlers.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	catalog "github.com/dmehra2102/stock-reservation/internal/catalog/domain"
	inventory "github.com/dmehra2102/stock-reservation/internal/inventory/domain"
	"github.com/dmehra2102/stock-reservation/internal/order/domain"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	ProductID string `json:"product_id,omitempty"`
}

// StatusFor maps engine errors to transport codes. Anything unrecognised is
// a storage failure.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, catalog.ErrInvalidProduct):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, domain.ErrInvalidStateTransition):
		return http.StatusBadRequest, "invalid_state_transition"
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound, "order_not_found"
	case errors.Is(err, catalog.ErrProductNotFound):
		return http.StatusNotFound, "product_not_found"
	case errors.Is(err, inventory.ErrInsufficientStock):
		return http.StatusConflict, "insufficient_stock"
	case errors.Is(err, domain.ErrConcurrentModification):
		return http.StatusConflict, "concurrency_conflict"
	case errors.Is(err, catalog.ErrProductInUse):
		return http.StatusConflict, "product_in_use"
	default:
		return http.StatusInternalServerError, "storage_failure"
	}
}

func WriteError(w http.ResponseWriter, err error) {
	status, code := StatusFor(err)
	resp := errorResponse{Error: err.Error(), Code: code}
	if status == http.StatusInternalServerError {
		resp.Error = "internal error"
	}
	var stockErr *inventory.InsufficientStockError
	if errors.As(err, &stockErr) {
		resp.ProductID = stockErr.ProductID.String()
	}
	WriteJSON(w, status, resp)
}

func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Code: "bad_request"})
}
