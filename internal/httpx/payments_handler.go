package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-realtime-checkout/internal/orders"
	"github.com/ariefcatur/go-realtime-checkout/internal/payments"
	"github.com/go-chi/chi/v5"
)

type PaymentsHandler struct {
	Ledger *payments.Ledger
	// Orders resolves the owner of the order a payment belongs to.
	Orders *orders.Service
}

// The amount is never accepted from the client; it is the order total.
type createPaymentReq struct {
	OrderID       string `json:"order_id" validate:"required"`
	Method        string `json:"method" validate:"required"`
	TransactionID string `json:"transaction_id,omitempty"`
}

type updatePaymentReq struct {
	Status        string `json:"status" validate:"required,oneof=completed failed"`
	TransactionID string `json:"transaction_id,omitempty"`
}

func (h *PaymentsHandler) Register(r chi.Router) {
	r.Post("/payments", h.create)
	r.Get("/payments/{id}", h.get)
	r.Put("/payments/{id}/status", h.updateStatus)
}

func (h *PaymentsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createPaymentReq
	if !decode(w, r, &req) {
		return
	}
	if !h.ownsOrder(w, r, req.OrderID) {
		return
	}
	p, err := h.Ledger.CreatePayment(r.Context(), req.OrderID, payments.Method(req.Method), req.TransactionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *PaymentsHandler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.Ledger.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !h.ownsOrder(w, r, p.OrderID) {
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// updateStatus is the gateway confirmation; buyers cannot settle their own
// payments.
func (h *PaymentsHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	if !hasRole(w, r, RoleGateway, RoleAdmin) {
		return
	}
	var req updatePaymentReq
	if !decode(w, r, &req) {
		return
	}
	p, err := h.Ledger.UpdatePaymentStatus(r.Context(), chi.URLParam(r, "id"), payments.Status(req.Status), req.TransactionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PaymentsHandler) ownsOrder(w http.ResponseWriter, r *http.Request, orderID string) bool {
	if _, ok := r.Context().Value(identityKey{}).(identity); !ok {
		return true
	}
	o, err := h.Orders.Get(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return false
	}
	return authorized(w, r, o.UserID)
}
