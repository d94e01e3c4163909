package httpx

import (
	"net/http"
	"strings"

	"github.com/ariefcatur/go-realtime-checkout/internal/orders"
	"github.com/go-chi/chi/v5"
)

type OrdersHandler struct {
	Factory *orders.Factory
	Orders  *orders.Service
}

type checkoutReq struct {
	ShippingAddressID string `json:"shipping_address_id" validate:"required"`
	PaymentMethod     string `json:"payment_method" validate:"required"`
}

type transitionReq struct {
	Status string `json:"status" validate:"required"`
	// From makes the transition a single strict compare-and-set.
	From string `json:"from,omitempty"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders/{user}", h.checkout)
	r.Get("/orders/user/{user}", h.listByUser)
	r.Get("/orders/{id}", h.get)
	r.Put("/orders/{id}/status", h.transition)
}

// checkout answers 201 for a new order and 200 when an Idempotency-Key replay
// returns the order created earlier.
func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	if !authorized(w, r, user) {
		return
	}
	var req checkoutReq
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Factory.Checkout(r.Context(), orders.CheckoutInput{
		UserID:            user,
		ShippingAddressID: req.ShippingAddressID,
		PaymentMethod:     orders.PaymentMethod(req.PaymentMethod),
		IdempotencyKey:    strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	code := http.StatusCreated
	if res.Replayed {
		code = http.StatusOK
	}
	writeJSON(w, code, res.Order)
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !authorized(w, r, o.UserID) {
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listByUser(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	if !authorized(w, r, user) {
		return
	}
	list, err := h.Orders.ListByUser(r.Context(), user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// transition is an operator action; payment-driven transitions come from the
// ledger.
func (h *OrdersHandler) transition(w http.ResponseWriter, r *http.Request) {
	if !hasRole(w, r, RoleAdmin) {
		return
	}
	var req transitionReq
	if !decode(w, r, &req) {
		return
	}
	to, err := orders.ParseStatus(req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	id := chi.URLParam(r, "id")

	var o orders.Order
	if req.From != "" {
		from, perr := orders.ParseStatus(req.From)
		if perr != nil {
			writeError(w, perr)
			return
		}
		o, err = h.Orders.TransitionStatus(r.Context(), id, from, to)
	} else {
		o, err = h.Orders.Advance(r.Context(), id, to)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
