package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-realtime-checkout/internal/cart"
	"github.com/go-chi/chi/v5"
)

type CartHandler struct {
	Carts *cart.Service
}

type cartLineReq struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity"`
	// Replace sets the quantity instead of adding to it; <= 0 removes the line.
	Replace bool `json:"replace"`
}

type setQuantityReq struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandler) Register(r chi.Router) {
	r.Get("/cart/{user}", h.get)
	r.Post("/cart/{user}", h.upsertLine)
	r.Put("/cart/{user}/{product}", h.setQuantity)
	r.Delete("/cart/{user}/{product}", h.removeLine)
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	if !authorized(w, r, user) {
		return
	}
	c, err := h.Carts.Get(r.Context(), user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) upsertLine(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	if !authorized(w, r, user) {
		return
	}
	var req cartLineReq
	if !decode(w, r, &req) {
		return
	}
	var (
		c   cart.Cart
		err error
	)
	if req.Replace {
		c, err = h.Carts.SetLineQuantity(r.Context(), user, req.ProductID, req.Quantity)
	} else {
		c, err = h.Carts.AddLine(r.Context(), user, req.ProductID, req.Quantity)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) setQuantity(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	if !authorized(w, r, user) {
		return
	}
	var req setQuantityReq
	if !decode(w, r, &req) {
		return
	}
	c, err := h.Carts.SetLineQuantity(r.Context(), user, chi.URLParam(r, "product"), req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) removeLine(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	if !authorized(w, r, user) {
		return
	}
	c, err := h.Carts.RemoveLine(r.Context(), user, chi.URLParam(r, "product"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
