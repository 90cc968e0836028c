package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func (h *Handler) createCart(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := decodeCreateCart(data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.carts.GetOrCreate(r.Context(), req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("cart.id", c.ID))

	var e jx.Encoder
	encodeCart(&e, c)
	writeJSON(w, http.StatusCreated, &e)
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "cart")
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.carts.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	encodeCart(&e, c)
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	cartID, err := pathID(r, "id", "cart")
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := decodeAddItem(data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	item, err := h.carts.AddItem(r.Context(), cartID, req.CoffeeID, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	encodeItem(&e, item)
	writeJSON(w, http.StatusCreated, &e)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	cartID, err := pathID(r, "cartId", "cart")
	if err != nil {
		writeError(w, r, err)
		return
	}
	itemID, err := pathID(r, "itemId", "cart item")
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	quantity, err := decodeUpdateItem(data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	item, err := h.carts.UpdateItem(r.Context(), cartID, itemID, quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	encodeItem(&e, item)
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	cartID, err := pathID(r, "cartId", "cart")
	if err != nil {
		writeError(w, r, err)
		return
	}
	itemID, err := pathID(r, "itemId", "cart item")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.carts.RemoveItem(r.Context(), cartID, itemID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
