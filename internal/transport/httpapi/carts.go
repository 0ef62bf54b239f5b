package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Корзины анонимны: доступ определяется знанием UUID.

func (h *Handler) createCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.svc.Carts.Create(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toCart(cart))
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.svc.Carts.Get(r.Context(), chi.URLParam(r, "cartID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCart(cart))
}

func (h *Handler) deleteCart(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Carts.Delete(r.Context(), chi.URLParam(r, "cartID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listCartItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Carts.ListItems(r.Context(), chi.URLParam(r, "cartID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]cartItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toCartItem(item))
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) getCartItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r, "itemID", domain.ErrCartItemNotFound)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	item, err := h.svc.Carts.GetItem(r.Context(), chi.URLParam(r, "cartID"), itemID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartItem(item))
}

// addCartItem добавляет товар в корзину или увеличивает количество существующей позиции.
func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addCartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	item, err := h.svc.Carts.UpsertItem(r.Context(), chi.URLParam(r, "cartID"), req.ProductID, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toCartItem(item))
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r, "itemID", domain.ErrCartItemNotFound)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req updateCartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	item, err := h.svc.Carts.UpdateItemQuantity(r.Context(), chi.URLParam(r, "cartID"), itemID, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartItem(item))
}

func (h *Handler) deleteCartItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r, "itemID", domain.ErrCartItemNotFound)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.Carts.DeleteItem(r.Context(), chi.URLParam(r, "cartID"), itemID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
