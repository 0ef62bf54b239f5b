package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.Orders.ListOrders(r.Context(), ActorFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrders(orders))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "orderID", domain.ErrOrderNotFound)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	order, err := h.svc.Orders.GetOrder(r.Context(), ActorFromContext(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrder(order))
}

// createOrder оформляет заказ из корзины. При наличии заголовка Idempotency-Key
// повторный запрос получает сохранённый ответ первого.
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromContext(r.Context())
	if err := domain.AuthorizeOrder(actor, domain.OrderActionCreate, nil, nil); err != nil {
		h.writeError(w, r, err)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, r, domain.NewFieldError("non_field_errors", "Unable to read request body."))
		return
	}

	key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	if key == "" || h.svc.Idempotency == nil {
		status, payload := h.placeOrder(r, actor, body)
		respondRaw(w, status, payload)
		return
	}
	h.placeOrderIdempotent(w, r, actor, key, body)
}

// placeOrder выполняет оформление и возвращает готовый к отправке ответ.
func (h *Handler) placeOrder(r *http.Request, actor domain.Actor, body []byte) (int, []byte) {
	var req createOrderRequest
	if err := decodeBytes(body, &req); err != nil {
		return h.encodeError(r, err)
	}

	order, err := h.svc.Orders.PlaceOrder(r.Context(), actor, req.CartID)
	if err != nil {
		if errors.Is(err, domain.ErrCartEmpty) {
			err = domain.FieldErrorFrom("cart_id", err)
		}
		return h.encodeError(r, err)
	}

	payload, err := json.Marshal(toOrder(order))
	if err != nil {
		return h.encodeError(r, err)
	}
	return http.StatusCreated, payload
}

func (h *Handler) encodeError(r *http.Request, err error) (int, []byte) {
	status, body := errorResponse(err)
	if status == http.StatusInternalServerError {
		requestLogger(r, h.logger).WithError(err).Error("request failed")
	}
	payload, marshalErr := json.Marshal(body)
	if marshalErr != nil {
		return http.StatusInternalServerError, []byte(`{"detail":"` + internalErrorMessage + `"}`)
	}
	return status, payload
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromContext(r.Context())
	if err := domain.AuthorizeOrder(actor, domain.OrderActionUpdate, nil, nil); err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := pathID(r, "orderID", domain.ErrOrderNotFound)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req updateOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	order, err := h.svc.Orders.UpdateOrderStatus(r.Context(), actor, id, domain.PaymentStatus(req.PaymentStatus))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrder(order))
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromContext(r.Context())
	if err := domain.AuthorizeOrder(actor, domain.OrderActionDelete, nil, nil); err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := pathID(r, "orderID", domain.ErrOrderNotFound)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.Orders.DeleteOrder(r.Context(), actor, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
