package httpapi

import (
	"net/http"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func (h *Handler) getMe(w http.ResponseWriter, r *http.Request) {
	customer, err := h.svc.Customers.Me(r.Context(), ActorFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCustomer(customer))
}

func (h *Handler) updateMe(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromContext(r.Context())
	if err := domain.RequireAuthenticated(actor); err != nil {
		h.writeError(w, r, err)
		return
	}
	apply, err := decodeCustomer(r, nil)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	customer, err := h.svc.Customers.UpdateMe(r.Context(), actor, apply)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCustomer(customer))
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromContext(r.Context())
	if err := domain.RequireStaff(actor); err != nil {
		h.writeError(w, r, err)
		return
	}
	var req customerRequest
	apply, err := decodeCustomer(r, &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	customer := domain.Customer{UserID: req.UserID}
	apply(&customer)

	created, err := h.svc.Customers.Create(r.Context(), actor, customer)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toCustomer(created))
}

func (h *Handler) getCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "customerID", domain.ErrCustomerNotFound)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	customer, err := h.svc.Customers.Get(r.Context(), ActorFromContext(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCustomer(customer))
}

func (h *Handler) updateCustomer(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromContext(r.Context())
	if err := domain.RequireStaff(actor); err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := pathID(r, "customerID", domain.ErrCustomerNotFound)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	apply, err := decodeCustomer(r, nil)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	customer, err := h.svc.Customers.Update(r.Context(), actor, id, apply)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCustomer(customer))
}

func (h *Handler) customerHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "customerID", domain.ErrCustomerNotFound)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	orders, err := h.svc.Customers.History(r.Context(), ActorFromContext(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrders(orders))
}

// decodeCustomer разбирает тело профиля; req (если не nil) получает разобранный запрос.
func decodeCustomer(r *http.Request, req *customerRequest) (func(*domain.Customer), error) {
	if req == nil {
		req = &customerRequest{}
	}
	if err := decodeJSON(r, req); err != nil {
		return nil, err
	}
	return req.apply()
}
