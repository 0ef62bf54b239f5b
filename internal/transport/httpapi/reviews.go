package httpapi

import (
	"net/http"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Отзывы доступны без аутентификации.

func (h *Handler) listReviews(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productID", domain.ErrProductNotFound)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	reviews, err := h.svc.Catalog.ListReviews(r.Context(), productID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]reviewResponse, 0, len(reviews))
	for _, rv := range reviews {
		out = append(out, toReview(rv))
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) getReview(w http.ResponseWriter, r *http.Request) {
	productID, id, err := reviewPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	review, err := h.svc.Catalog.GetReview(r.Context(), productID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toReview(review))
}

func (h *Handler) createReview(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productID", domain.ErrProductNotFound)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req reviewRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	created, err := h.svc.Catalog.CreateReview(r.Context(), productID, domain.Review{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toReview(created))
}

func (h *Handler) updateReview(w http.ResponseWriter, r *http.Request) {
	productID, id, err := reviewPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req reviewRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	updated, err := h.svc.Catalog.UpdateReview(r.Context(), productID, id, func(rv *domain.Review) {
		rv.Name = req.Name
		rv.Description = req.Description
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toReview(updated))
}

func (h *Handler) deleteReview(w http.ResponseWriter, r *http.Request) {
	productID, id, err := reviewPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.Catalog.DeleteReview(r.Context(), productID, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func reviewPath(r *http.Request) (int64, int64, error) {
	productID, err := pathID(r, "productID", domain.ErrReviewNotFound)
	if err != nil {
		return 0, 0, err
	}
	id, err := pathID(r, "reviewID", domain.ErrReviewNotFound)
	if err != nil {
		return 0, 0, err
	}
	return productID, id, nil
}
