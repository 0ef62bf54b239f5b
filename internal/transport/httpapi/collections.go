package httpapi

import (
	"net/http"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func (h *Handler) listCollections(w http.ResponseWriter, r *http.Request) {
	collections, err := h.svc.Catalog.ListCollections(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]collectionResponse, 0, len(collections))
	for _, c := range collections {
		out = append(out, toCollection(c))
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) getCollection(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "collectionID", domain.ErrCollectionNotFound)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	collection, err := h.svc.Catalog.GetCollection(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCollection(collection))
}

func (h *Handler) createCollection(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromContext(r.Context())
	if err := domain.RequireStaff(actor); err != nil {
		h.writeError(w, r, err)
		return
	}
	var req collectionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	created, err := h.svc.Catalog.CreateCollection(r.Context(), actor, domain.Collection{
		Title:             req.Title,
		FeaturedProductID: req.FeaturedProduct,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toCollection(created))
}

func (h *Handler) updateCollection(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromContext(r.Context())
	if err := domain.RequireStaff(actor); err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := pathID(r, "collectionID", domain.ErrCollectionNotFound)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req collectionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	updated, err := h.svc.Catalog.UpdateCollection(r.Context(), actor, id, func(c *domain.Collection) {
		c.Title = req.Title
		c.FeaturedProductID = req.FeaturedProduct
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCollection(updated))
}

func (h *Handler) deleteCollection(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromContext(r.Context())
	if err := domain.RequireStaff(actor); err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := pathID(r, "collectionID", domain.ErrCollectionNotFound)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.Catalog.DeleteCollection(r.Context(), actor, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
