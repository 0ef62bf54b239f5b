package httpapi

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := catalog.ProductQuery{
		PriceGT:  q.Get("unit_price__gt"),
		PriceLT:  q.Get("unit_price__lt"),
		Search:   q.Get("search"),
		Ordering: q.Get("ordering"),
		Page:     1,
	}
	if raw := q.Get("collection_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.writeError(w, r, domain.NewFieldError("collection_id", "Enter a number."))
			return
		}
		query.CollectionID = id
	}
	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, r, domain.ErrInvalidPage)
			return
		}
		query.Page = page
	}

	page, err := h.svc.Catalog.ListProducts(r.Context(), query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	results := make([]productResponse, 0, len(page.Items))
	for _, p := range page.Items {
		results = append(results, toProduct(p))
	}
	resp := pageResponse{Count: page.Count, Results: results}
	if page.HasNext {
		resp.Next = pageURL(r, page.Page+1)
	}
	if page.HasPrev {
		resp.Previous = pageURL(r, page.Page-1)
	}
	respondJSON(w, http.StatusOK, resp)
}

// pageURL строит ссылку на соседнюю страницу с сохранением остальных параметров запроса.
func pageURL(r *http.Request, page int) *string {
	q := r.URL.Query()
	if page <= 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(page))
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	u := url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path, RawQuery: q.Encode()}
	s := u.String()
	return &s
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "productID", domain.ErrProductNotFound)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	product, err := h.svc.Catalog.GetProduct(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toProduct(product))
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromContext(r.Context())
	if err := domain.RequireStaff(actor); err != nil {
		h.writeError(w, r, err)
		return
	}

	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	var product domain.Product
	req.apply(&product)

	created, err := h.svc.Catalog.CreateProduct(r.Context(), actor, product)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toProduct(created))
}

func (h *Handler) replaceProduct(w http.ResponseWriter, r *http.Request) {
	h.updateProduct(w, r, true)
}

func (h *Handler) patchProduct(w http.ResponseWriter, r *http.Request) {
	h.updateProduct(w, r, false)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request, replace bool) {
	actor := ActorFromContext(r.Context())
	if err := domain.RequireStaff(actor); err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := pathID(r, "productID", domain.ErrProductNotFound)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	apply := req.apply
	if replace {
		apply = req.full()
	}

	updated, err := h.svc.Catalog.UpdateProduct(r.Context(), actor, id, apply)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toProduct(updated))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromContext(r.Context())
	if err := domain.RequireStaff(actor); err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := pathID(r, "productID", domain.ErrProductNotFound)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.Catalog.DeleteProduct(r.Context(), actor, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
