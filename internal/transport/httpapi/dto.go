package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const dateLayout = "2006-01-02"

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

type productResponse struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Slug         string `json:"slug"`
	Description  string `json:"description"`
	Inventory    int    `json:"inventory"`
	UnitPrice    string `json:"unit_price"`
	PriceWithTax string `json:"price_with_tax"`
	Collection   int64  `json:"collection"`
}

func toProduct(p domain.Product) productResponse {
	return productResponse{
		ID:           p.ID,
		Title:        p.Title,
		Slug:         p.Slug,
		Description:  p.Description,
		Inventory:    p.Inventory,
		UnitPrice:    money(p.UnitPrice),
		PriceWithTax: money(p.PriceWithTax()),
		Collection:   p.CollectionID,
	}
}

// productRequest используется для PUT/POST (все поля) и PATCH (только переданные).
type productRequest struct {
	Title       *string          `json:"title"`
	Slug        *string          `json:"slug"`
	Description *string          `json:"description"`
	Inventory   *int             `json:"inventory"`
	UnitPrice   *decimal.Decimal `json:"unit_price"`
	Collection  *int64           `json:"collection"`
}

func (req productRequest) apply(p *domain.Product) {
	if req.Title != nil {
		p.Title = *req.Title
	}
	if req.Slug != nil {
		p.Slug = *req.Slug
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Inventory != nil {
		p.Inventory = *req.Inventory
	}
	if req.UnitPrice != nil {
		p.UnitPrice = *req.UnitPrice
	}
	if req.Collection != nil {
		p.CollectionID = *req.Collection
	}
}

// full заменяет все поля товара; непереданные поля сбрасываются в нулевые значения.
func (req productRequest) full() func(*domain.Product) {
	return func(p *domain.Product) {
		id := p.ID
		*p = domain.Product{ID: id}
		req.apply(p)
	}
}

type productSummaryResponse struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	UnitPrice string `json:"unit_price"`
}

func toProductSummary(p domain.ProductSummary) productSummaryResponse {
	return productSummaryResponse{ID: p.ID, Title: p.Title, UnitPrice: money(p.UnitPrice)}
}

type pageResponse struct {
	Count    int               `json:"count"`
	Next     *string           `json:"next"`
	Previous *string           `json:"previous"`
	Results  []productResponse `json:"results"`
}

type collectionResponse struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	FeaturedProduct *int64 `json:"featured_product"`
	ProductsCount   int    `json:"products_count"`
}

func toCollection(c domain.Collection) collectionResponse {
	return collectionResponse{
		ID:              c.ID,
		Title:           c.Title,
		FeaturedProduct: c.FeaturedProductID,
		ProductsCount:   c.ProductsCount,
	}
}

type collectionRequest struct {
	Title           string `json:"title"`
	FeaturedProduct *int64 `json:"featured_product"`
}

type reviewResponse struct {
	ID          int64  `json:"id"`
	Date        string `json:"date"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func toReview(r domain.Review) reviewResponse {
	return reviewResponse{
		ID:          r.ID,
		Date:        r.Date.Format(dateLayout),
		Name:        r.Name,
		Description: r.Description,
	}
}

type reviewRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type cartItemResponse struct {
	ID         int64                  `json:"id"`
	ProductID  int64                  `json:"product_id"`
	Product    productSummaryResponse `json:"product"`
	Quantity   int                    `json:"quantity"`
	TotalPrice string                 `json:"total_price"`
}

func toCartItem(i domain.CartItem) cartItemResponse {
	return cartItemResponse{
		ID:         i.ID,
		ProductID:  i.ProductID,
		Product:    toProductSummary(i.Product),
		Quantity:   i.Quantity,
		TotalPrice: money(i.TotalPrice()),
	}
}

type cartResponse struct {
	ID         string             `json:"id"`
	Items      []cartItemResponse `json:"items"`
	TotalPrice string             `json:"total_price"`
}

func toCart(c domain.Cart) cartResponse {
	items := make([]cartItemResponse, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, toCartItem(item))
	}
	return cartResponse{ID: c.ID, Items: items, TotalPrice: money(c.TotalPrice())}
}

type addCartItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

type customerResponse struct {
	ID         int64   `json:"id"`
	UserID     int64   `json:"user_id"`
	Phone      string  `json:"phone"`
	BirthDate  *string `json:"birth_date"`
	Membership string  `json:"membership"`
}

func toCustomer(c domain.Customer) customerResponse {
	resp := customerResponse{
		ID:         c.ID,
		UserID:     c.UserID,
		Phone:      c.Phone,
		Membership: string(c.Membership),
	}
	if c.BirthDate != nil {
		s := c.BirthDate.Format(dateLayout)
		resp.BirthDate = &s
	}
	return resp
}

type customerRequest struct {
	UserID     int64   `json:"user_id"`
	Phone      *string `json:"phone"`
	BirthDate  *string `json:"birth_date"`
	Membership *string `json:"membership"`
}

// apply переносит изменяемые поля профиля. Ошибка формата даты возвращается как ошибка поля.
func (req customerRequest) apply() (func(*domain.Customer), error) {
	var birth *time.Time
	if req.BirthDate != nil && *req.BirthDate != "" {
		parsed, err := time.Parse(dateLayout, *req.BirthDate)
		if err != nil {
			return nil, domain.NewFieldError("birth_date", "Date has wrong format. Use one of these formats instead: YYYY-MM-DD.")
		}
		birth = &parsed
	}

	return func(c *domain.Customer) {
		if req.Phone != nil {
			c.Phone = *req.Phone
		}
		if req.BirthDate != nil {
			c.BirthDate = birth
		}
		if req.Membership != nil {
			c.Membership = domain.Membership(*req.Membership)
		}
	}, nil
}

type orderItemResponse struct {
	ID        int64                  `json:"id"`
	Product   productSummaryResponse `json:"product"`
	Quantity  int                    `json:"quantity"`
	UnitPrice string                 `json:"unit_price"`
}

type orderResponse struct {
	ID            int64               `json:"id"`
	Customer      int64               `json:"customer"`
	PlacedAt      time.Time           `json:"placed_at"`
	PaymentStatus string              `json:"payment_status"`
	Items         []orderItemResponse `json:"items"`
	Total         string              `json:"total"`
}

func toOrder(o domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemResponse{
			ID:        item.ID,
			Product:   toProductSummary(item.Product),
			Quantity:  item.Quantity,
			UnitPrice: money(item.UnitPrice),
		})
	}
	return orderResponse{
		ID:            o.ID,
		Customer:      o.CustomerID,
		PlacedAt:      o.PlacedAt,
		PaymentStatus: string(o.PaymentStatus),
		Items:         items,
		Total:         money(o.Total()),
	}
}

func toOrders(orders []domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrder(o))
	}
	return out
}

type createOrderRequest struct {
	CartID string `json:"cart_id"`
}

type updateOrderRequest struct {
	PaymentStatus string `json:"payment_status"`
}
