package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// TaxRate: множитель для расчёта цены с налогом.
var TaxRate = decimal.RequireFromString("1.1")

// maxUnitPrice соответствует колонке NUMERIC(6,2).
var maxUnitPrice = decimal.RequireFromString("9999.99")

const (
	priceDecimalPlaces = 2
	// maxCharField: длина колонок VARCHAR(255).
	maxCharField = 255
)

// checkCharField добавляет ошибки для пустого или слишком длинного строкового поля.
func checkCharField(errs ValidationErrors, field, value string) ValidationErrors {
	switch {
	case strings.TrimSpace(value) == "":
		return append(errs, NewFieldError(field, "This field is required."))
	case utf8.RuneCountInString(value) > maxCharField:
		return append(errs, NewFieldError(field, "Ensure this field has no more than 255 characters."))
	}
	return errs
}

// Product: товар каталога.
type Product struct {
	ID          int64
	Title       string
	Slug        string
	Description string
	// UnitPrice: текущая цена за единицу (2 знака после запятой).
	UnitPrice    decimal.Decimal
	Inventory    int
	CollectionID int64
	LastUpdate   time.Time
}

// PriceWithTax возвращает цену с налогом, округлённую до копеек.
func (p Product) PriceWithTax() decimal.Decimal {
	return p.UnitPrice.Mul(TaxRate).Round(2)
}

// Summary возвращает краткое представление товара для корзин и заказов.
func (p Product) Summary() ProductSummary {
	return ProductSummary{ID: p.ID, Title: p.Title, UnitPrice: p.UnitPrice}
}

// Validate проверяет поля товара перед сохранением.
func (p *Product) Validate() error {
	var errs ValidationErrors

	errs = checkCharField(errs, "title", p.Title)
	errs = checkCharField(errs, "slug", p.Slug)
	switch {
	case p.UnitPrice.IsNegative():
		errs = append(errs, NewFieldError("unit_price", "Ensure this value is greater than or equal to 0."))
	case p.UnitPrice.GreaterThan(maxUnitPrice):
		errs = append(errs, NewFieldError("unit_price", "Ensure that there are no more than 6 digits in total."))
	case !p.UnitPrice.Equal(p.UnitPrice.Truncate(priceDecimalPlaces)):
		errs = append(errs, NewFieldError("unit_price", "Ensure that there are no more than 2 decimal places."))
	}
	if p.Inventory < 0 {
		errs = append(errs, NewFieldError("inventory", "Ensure this value is greater than or equal to 0."))
	}
	if p.CollectionID <= 0 {
		errs = append(errs, NewFieldError("collection", "This field is required."))
	}

	return errs.Err()
}

// ProductSummary: товар в составе корзины или заказа.
type ProductSummary struct {
	ID        int64
	Title     string
	UnitPrice decimal.Decimal
}

// Порядок сортировки списка товаров.
const (
	ProductOrderDefault        = ""
	ProductOrderPriceAsc       = "unit_price"
	ProductOrderPriceDesc      = "-unit_price"
	ProductOrderLastUpdateAsc  = "last_update"
	ProductOrderLastUpdateDesc = "-last_update"
)

// ValidProductOrdering сообщает, поддерживается ли значение параметра ordering.
func ValidProductOrdering(ordering string) bool {
	switch ordering {
	case ProductOrderDefault, ProductOrderPriceAsc, ProductOrderPriceDesc,
		ProductOrderLastUpdateAsc, ProductOrderLastUpdateDesc:
		return true
	default:
		return false
	}
}

// ProductFilter задаёт фильтрацию, поиск, сортировку и страницу списка товаров.
type ProductFilter struct {
	CollectionID int64
	PriceGT      *decimal.Decimal
	PriceLT      *decimal.Decimal
	// Search ищет подстроку без учёта регистра в названии, описании и названии коллекции.
	Search   string
	Ordering string
	Offset   int
	// Limit <= 0 означает «без ограничения».
	Limit int
}

// Collection: группа товаров.
type Collection struct {
	ID                int64
	Title             string
	FeaturedProductID *int64
	// ProductsCount вычисляется при чтении.
	ProductsCount int
}

// Validate проверяет поля коллекции.
func (c *Collection) Validate() error {
	return checkCharField(nil, "title", c.Title).Err()
}

// Review: отзыв о товаре.
type Review struct {
	ID          int64
	ProductID   int64
	Name        string
	Description string
	Date        time.Time
}

// Validate проверяет поля отзыва.
func (r *Review) Validate() error {
	var errs ValidationErrors
	errs = checkCharField(errs, "name", r.Name)
	if strings.TrimSpace(r.Description) == "" {
		errs = append(errs, NewFieldError("description", "This field is required."))
	}
	return errs.Err()
}

// ParsePriceRange разбирает границы фильтра цены; пустая строка означает отсутствие границы.
func ParsePriceRange(gt, lt string) (*decimal.Decimal, *decimal.Decimal, error) {
	var (
		low, high *decimal.Decimal
		errs      ValidationErrors
	)
	if gt != "" {
		v, err := decimal.NewFromString(gt)
		if err != nil {
			errs = append(errs, NewFieldError("unit_price__gt", "Enter a number."))
		} else {
			low = &v
		}
	}
	if lt != "" {
		v, err := decimal.NewFromString(lt)
		if err != nil {
			errs = append(errs, NewFieldError("unit_price__lt", "Enter a number."))
		} else {
			high = &v
		}
	}
	return low, high, errs.Err()
}
