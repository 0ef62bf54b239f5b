package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgNumericOutOfRange   = "22003"
)

// Имена ограничений из sql/migrations, по которым различаются нарушения внешних ключей.
const (
	fkProductsCollection  = "products_collection_id_fkey"
	fkCollectionsFeatured = "collections_featured_product_id_fkey"
	fkReviewsProduct      = "reviews_product_id_fkey"
	fkCartItemsProduct    = "cart_items_product_id_fkey"
	fkOrdersCustomer      = "orders_customer_id_fkey"
	fkOrderItemsProduct   = "order_items_product_id_fkey"

	ckCartItemsQuantityMax  = "cart_items_quantity_max"
	ckOrderItemsQuantityMax = "order_items_quantity_max"
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}

// foreignKeyViolation возвращает имя нарушенного ограничения.
func foreignKeyViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

// isQuantityOverflow: количество вышло за CHECK-ограничение или за диапазон INTEGER.
func isQuantityOverflow(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgNumericOutOfRange:
		return true
	case pgCheckViolation:
		return pgErr.ConstraintName == ckCartItemsQuantityMax || pgErr.ConstraintName == ckOrderItemsQuantityMax
	}
	return false
}
