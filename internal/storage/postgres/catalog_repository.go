package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const productColumns = `p.id, p.title, p.slug, p.description, p.unit_price, p.inventory, p.collection_id, p.last_update`

// productOrderings сопоставляет параметр ordering с ORDER BY; значения вне списка не попадают в SQL.
var productOrderings = map[string]string{
	domain.ProductOrderDefault:        "p.id ASC",
	domain.ProductOrderPriceAsc:       "p.unit_price ASC, p.id ASC",
	domain.ProductOrderPriceDesc:      "p.unit_price DESC, p.id ASC",
	domain.ProductOrderLastUpdateAsc:  "p.last_update ASC, p.id ASC",
	domain.ProductOrderLastUpdateDesc: "p.last_update DESC, p.id ASC",
}

type productRepository struct {
	q querier
}

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Title, &p.Slug, &p.Description, &p.UnitPrice, &p.Inventory, &p.CollectionID, &p.LastUpdate)
	return p, err
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := r.q.QueryRowContext(ctx, `
		INSERT INTO products (title, slug, description, unit_price, inventory, collection_id, last_update)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id, last_update
	`,
		product.Title, product.Slug, product.Description, product.UnitPrice,
		product.Inventory, product.CollectionID, time.Now().UTC(),
	).Scan(&product.ID, &product.LastUpdate)
	if err != nil {
		if _, ok := foreignKeyViolation(err); ok {
			return domain.Product{}, domain.ErrCollectionNotFound
		}
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}
	return product, nil
}

func (r *productRepository) Get(ctx context.Context, id int64) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	product, err := scanProduct(r.q.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products p
		WHERE p.id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return product, nil
}

func (r *productRepository) List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	where, args := productWhere(filter)
	from := ` FROM products p LEFT JOIN collections c ON c.id = p.collection_id` + where

	var total int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*)`+from, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	orderBy, ok := productOrderings[filter.Ordering]
	if !ok {
		orderBy = productOrderings[domain.ProductOrderDefault]
	}
	query := `SELECT ` + productColumns + from + ` ORDER BY ` + orderBy
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate product rows: %w", err)
	}
	return products, total, nil
}

func productWhere(filter domain.ProductFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.CollectionID > 0 {
		conds = append(conds, "p.collection_id = "+next(filter.CollectionID))
	}
	if filter.PriceGT != nil {
		conds = append(conds, "p.unit_price > "+next(*filter.PriceGT))
	}
	if filter.PriceLT != nil {
		conds = append(conds, "p.unit_price < "+next(*filter.PriceLT))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		ph := next("%" + escapeLike(search) + "%")
		conds = append(conds, "(p.title ILIKE "+ph+" OR p.description ILIKE "+ph+" OR c.title ILIKE "+ph+")")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (r *productRepository) Update(ctx context.Context, product domain.Product) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := r.q.QueryRowContext(ctx, `
		UPDATE products
		SET title = $2,
		    slug = $3,
		    description = $4,
		    unit_price = $5,
		    inventory = $6,
		    collection_id = $7,
		    last_update = $8
		WHERE id = $1
		RETURNING last_update
	`,
		product.ID, product.Title, product.Slug, product.Description, product.UnitPrice,
		product.Inventory, product.CollectionID, time.Now().UTC(),
	).Scan(&product.LastUpdate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		if _, ok := foreignKeyViolation(err); ok {
			return domain.Product{}, domain.ErrCollectionNotFound
		}
		return domain.Product{}, fmt.Errorf("update product: %w", err)
	}
	return product, nil
}

func (r *productRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if constraint, ok := foreignKeyViolation(err); ok && constraint == fkOrderItemsProduct {
			return domain.ErrProductInUse
		}
		return fmt.Errorf("delete product: %w", err)
	}
	return expectAffected(res, domain.ErrProductNotFound)
}

type collectionRepository struct {
	q querier
}

const collectionSelect = `
	SELECT c.id, c.title, c.featured_product_id, COUNT(p.id)
	FROM collections c
	LEFT JOIN products p ON p.collection_id = c.id
`

func scanCollection(row interface{ Scan(...any) error }) (domain.Collection, error) {
	var (
		c        domain.Collection
		featured sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.Title, &featured, &c.ProductsCount); err != nil {
		return domain.Collection{}, err
	}
	if featured.Valid {
		id := featured.Int64
		c.FeaturedProductID = &id
	}
	return c, nil
}

func (r *collectionRepository) Create(ctx context.Context, collection domain.Collection) (domain.Collection, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := r.q.QueryRowContext(ctx, `
		INSERT INTO collections (title, featured_product_id)
		VALUES ($1,$2)
		RETURNING id
	`, collection.Title, nullableID(collection.FeaturedProductID)).Scan(&collection.ID)
	if err != nil {
		if _, ok := foreignKeyViolation(err); ok {
			return domain.Collection{}, domain.ErrProductNotFound
		}
		return domain.Collection{}, fmt.Errorf("insert collection: %w", err)
	}
	collection.ProductsCount = 0
	return collection, nil
}

func (r *collectionRepository) Get(ctx context.Context, id int64) (domain.Collection, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	c, err := scanCollection(r.q.QueryRowContext(ctx, collectionSelect+`
		WHERE c.id = $1
		GROUP BY c.id
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Collection{}, domain.ErrCollectionNotFound
		}
		return domain.Collection{}, fmt.Errorf("select collection: %w", err)
	}
	return c, nil
}

func (r *collectionRepository) List(ctx context.Context) ([]domain.Collection, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, collectionSelect+`
		GROUP BY c.id
		ORDER BY c.id
	`)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Collection, 0)
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan collection row: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collection rows: %w", err)
	}
	return result, nil
}

func (r *collectionRepository) Update(ctx context.Context, collection domain.Collection) (domain.Collection, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE collections
		SET title = $2,
		    featured_product_id = $3
		WHERE id = $1
	`, collection.ID, collection.Title, nullableID(collection.FeaturedProductID))
	if err != nil {
		if _, ok := foreignKeyViolation(err); ok {
			return domain.Collection{}, domain.ErrProductNotFound
		}
		return domain.Collection{}, fmt.Errorf("update collection: %w", err)
	}
	if err := expectAffected(res, domain.ErrCollectionNotFound); err != nil {
		return domain.Collection{}, err
	}

	if err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM products WHERE collection_id = $1
	`, collection.ID).Scan(&collection.ProductsCount); err != nil {
		return domain.Collection{}, fmt.Errorf("count collection products: %w", err)
	}
	return collection, nil
}

func (r *collectionRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM collections WHERE id = $1`, id)
	if err != nil {
		if constraint, ok := foreignKeyViolation(err); ok && constraint == fkProductsCollection {
			return domain.ErrCollectionHasProducts
		}
		return fmt.Errorf("delete collection: %w", err)
	}
	return expectAffected(res, domain.ErrCollectionNotFound)
}

type reviewRepository struct {
	q querier
}

func (r *reviewRepository) Create(ctx context.Context, review domain.Review) (domain.Review, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if review.Date.IsZero() {
		review.Date = time.Now().UTC()
	}
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO reviews (product_id, name, description, date)
		VALUES ($1,$2,$3,$4)
		RETURNING id
	`, review.ProductID, review.Name, review.Description, review.Date).Scan(&review.ID)
	if err != nil {
		if constraint, ok := foreignKeyViolation(err); ok && constraint == fkReviewsProduct {
			return domain.Review{}, domain.ErrProductNotFound
		}
		return domain.Review{}, fmt.Errorf("insert review: %w", err)
	}
	return review, nil
}

func (r *reviewRepository) Get(ctx context.Context, productID, id int64) (domain.Review, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var rv domain.Review
	err := r.q.QueryRowContext(ctx, `
		SELECT id, product_id, name, description, date
		FROM reviews
		WHERE product_id = $1 AND id = $2
	`, productID, id).Scan(&rv.ID, &rv.ProductID, &rv.Name, &rv.Description, &rv.Date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Review{}, domain.ErrReviewNotFound
		}
		return domain.Review{}, fmt.Errorf("select review: %w", err)
	}
	return rv, nil
}

func (r *reviewRepository) ListByProduct(ctx context.Context, productID int64) ([]domain.Review, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, product_id, name, description, date
		FROM reviews
		WHERE product_id = $1
		ORDER BY id
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Review, 0)
	for rows.Next() {
		var rv domain.Review
		if err := rows.Scan(&rv.ID, &rv.ProductID, &rv.Name, &rv.Description, &rv.Date); err != nil {
			return nil, fmt.Errorf("scan review row: %w", err)
		}
		result = append(result, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review rows: %w", err)
	}
	return result, nil
}

func (r *reviewRepository) Update(ctx context.Context, review domain.Review) (domain.Review, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := r.q.QueryRowContext(ctx, `
		UPDATE reviews
		SET name = $3,
		    description = $4
		WHERE product_id = $1 AND id = $2
		RETURNING date
	`, review.ProductID, review.ID, review.Name, review.Description).Scan(&review.Date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Review{}, domain.ErrReviewNotFound
		}
		return domain.Review{}, fmt.Errorf("update review: %w", err)
	}
	return review, nil
}

func (r *reviewRepository) Delete(ctx context.Context, productID, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM reviews WHERE product_id = $1 AND id = $2`, productID, id)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	return expectAffected(res, domain.ErrReviewNotFound)
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

// expectAffected возвращает notFound, если запрос не затронул ни одной строки.
func expectAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

var (
	_ domain.ProductRepository    = (*productRepository)(nil)
	_ domain.CollectionRepository = (*collectionRepository)(nil)
	_ domain.ReviewRepository     = (*reviewRepository)(nil)
)
